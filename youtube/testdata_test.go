package youtube

const sampleAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:yt="http://www.youtube.com/xml/schemas/2015" xmlns:media="http://search.yahoo.com/mrss/">
  <title>Test Uploader</title>
  <author>
    <name>Test Uploader</name>
    <uri>https://www.youtube.com/channel/UCuAXFkgsw1L7xaCfnd5JJOw</uri>
  </author>
  <entry>
    <id>yt:video:dQw4w9WgXcQ</id>
    <yt:videoId>dQw4w9WgXcQ</yt:videoId>
    <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
    <title>Video 1</title>
    <published>2020-01-02T00:00:00Z</published>
    <media:group>
      <media:description>First video</media:description>
      <media:thumbnail url="https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg" width="480" height="360"/>
    </media:group>
  </entry>
  <entry>
    <id>yt:video:xQw4w9WgXcZ</id>
    <yt:videoId>xQw4w9WgXcZ</yt:videoId>
    <yt:channelId>UCuAXFkgsw1L7xaCfnd5JJOw</yt:channelId>
    <title>Video 2</title>
    <published>2020-01-01T00:00:00Z</published>
    <media:group>
      <media:description>Second video</media:description>
    </media:group>
  </entry>
</feed>`

const sampleEmptyAtomFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom" xmlns:yt="http://www.youtube.com/xml/schemas/2015">
  <title>Empty</title>
  <author><name>Nobody</name></author>
</feed>`

const sampleFlatPlaylist = `{
  "id": "UCuAXFkgsw1L7xaCfnd5JJOw",
  "channel": "Test Uploader",
  "channel_id": "UCuAXFkgsw1L7xaCfnd5JJOw",
  "entries": [
    {
      "id": "dQw4w9WgXcQ",
      "title": "Video 1",
      "description": "First video",
      "timestamp": 1577923200,
      "thumbnails": [
        {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/default.jpg"},
        {"url": "https://i.ytimg.com/vi/dQw4w9WgXcQ/hq720.jpg"}
      ]
    },
    {
      "id": "xQw4w9WgXcZ",
      "title": "Video 2",
      "upload_date": "20200101"
    },
    {
      "id": "UCshelf-not-a-video",
      "title": "Shelf"
    }
  ]
}`
