// Package ytaddon is a Stremio add-on for YouTube.
//
// It searches YouTube, lists followed channels as a catalog and plays
// videos by running yt-dlp and relaying its output over HTTP.
//
// # Overview
//
// New wires the whole service from a config.Config:
//
//	cfg, err := config.Load(config.NewViper(nil))
//	if err != nil {
//		log.Fatal(err)
//	}
//	app, err := ytaddon.New(cfg, ytaddon.Options{})
//	if err != nil {
//		log.Fatal(err)
//	}
//	log.Fatal(app.ListenAndServe(ctx))
//
// # Streaming
//
// A stream request never buffers video bytes. /proxy-best/{id} and its
// quality and format variants start one yt-dlp process per request and
// copy its stdout to the response. The process is stopped when the client
// goes away, and response headers are only sent once the first byte is
// available, so a failure before that point still gets a proper status.
//
// # Configuration
//
// Settings come from flags, YTADDON_ environment variables, an optional
// ytaddon.{yaml,toml,json} file and defaults, in that order. PORT and
// PUBLIC_HOST are honoured when the prefixed variables are not set.
//
// User settings edited from the admin page (API key, followed channels,
// search and stream modes) live in DataDir/config.json.
//
// # Error Handling
//
// The sentinel errors of the sub-packages are re-exported here:
//
//	if errors.Is(err, ytaddon.ErrToolUnavailable) {
//		fmt.Println("install yt-dlp")
//	}
//
//	var extErr *ytaddon.ExtractorError
//	if errors.As(err, &extErr) {
//		fmt.Println(extErr.Stderr)
//	}
//
// # Dependencies
//
// yt-dlp must be installed and reachable through PATH or ytdlp.path.
//
// Install yt-dlp: https://github.com/yt-dlp/yt-dlp
package ytaddon
