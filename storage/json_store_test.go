package storage

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

const testPath = "/data/config.json"

func TestJSONStore_LoadCreatesDefaults(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewJSONStore(fs, testPath)

	got, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.ExtractionLimit != DefaultExtractionLimit || got.SearchMode != SearchModeAPI || got.StreamMode != StreamModeSimple {
		t.Errorf("Load() = %+v, want defaults", got)
	}
	if got.Channels == nil {
		t.Error("Channels should be an empty list, not nil")
	}

	exists, err := afero.Exists(fs, testPath)
	if err != nil || !exists {
		t.Fatalf("settings file was not created (exists=%v, err=%v)", exists, err)
	}
}

func TestJSONStore_SaveThenLoad(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewJSONStore(fs, testPath)
	ctx := context.Background()

	in := &Settings{
		APIKey:          "  AIza-key  ",
		Channels:        []Channel{{Name: "Go", URL: "https://www.youtube.com/@golang", ChannelID: "UC_x5XG1OV2P6uZZ5FSM9Ttw"}},
		ExtractionLimit: 10,
		SearchMode:      SearchModeYtdlp,
		StreamMode:      StreamModeAdvanced,
	}
	saved, err := store.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if saved.APIKey != "AIza-key" {
		t.Errorf("saved APIKey = %q, want trimmed", saved.APIKey)
	}

	// A second store over the same filesystem sees the same document.
	loaded, err := NewJSONStore(fs, testPath).Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.APIKey != "AIza-key" || loaded.ExtractionLimit != 10 ||
		loaded.SearchMode != SearchModeYtdlp || loaded.StreamMode != StreamModeAdvanced {
		t.Errorf("Load() = %+v", loaded)
	}
	if len(loaded.Channels) != 1 || loaded.Channels[0].ChannelID != "UC_x5XG1OV2P6uZZ5FSM9Ttw" {
		t.Errorf("Channels = %+v", loaded.Channels)
	}
}

func TestJSONStore_SaveIsIdempotent(t *testing.T) {
	store := NewJSONStore(afero.NewMemMapFs(), testPath)
	ctx := context.Background()

	first, err := store.Save(ctx, &Settings{APIKey: "k", ExtractionLimit: 70})
	if err != nil {
		t.Fatal(err)
	}
	second, err := store.Save(ctx, first)
	if err != nil {
		t.Fatal(err)
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Errorf("saving a normalised document changed it:\n%s\n%s", a, b)
	}
}

func TestJSONStore_LoadCorrupt(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, testPath, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := NewJSONStore(fs, testPath).Load(context.Background())
	if !errors.Is(err, ErrStorageCorrupt) {
		t.Fatalf("Load() error = %v, want ErrStorageCorrupt", err)
	}
	var storErr *StorageError
	if !errors.As(err, &storErr) || storErr.Op != "read" || storErr.Entity != "settings" {
		t.Errorf("error = %#v, want read settings StorageError", err)
	}

	data, _ := afero.ReadFile(fs, testPath)
	if string(data) != "{not json" {
		t.Error("corrupt document was overwritten")
	}
}

func TestJSONStore_LoadNormalizesLegacyDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	legacy := `{"apiKey":" k ","channels":[{"name":"A","url":"https://www.youtube.com/@a"}],"extractionLimit":0,"searchMode":"other"}`
	if err := afero.WriteFile(fs, testPath, []byte(legacy), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := NewJSONStore(fs, testPath).Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.APIKey != "k" || got.ExtractionLimit != 25 || got.SearchMode != SearchModeAPI || got.StreamMode != StreamModeSimple {
		t.Errorf("Load() = %+v", got)
	}
}

func TestJSONStore_SaveNil(t *testing.T) {
	_, err := NewJSONStore(afero.NewMemMapFs(), testPath).Save(context.Background(), nil)
	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Save(nil) error = %v, want ErrInvalidInput", err)
	}
}

func TestJSONStore_ReadOnlyFs(t *testing.T) {
	store := NewJSONStore(afero.NewReadOnlyFs(afero.NewMemMapFs()), testPath)
	_, err := store.Load(context.Background())
	var storErr *StorageError
	if !errors.As(err, &storErr) || storErr.Op != "write" {
		t.Errorf("Load() on read-only fs error = %v, want write StorageError", err)
	}
}

func TestJSONStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewJSONStore(afero.NewMemMapFs(), testPath).Load(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Load() error = %v, want context.Canceled", err)
	}
}

func TestJSONStore_ConcurrentSaves(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewJSONStore(fs, testPath)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if _, err := store.Save(ctx, &Settings{ExtractionLimit: 5 + n}); err != nil {
				t.Errorf("Save() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	got, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() after concurrent saves error = %v", err)
	}
	if got.ExtractionLimit < 5 || got.ExtractionLimit > 24 {
		t.Errorf("ExtractionLimit = %d, want one of the saved values", got.ExtractionLimit)
	}
	tmp, _ := afero.Glob(fs, "/data/.ytaddon-*.tmp")
	if len(tmp) != 0 {
		t.Errorf("temp files left behind: %v", tmp)
	}
}

func TestStorageError(t *testing.T) {
	err := &StorageError{Op: "read", Entity: "settings", Err: ErrStorageCorrupt}

	want := "storage: read settings: storage: data corruption detected"
	if err.Error() != want {
		t.Errorf("StorageError.Error() = %q, want %q", err.Error(), want)
	}
	if !errors.Is(err, ErrStorageCorrupt) {
		t.Error("StorageError should unwrap to ErrStorageCorrupt")
	}
}
