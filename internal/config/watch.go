package config

import (
	"context"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch re-parses the config file on change and hands every valid, changed
// config to apply. Invalid files are logged and skipped, so a half-saved
// edit never disturbs the running process. Watch blocks until ctx is done.
//
// The directory (not the file) is watched because many editors replace the
// file on save, which drops a file-level watch.
func Watch(ctx context.Context, path string, log zerolog.Logger, apply func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	dir := filepath.Dir(path)
	file := filepath.Base(path)
	if err := w.Add(dir); err != nil {
		return err
	}

	var lastHash uint64
	if b, err := os.ReadFile(path); err == nil {
		lastHash = hashBytes(b)
	}

	// Debounce rapid write events (partial saves, editor temp-file dances).
	var (
		mu    sync.Mutex
		timer *time.Timer
	)
	reload := func() {
		b, err := os.ReadFile(path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config reload: read failed")
			return
		}
		h := hashBytes(b)
		if h == lastHash {
			return
		}
		cfg, err := Parse(path, b)
		if err == nil {
			err = cfg.Validate()
		}
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("config reload: invalid config ignored")
			return
		}
		lastHash = h
		log.Info().Str("path", path).Msg("config reloaded")
		apply(cfg)
	}
	schedule := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(200*time.Millisecond, reload)
	}
	defer func() {
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn().Err(err).Msg("config watcher error")
		}
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
