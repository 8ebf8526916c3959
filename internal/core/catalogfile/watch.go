package catalogfile

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// DefaultDebounce coalesces the burst of events editors emit for one save.
const DefaultDebounce = 200 * time.Millisecond

// Watch calls onChange with the freshly parsed document each time the file
// at path is written or created. The parent directory
// is watched so atomic-rename saves are seen. Parse failures are logged and
// the previous document stays in effect. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, debounce time.Duration, logger zerolog.Logger, onChange func(*Document)) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve catalog path: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	logger = logger.With().Str("component", "catalogfile").Str("path", abs).Logger()
	logger.Info().Msg("watching catalog file")

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs || !ev.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			pending = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("watcher error")

		case <-pending:
			pending = nil
			doc, err := Load(abs)
			if err != nil {
				logger.Error().Err(err).Msg("catalog file reload failed, keeping previous catalogs")
				continue
			}
			logger.Info().Int("catalogs", len(doc.Catalogs)).Msg("catalog file changed")
			onChange(doc)
		}
	}
}
