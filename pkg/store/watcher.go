package store

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// imageWatcher removes rows whose image file is deleted or moved away from
// the images directory by something other than the store.
type imageWatcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	stopCh chan struct{}
	done   chan struct{}
}

func newImageWatcher(s *Store) (*imageWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Join(s.dataDir, imagesDir)); err != nil {
		watcher.Close()
		return nil, err
	}

	iw := &imageWatcher{
		store:    s,
		watcher:  watcher,
		logger:   s.logger.With().Str("subsystem", "image_watcher").Logger(),
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]struct{}),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go iw.run()

	return iw, nil
}

func (iw *imageWatcher) stop() {
	close(iw.stopCh)
	iw.watcher.Close()
	<-iw.done

	iw.mu.Lock()
	if iw.timer != nil {
		iw.timer.Stop()
	}
	iw.mu.Unlock()
}

func (iw *imageWatcher) run() {
	defer close(iw.done)
	for {
		select {
		case event, ok := <-iw.watcher.Events:
			if !ok {
				return
			}

			name := filepath.Base(event.Name)
			// Temp files from writeBlob are hidden.
			if strings.HasPrefix(name, ".") {
				continue
			}

			if event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				iw.logger.Debug().
					Str("file", name).
					Str("op", event.Op.String()).
					Msg("Image removed")
				iw.schedule(filepath.Join(imagesDir, name))
			}

		case err, ok := <-iw.watcher.Errors:
			if !ok {
				return
			}
			iw.logger.Error().Err(err).Msg("Image watcher error")

		case <-iw.stopCh:
			return
		}
	}
}

// schedule debounces removals so a bulk delete is reconciled in one pass.
func (iw *imageWatcher) schedule(rel string) {
	iw.mu.Lock()
	defer iw.mu.Unlock()

	iw.pending[rel] = struct{}{}
	if iw.timer != nil {
		iw.timer.Stop()
	}
	iw.timer = time.AfterFunc(iw.debounce, iw.flush)
}

func (iw *imageWatcher) flush() {
	iw.mu.Lock()
	pending := iw.pending
	iw.pending = make(map[string]struct{})
	iw.mu.Unlock()

	select {
	case <-iw.stopCh:
		return
	default:
	}

	removed := 0
	for rel := range pending {
		n, err := iw.store.forgetImage(context.Background(), rel)
		if err != nil {
			iw.logger.Error().Err(err).Str("file", rel).Msg("Failed to drop memory for missing image")
			continue
		}
		removed += n
	}
	if removed > 0 {
		iw.logger.Info().Int("removed", removed).Msg("Dropped memories whose images were deleted")
	}
}
