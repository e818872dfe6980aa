// Package scene keeps a scene document on disk loaded into a world, reloading it
// whenever the file changes.
package scene

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/talaub/lowzero/internal/core/fault"
	"github.com/talaub/lowzero/internal/core/handle"
	"github.com/talaub/lowzero/internal/core/observability/log"
	"github.com/talaub/lowzero/internal/core/serialization"
	"github.com/talaub/lowzero/internal/core/world"
)

const DefaultDebounce = 100 * time.Millisecond

type Watcher struct {
	world    *world.World
	path     string
	debounce time.Duration
	logger   log.Log

	mu      sync.Mutex
	handles []handle.Handle

	reloads atomic.Int64
}

func NewWatcher(w *world.World, path string, debounce time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		world:    w,
		path:     abs,
		debounce: debounce,
		logger:   w.Log().Named("scene").With(log.String("path", abs)),
	}, nil
}

// Load replaces the instances of the previous load with the current contents of
// the file. Unknown entries are logged and skipped.
func (s *Watcher) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	root, err := serialization.Unmarshal(data)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.release()
	var handles []handle.Handle
	if ft := fault.Catch(func() { handles, err = s.world.LoadDocument(root) }); ft != nil {
		return ft
	}
	s.handles = handles
	if err != nil {
		if !errors.Is(err, world.ErrBadDocument) {
			return err
		}
		s.logger.Warn("Scene loaded with errors", log.Error(err))
	}
	s.logger.Info("Scene loaded", log.Int("instances", len(handles)))
	return nil
}

// release destroys what the previous load created and is still alive.
func (s *Watcher) release() {
	for _, h := range s.handles {
		if !s.world.IsAlive(h) {
			continue
		}
		if ft := fault.Catch(func() { s.world.Destroy(h) }); ft != nil {
			s.logger.Warn("Failed to release instance", log.Stringer("handle", h), log.Error(ft))
		}
	}
	s.handles = nil
}

// Handles lists the top-level instances of the last load.
func (s *Watcher) Handles() []handle.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]handle.Handle, len(s.handles))
	copy(out, s.handles)
	return out
}

// Reloads counts the reloads triggered by file changes.
func (s *Watcher) Reloads() int { return int(s.reloads.Load()) }

// Run watches the file until ctx is done. The parent directory is watched so
// editors that replace the file on save are still followed.
func (s *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}
	defer fw.Close()
	if err := fw.Add(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("watch %s: %w", s.path, err)
	}

	changed := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("Watch error", log.Error(err))
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != s.path || !event.Has(fsnotify.Write|fsnotify.Create) {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(s.debounce, func() {
				select {
				case changed <- struct{}{}:
				default:
				}
			})
		case <-changed:
			s.reloads.Add(1)
			if err := s.Load(); err != nil {
				s.logger.Error("Scene reload failed", log.Error(err))
			}
		}
	}
}
