package seeds

import (
	"context"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 250 * time.Millisecond

// Store holds the current seed bank and swaps it when the backing file
// changes.
type Store struct {
	mu   sync.RWMutex
	bank *Bank
	path string
}

// NewStore wraps a bank. path may be empty for banks not backed by a file.
func NewStore(bank *Bank, path string) *Store {
	return &Store{bank: bank, path: path}
}

// Bank returns the current seed bank.
func (s *Store) Bank() *Bank {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bank
}

// Reload re-reads the backing file. On failure the previous bank is kept.
func (s *Store) Reload() error {
	b, err := LoadFile(s.path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.bank = b
	s.mu.Unlock()
	return nil
}

// Watch reloads the bank whenever the backing file is written or replaced,
// until ctx is cancelled. The parent directory is watched so editors that
// save by rename are seen.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}
	log.Printf("[Seeds] Watching %s for changes", s.path)

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(reloadDebounce, func() {
					if err := s.Reload(); err != nil {
						log.Printf("[Seeds] Warning: reload failed, keeping previous seeds: %v", err)
						return
					}
					log.Printf("[Seeds] Reloaded seeds from %s", s.path)
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("[Seeds] Watcher error: %v", err)
			}
		}
	}()
	return nil
}
