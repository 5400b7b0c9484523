// Package reload hot-reloads the suspicious user-agent deny list from a
// file, so new scanner signatures take effect without a restart.
package reload

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config holds reload watcher configuration
type Config struct {
	DenyListPath string
	DebounceTime time.Duration // Minimum time between reloads
}

// Watcher watches the deny-list file and applies changes through the
// given callback. The file holds one lowercase pattern per line; blank
// lines and lines starting with # are ignored.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	debounce time.Duration
	apply    func([]string)

	mu         sync.Mutex
	lastReload time.Time

	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewWatcher creates a watcher and performs an initial load. The apply
// callback receives the full pattern list on every successful reload.
func NewWatcher(config Config, apply func([]string)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}

	if config.DebounceTime == 0 {
		config.DebounceTime = 2 * time.Second
	}

	w := &Watcher{
		watcher:  fw,
		path:     config.DenyListPath,
		debounce: config.DebounceTime,
		apply:    apply,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if err := w.reload(); err != nil {
		fw.Close()
		return nil, err
	}

	// Watch the directory rather than the file so atomic replaces
	// (write temp + rename) are still seen.
	if err := fw.Add(filepath.Dir(config.DenyListPath)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", config.DenyListPath, err)
	}

	go w.watch()
	return w, nil
}

func (w *Watcher) watch() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			w.handleChange()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("deny-list watcher error: %v", err)

		case <-w.stopChan:
			return
		}
	}
}

func (w *Watcher) handleChange() {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.debounce {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	if err := w.reload(); err != nil {
		log.Printf("deny-list reload failed, keeping previous list: %v", err)
		return
	}
	log.Printf("deny-list reloaded from %s", w.path)
}

func (w *Watcher) reload() error {
	patterns, err := LoadDenyList(w.path)
	if err != nil {
		return err
	}
	w.apply(patterns)
	return nil
}

// Stop shuts down the watcher goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopChan)
		w.watcher.Close()
		<-w.done
	})
}

// LoadDenyList reads user-agent patterns from the given file.
func LoadDenyList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening deny list: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, strings.ToLower(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading deny list: %w", err)
	}
	return patterns, nil
}
