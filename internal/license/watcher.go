package license

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// StartWatcher reloads the license when its file changes. fsnotify is
// the primary signal; a slow 60s poll runs as well so a missed event
// (or an environment where fsnotify can't attach at all) still
// converges. The poll only reloads on an mtime change, so it doesn't
// spam the audit log with no-op reload events.
func (m *Manager) StartWatcher(ctx context.Context) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Printf("license: fsnotify unavailable (%v), relying on polling", err)
		watcher = nil
	} else if err := watcher.Add(m.path); err != nil {
		// Typically the file simply doesn't exist yet; polling picks it
		// up once it appears.
		log.Printf("license: cannot watch %s (%v), relying on polling", m.path, err)
		watcher.Close()
		watcher = nil
	}

	if watcher != nil {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						log.Println("license: file changed, reloading")
						// Let the writer finish before re-reading.
						time.Sleep(100 * time.Millisecond)
						m.Reload()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("license: watcher error: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()

		var lastMtime time.Time
		if info, err := os.Stat(m.path); err == nil {
			lastMtime = info.ModTime()
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(m.path)
				if err != nil {
					continue
				}
				if info.ModTime().After(lastMtime) {
					lastMtime = info.ModTime()
					m.Reload()
				}
			}
		}
	}()
}
