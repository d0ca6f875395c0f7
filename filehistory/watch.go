package filehistory

import (
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher notifies a callback whenever a snapshot JSON file is written
// under a Store's sessions directory, by any process including this one
// (e.g. a CLI `agent rollback` running out-of-process, or manual recovery
// tooling dropping a snapshot back in).
type Watcher struct {
	fsw  *fsnotify.Watcher
	done chan struct{}
}

// WatchSnapshots watches "<baseDir>/sessions" recursively for created or
// written snapshot files and invokes onChange with each one's path.
// Directories created after the watch starts (new sessions) are added
// automatically.
func WatchSnapshots(baseDir string, onChange func(path string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	root := filepath.Join(baseDir, "sessions")
	_ = os.MkdirAll(root, 0o755)
	if err := addRecursive(fsw, root); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{fsw: fsw, done: make(chan struct{})}
	go w.loop(onChange)
	return w, nil
}

func (w *Watcher) loop(onChange func(path string)) {
	defer close(w.done)
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Has(fsnotify.Create) && isDir(ev.Name) {
				_ = w.fsw.Add(ev.Name)
				continue
			}
			if (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) && filepath.Ext(ev.Name) == ".json" {
				onChange(ev.Name)
			}
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
		}
	}
}

// Close stops the watch and waits for the event loop to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fsw.Add(path)
		}
		return nil
	})
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
