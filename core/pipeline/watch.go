package pipeline

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"stemdesk/logger"
)

// WatchOutputs watches a stage's output directory while the external tool
// runs and publishes a file event for every artifact that appears. The
// returned stop func must be called after the tool finishes. A watch failure
// only costs progress events, never the stage itself.
func WatchOutputs(hub *Hub, uploadID, stage, dir string) func() {
	if hub == nil {
		return func() {}
	}
	// The tool may create the directory itself; pre-create so it can be watched.
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("cannot create watch directory", logger.String("dir", dir), logger.ErrorField(err))
		return func() {}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("cannot create output watcher", logger.ErrorField(err))
		return func() {}
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		logger.Warn("cannot watch output directory", logger.String("dir", dir), logger.ErrorField(err))
		return func() {}
	}

	var seen sync.Map
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
					continue
				}
				name := filepath.Base(event.Name)
				if _, loaded := seen.LoadOrStore(name, true); loaded {
					continue
				}
				hub.Publish(Event{
					UploadID: uploadID,
					Stage:    stage,
					Kind:     EventFile,
					File:     name,
				})
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return func() {
		watcher.Close()
		<-done
	}
}
