// Package watcher feeds catalog files dropped into a directory to the
// submission service.
package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/skuflow/platform/pkg/common/logger"
	"github.com/skuflow/platform/pkg/ledger"
	"github.com/skuflow/platform/pkg/submission"
)

type Submitter interface {
	Submit(ctx context.Context, fileName string, data []byte) (*ledger.UploadedFile, error)
}

type Watcher struct {
	dir       string
	submitter Submitter
	settle    time.Duration
	tick      time.Duration
}

func New(dir string, submitter Submitter) *Watcher {
	return &Watcher{
		dir:       dir,
		submitter: submitter,
		settle:    300 * time.Millisecond,
		tick:      250 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled. Files already in the directory are
// submitted first; new ones are submitted once writes to them settle.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir); err != nil {
		return err
	}
	logger.Log.WithField("dir", w.dir).Info("Watching drop directory")

	for _, name := range w.existing() {
		w.ingest(ctx, name)
	}

	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			name := filepath.Base(ev.Name)
			if ignored(name) {
				continue
			}
			pending[name] = time.Now()
		case <-ticker.C:
			now := time.Now()
			for name, seen := range pending {
				if now.Sub(seen) > w.settle {
					delete(pending, name)
					w.ingest(ctx, name)
				}
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Log.WithError(err).Warn("Watch error")
		}
	}
}

func (w *Watcher) existing() []string {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		logger.Log.WithError(err).Warn("Failed to list drop directory")
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || ignored(e.Name()) {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}

// ingest submits one file and removes it once the catalog has it.
// Rejected files stay in place for an operator to inspect.
func (w *Watcher) ingest(ctx context.Context, name string) {
	path := filepath.Join(w.dir, name)
	log := logger.Log.WithFields(logrus.Fields{"dir": w.dir, "file_name": name})

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.WithError(err).Warn("Failed to read dropped file")
		}
		return
	}

	file, err := w.submitter.Submit(ctx, name, data)
	switch {
	case err == nil:
		log.WithField("file_id", file.ID).Info("Dropped file submitted")
	case errors.Is(err, submission.ErrDuplicate):
		log.Info("Dropped file already ingested")
	case submission.IsValidationError(err):
		log.WithError(err).Warn("Dropped file rejected")
		return
	default:
		log.WithError(err).Error("Failed to submit dropped file")
		return
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("Failed to remove dropped file")
	}
}

// ignored skips hidden files and partial copies.
func ignored(name string) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".tmp", ".part", ".crdownload":
		return true
	}
	return false
}
