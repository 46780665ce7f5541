package ops

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/showrunner-io/showrunner/pkg/metrics"
)

// Inbox polls the drop directory the operator UI writes into and routes
// each file to a handler by filename prefix. Files are deleted once
// handled, successfully or not; only unreadable files survive to the next
// poll. A halted kill switch leaves everything in place.
type Inbox struct {
	dir      string
	handlers *Handlers
	audit    Auditor
	gate     Gate
	logger   *slog.Logger
}

// NewInbox creates the inbox poller and ensures the directory exists.
func NewInbox(dir string, handlers *Handlers, audit Auditor, gate Gate) *Inbox {
	if handlers == nil {
		panic("inbox requires handlers")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.Warn("Failed to create inbox directory", "dir", dir, "error", err)
	}
	return &Inbox{
		dir:      dir,
		handlers: handlers,
		audit:    audit,
		gate:     gate,
		logger:   slog.With("component", "ops.inbox"),
	}
}

// Dir returns the watched directory.
func (in *Inbox) Dir() string { return in.dir }

// Poll processes every routable file currently in the inbox. It returns
// an error only when the directory itself cannot be read; per-file
// failures are audited and the file removed so one poison file never
// wedges the loop.
func (in *Inbox) Poll(ctx context.Context) error {
	if in.gate != nil && in.gate.Halted(ctx) {
		in.logger.Debug("Kill switch active, leaving inbox untouched")
		return nil
	}
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		return fmt.Errorf("reading inbox %s: %w", in.dir, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasSuffix(name, ".tmp") {
			continue
		}
		in.processFile(ctx, name)
	}
	return nil
}

func (in *Inbox) processFile(ctx context.Context, name string) {
	path := filepath.Join(in.dir, name)
	prefix := routePrefix(name)
	if prefix == "" {
		in.logger.Warn("Unroutable inbox file, deleting", "file", name)
		in.remove(name)
		metrics.InboxFiles.WithLabelValues("unknown", "dropped").Inc()
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		in.logger.Warn("Inbox file unreadable, retrying next poll", "file", name, "error", err)
		metrics.InboxFiles.WithLabelValues(prefix, "unreadable").Inc()
		return
	}
	if err := in.handlers.Handle(ctx, prefix, name, data); err != nil {
		in.logger.Error("Inbox file failed", "file", name, "error", err)
		if in.audit != nil {
			in.audit.Warn(ctx, "inbox", fmt.Sprintf("Inbox file %s failed: %v", name, err))
		}
		metrics.InboxFiles.WithLabelValues(prefix, "error").Inc()
	} else {
		in.logger.Info("Inbox file handled", "file", name, "prefix", prefix)
		metrics.InboxFiles.WithLabelValues(prefix, "ok").Inc()
	}
	in.remove(name)
}

func (in *Inbox) remove(name string) {
	if err := os.Remove(filepath.Join(in.dir, name)); err != nil && !os.IsNotExist(err) {
		in.logger.Warn("Failed to remove inbox file", "file", name, "error", err)
	}
}

// routePrefix maps a filename to its handler prefix, or "" when no
// handler claims it.
func routePrefix(name string) string {
	for _, p := range []string{"schedule", "execute", "render", "feedback"} {
		if strings.HasPrefix(name, p+"_") {
			return p
		}
	}
	return ""
}

// Watch mirrors filesystem events into wake() so fresh drops are handled
// without waiting out a poll interval. The periodic poll remains the
// delivery guarantee, so watcher errors degrade to polling rather than
// failing the daemon. Blocks until ctx is done.
func (in *Inbox) Watch(ctx context.Context, wake func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating inbox watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(in.dir); err != nil {
		return fmt.Errorf("watching %s: %w", in.dir, err)
	}
	in.logger.Info("Inbox watcher started", "dir", in.dir)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if strings.HasSuffix(event.Name, ".tmp") {
				continue
			}
			wake()
		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			in.logger.Warn("Inbox watcher error", "error", werr)
		}
	}
}
