package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/showrunner-io/showrunner/pkg/models"
)

// alertNotifier is the slice of the notifier the alert sink needs.
// Satisfied by *notify.Notifier.
type alertNotifier interface {
	Notify(ctx context.Context, topic, actionType, text string)
}

const alertQueueCap = 32

// alertSink forwards critical audit entries to the notifier. Normal
// operation hands entries to a drain goroutine so audit writes never
// block on the transport; when the queue is full the entry is delivered
// inline instead, so a burst slows the caller but a critical is never
// dropped.
type alertSink struct {
	notifier alertNotifier
	queue    chan *models.AuditEntry
	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
}

func newAlertSink(notifier alertNotifier) *alertSink {
	return &alertSink{
		notifier: notifier,
		queue:    make(chan *models.AuditEntry, alertQueueCap),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// CriticalAlert implements services.AlertSink.
func (s *alertSink) CriticalAlert(ctx context.Context, entry *models.AuditEntry) {
	select {
	case <-s.stop:
		// Draining has ended; deliver inline rather than queue into the void.
		s.deliver(ctx, entry)
		return
	default:
	}
	select {
	case s.queue <- entry:
	default:
		s.deliver(ctx, entry)
	}
}

// Start launches the drain goroutine.
func (s *alertSink) Start() {
	s.started = true
	go s.run()
}

// Stop ends draining after flushing whatever is already queued. Safe to
// call without Start.
func (s *alertSink) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.started {
		<-s.done
	}
}

func (s *alertSink) run() {
	defer close(s.done)
	for {
		select {
		case entry := <-s.queue:
			s.deliver(context.Background(), entry)
		case <-s.stop:
			for {
				select {
				case entry := <-s.queue:
					s.deliver(context.Background(), entry)
				default:
					return
				}
			}
		}
	}
}

func (s *alertSink) deliver(ctx context.Context, entry *models.AuditEntry) {
	// "Critical" in the text trips the notifier's urgency keywords, so
	// these escalate past the dedup-and-batch path on their own.
	text := fmt.Sprintf("Critical audit event in %s [%s]: %s", entry.ProjectID, entry.Topic, entry.Message)
	s.notifier.Notify(ctx, "alert", "critical_audit", text)
}
