package ops

import (
	"context"
	"fmt"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/platform"
	"github.com/showrunner-io/showrunner/pkg/sched"
	"github.com/showrunner-io/showrunner/pkg/services"
)

type stubApprovals struct {
	marked       []int64
	markErr      error
	pending      []models.Approval
	pendingErr   error
	lastExecuted *models.Approval
	lastErr      error
}

func (s *stubApprovals) MarkExecuted(_ context.Context, id int64) (bool, error) {
	if s.markErr != nil {
		return false, s.markErr
	}
	s.marked = append(s.marked, id)
	return true, nil
}

func (s *stubApprovals) GetPending(context.Context, string) ([]models.Approval, error) {
	return s.pending, s.pendingErr
}

func (s *stubApprovals) GetLastExecuted(context.Context, string) (*models.Approval, error) {
	return s.lastExecuted, s.lastErr
}

type stubSchedules struct {
	requests []services.ScheduleRequest
	err      error
}

func (s *stubSchedules) Schedule(_ context.Context, req services.ScheduleRequest) (*models.ScheduledContent, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.requests = append(s.requests, req)
	return &models.ScheduledContent{
		JobID:         fmt.Sprintf("job-%d", len(s.requests)),
		ContentType:   req.ContentType,
		ContentData:   req.ContentData,
		ScheduledTime: req.ScheduledTime,
		Status:        models.SchedulePending,
	}, nil
}

type stubMemories struct {
	events []string
	err    error
}

func (s *stubMemories) AddEvent(_ context.Context, title, summary, category string, significance int) (*models.Event, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.events = append(s.events, fmt.Sprintf("%s [%s/%d]: %s", title, category, significance, summary))
	return &models.Event{ID: int64(len(s.events)), Title: title}, nil
}

type stubNotifier struct {
	sent []string
}

func (s *stubNotifier) Notify(_ context.Context, topic, actionType, text string) {
	s.sent = append(s.sent, fmt.Sprintf("%s/%s: %s", topic, actionType, text))
}

type stubAuditor struct {
	infos []string
	warns []string
}

func (s *stubAuditor) Info(_ context.Context, topic, message string) {
	s.infos = append(s.infos, topic+": "+message)
}

func (s *stubAuditor) Warn(_ context.Context, topic, message string) {
	s.warns = append(s.warns, topic+": "+message)
}

type stubGate struct{ halted bool }

func (s *stubGate) Halted(context.Context) bool { return s.halted }

// stubTwitter overrides just the publishing calls; everything else keeps
// the disabled client's not-configured behavior.
type stubTwitter struct {
	platform.DisabledTwitter
	posts    []string
	replies  []string
	postErr  error
	replyErr error
	nextID   int
}

func (s *stubTwitter) Post(_ context.Context, text string) (string, error) {
	if s.postErr != nil {
		return "", s.postErr
	}
	s.nextID++
	s.posts = append(s.posts, text)
	return fmt.Sprintf("tw-%d", s.nextID), nil
}

func (s *stubTwitter) Reply(_ context.Context, toTweetID, text string) (string, error) {
	if s.replyErr != nil {
		return "", s.replyErr
	}
	s.nextID++
	s.replies = append(s.replies, toTweetID+" <- "+text)
	return fmt.Sprintf("tw-%d", s.nextID), nil
}

type stubDistributor struct {
	platforms []string
	failOn    map[string]bool
	calls     []string
}

func (s *stubDistributor) Distribute(_ context.Context, target, videoPath, _ string) (string, error) {
	s.calls = append(s.calls, target+":"+videoPath)
	if s.failOn[target] {
		return "", fmt.Errorf("%s upload rejected", target)
	}
	return "https://" + target + ".example/v/1", nil
}

func (s *stubDistributor) Platforms() []string { return s.platforms }

type stubRenderer struct {
	req platform.RenderRequest
	res *platform.RenderResult
	err error
}

func (s *stubRenderer) Render(_ context.Context, req platform.RenderRequest) (*platform.RenderResult, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return s.res, nil
}

type stubGenerator struct {
	batches []int
	n       int
	err     error
}

func (s *stubGenerator) GenerateBatch(_ context.Context, n int) (int, error) {
	if s.err != nil {
		return 0, s.err
	}
	s.batches = append(s.batches, n)
	return s.n, nil
}

// stubRegistry captures scheduler executor registrations.
type stubRegistry struct {
	executors map[string]sched.Executor
}

func (s *stubRegistry) RegisterExecutor(contentType string, executor sched.Executor) {
	if s.executors == nil {
		s.executors = make(map[string]sched.Executor)
	}
	s.executors[contentType] = executor
}

func executedAt(ago time.Duration) *time.Time {
	t := time.Now().Add(-ago)
	return &t
}
