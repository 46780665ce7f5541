package ops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/platform"
	"github.com/showrunner-io/showrunner/pkg/sched"
)

// postedDedupWindow bounds the in-process repeat-post guard. The durable
// guard is the schedule table's exactly-once claim; this only stops a
// double invocation inside one process lifetime.
const postedDedupWindow = 24 * time.Hour

// Executors publishes approved content. Each content type decodes its own
// payload, performs the network call, remembers the result in the memory
// store, and marks the originating approval executed when the payload
// carries an approval_id.
type Executors struct {
	twitter     platform.Twitter
	distributor platform.Distributor
	memory      Memories
	approvals   Approvals
	notifier    Notifier
	logger      *slog.Logger

	mu     sync.Mutex
	posted map[string]time.Time
}

// ExecutorDeps wires the executor collaborators.
type ExecutorDeps struct {
	Twitter     platform.Twitter
	Distributor platform.Distributor
	Memory      Memories
	Approvals   Approvals
	Notifier    Notifier
}

// NewExecutors creates the content executors. A nil Twitter falls back to
// the disabled client so every run fails with a clear configuration error
// instead of a panic.
func NewExecutors(deps ExecutorDeps) *Executors {
	if deps.Twitter == nil {
		deps.Twitter = platform.DisabledTwitter{}
	}
	return &Executors{
		twitter:     deps.Twitter,
		distributor: deps.Distributor,
		memory:      deps.Memory,
		approvals:   deps.Approvals,
		notifier:    deps.Notifier,
		logger:      slog.With("component", "ops.executors"),
	}
}

// ContentTypes lists every content type Run can dispatch.
func ContentTypes() []string {
	return []string{"tweet", "thread", "reply", "video_distribute"}
}

// Run executes one piece of approved content and returns a JSON result
// summary. It does not notify; callers that want an operator message wrap
// it (Register for the scheduler path, the execute_ handler for the inbox
// path) so each publication produces exactly one notification.
func (e *Executors) Run(ctx context.Context, contentType string, data json.RawMessage) (string, error) {
	switch contentType {
	case "tweet":
		return e.runTweet(ctx, data)
	case "thread":
		return e.runThread(ctx, data)
	case "reply":
		return e.runReply(ctx, data)
	case "video_distribute":
		return e.runVideoDistribute(ctx, data)
	default:
		return "", fmt.Errorf("no executor for content type %q", contentType)
	}
}

// ExecutorRegistry is where Register installs the content types.
// Satisfied by *sched.Runner.
type ExecutorRegistry interface {
	RegisterExecutor(contentType string, executor sched.Executor)
}

// Register installs every content type on the scheduler, wrapped so a
// fired job also sends the operator notification.
func (e *Executors) Register(r ExecutorRegistry) {
	for _, contentType := range ContentTypes() {
		r.RegisterExecutor(contentType, sched.ExecutorFunc(
			func(ctx context.Context, job *models.ScheduledContent) (string, error) {
				result, err := e.Run(ctx, contentType, job.ContentData)
				if err != nil {
					return "", err
				}
				e.notify(ctx, contentType, fmt.Sprintf("Published scheduled %s: %s",
					contentType, clipResult(result, 140)))
				return result, nil
			}))
	}
}

type tweetPayload struct {
	ApprovalID int64  `json:"approval_id"`
	Text       string `json:"text"`
}

func (e *Executors) runTweet(ctx context.Context, data json.RawMessage) (string, error) {
	var p tweetPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("decoding tweet payload: %w", err)
	}
	if strings.TrimSpace(p.Text) == "" {
		return "", fmt.Errorf("tweet payload has no text")
	}
	if e.alreadyPosted("tweet:" + p.Text) {
		e.logger.Warn("Skipping repeat tweet", "text", clipResult(p.Text, 60))
		return `{"skipped":"duplicate"}`, nil
	}
	tweetID, err := e.twitter.Post(ctx, p.Text)
	if err != nil {
		return "", fmt.Errorf("posting tweet: %w", err)
	}
	e.markPosted("tweet:" + p.Text)
	e.remember(ctx, "Tweet posted", p.Text)
	e.markExecuted(ctx, p.ApprovalID)
	return fmt.Sprintf(`{"tweet_id":%q}`, tweetID), nil
}

type threadPayload struct {
	ApprovalID int64    `json:"approval_id"`
	Tweets     []string `json:"tweets"`
}

func (e *Executors) runThread(ctx context.Context, data json.RawMessage) (string, error) {
	var p threadPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("decoding thread payload: %w", err)
	}
	if len(p.Tweets) == 0 {
		return "", fmt.Errorf("thread payload has no tweets")
	}
	joined := strings.Join(p.Tweets, "\n")
	if e.alreadyPosted("thread:" + joined) {
		e.logger.Warn("Skipping repeat thread", "first", clipResult(p.Tweets[0], 60))
		return `{"skipped":"duplicate"}`, nil
	}
	ids := make([]string, 0, len(p.Tweets))
	for i, text := range p.Tweets {
		var id string
		var err error
		if i == 0 {
			id, err = e.twitter.Post(ctx, text)
		} else {
			id, err = e.twitter.Reply(ctx, ids[i-1], text)
		}
		if err != nil {
			return "", fmt.Errorf("posting thread tweet %d of %d: %w", i+1, len(p.Tweets), err)
		}
		ids = append(ids, id)
	}
	e.markPosted("thread:" + joined)
	e.remember(ctx, fmt.Sprintf("Thread posted (%d tweets)", len(ids)), p.Tweets[0])
	e.markExecuted(ctx, p.ApprovalID)
	out, err := json.Marshal(map[string][]string{"tweet_ids": ids})
	if err != nil {
		return "", fmt.Errorf("encoding thread result: %w", err)
	}
	return string(out), nil
}

type replyPayload struct {
	ApprovalID int64  `json:"approval_id"`
	TweetID    string `json:"tweet_id"`
	Text       string `json:"text"`
}

func (e *Executors) runReply(ctx context.Context, data json.RawMessage) (string, error) {
	var p replyPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("decoding reply payload: %w", err)
	}
	if p.TweetID == "" {
		return "", fmt.Errorf("reply payload has no tweet_id")
	}
	if strings.TrimSpace(p.Text) == "" {
		return "", fmt.Errorf("reply payload has no text")
	}
	if e.alreadyPosted("reply:" + p.TweetID + ":" + p.Text) {
		e.logger.Warn("Skipping repeat reply", "tweet_id", p.TweetID)
		return `{"skipped":"duplicate"}`, nil
	}
	replyID, err := e.twitter.Reply(ctx, p.TweetID, p.Text)
	if err != nil {
		return "", fmt.Errorf("posting reply to %s: %w", p.TweetID, err)
	}
	e.markPosted("reply:" + p.TweetID + ":" + p.Text)
	e.remember(ctx, "Reply posted to "+p.TweetID, p.Text)
	e.markExecuted(ctx, p.ApprovalID)
	return fmt.Sprintf(`{"tweet_id":%q}`, replyID), nil
}

type videoPayload struct {
	ApprovalID int64  `json:"approval_id"`
	VideoPath  string `json:"video_path"`
	Caption    string `json:"caption"`
}

type distributeResult struct {
	Distributed []string                     `json:"distributed"`
	Failed      []string                     `json:"failed,omitempty"`
	Results     map[string]map[string]string `json:"results"`
}

func (e *Executors) runVideoDistribute(ctx context.Context, data json.RawMessage) (string, error) {
	var p videoPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", fmt.Errorf("decoding video payload: %w", err)
	}
	if p.VideoPath == "" {
		return "", fmt.Errorf("video payload has no video_path")
	}
	if e.distributor == nil {
		return "", fmt.Errorf("video distribution: %w", platform.ErrNotConfigured)
	}
	platforms := e.distributor.Platforms()
	if len(platforms) == 0 {
		return "", fmt.Errorf("video distribution: no platforms configured")
	}
	res := distributeResult{Results: make(map[string]map[string]string)}
	for _, target := range platforms {
		url, err := e.distributor.Distribute(ctx, target, p.VideoPath, p.Caption)
		if err != nil {
			e.logger.Warn("Distribution failed", "platform", target, "error", err)
			res.Failed = append(res.Failed, target)
			continue
		}
		res.Distributed = append(res.Distributed, target)
		res.Results[target] = map[string]string{"url": url}
	}
	if len(res.Distributed) == 0 {
		return "", fmt.Errorf("video distribution failed on all %d platforms", len(platforms))
	}
	e.remember(ctx, fmt.Sprintf("Video distributed to %s", strings.Join(res.Distributed, ", ")), p.Caption)
	e.markExecuted(ctx, p.ApprovalID)
	out, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encoding distribution result: %w", err)
	}
	return string(out), nil
}

// remember writes a memory event for published content. Memory failures
// never fail a publication that already went out.
func (e *Executors) remember(ctx context.Context, title, body string) {
	if e.memory == nil {
		return
	}
	if _, err := e.memory.AddEvent(ctx, title, clipResult(body, 200), "content", 5); err != nil {
		e.logger.Warn("Failed to record content event", "title", title, "error", err)
	}
}

// markExecuted closes the originating approval. The content is already
// live, so a marking failure is logged and left for the recovery sweep.
func (e *Executors) markExecuted(ctx context.Context, approvalID int64) {
	if approvalID <= 0 || e.approvals == nil {
		return
	}
	if _, err := e.approvals.MarkExecuted(ctx, approvalID); err != nil {
		e.logger.Warn("Failed to mark approval executed", "approval_id", approvalID, "error", err)
	}
}

func (e *Executors) notify(ctx context.Context, actionType, text string) {
	if e.notifier == nil {
		return
	}
	e.notifier.Notify(ctx, "content", actionType, text)
}

func (e *Executors) alreadyPosted(key string) bool {
	h := hashKey(key)
	e.mu.Lock()
	defer e.mu.Unlock()
	cutoff := time.Now().Add(-postedDedupWindow)
	for k, at := range e.posted {
		if at.Before(cutoff) {
			delete(e.posted, k)
		}
	}
	_, seen := e.posted[h]
	return seen
}

func (e *Executors) markPosted(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.posted == nil {
		e.posted = make(map[string]time.Time)
	}
	e.posted[hashKey(key)] = time.Now()
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func clipResult(s string, max int) string {
	runes := []rune(s)
	if max <= 0 || len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
