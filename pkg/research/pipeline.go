package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/showrunner-io/showrunner/pkg/config"
	"github.com/showrunner-io/showrunner/pkg/metrics"
	"github.com/showrunner-io/showrunner/pkg/models"
	"github.com/showrunner-io/showrunner/pkg/modelrouter"
)

// Cycle kinds. The full cycle runs every registered scraper; hot and warm
// run the subsets named in configuration.
const (
	CycleFull = "full"
	CycleHot  = "hot"
	CycleWarm = "warm"
)

const (
	// scrapeTimeout bounds one scraper's whole run, on top of the
	// per-request HTTP timeouts inside it.
	scrapeTimeout = 2 * time.Minute

	// evaluateBatch caps verdicts per cycle. Leftovers stay pending and
	// the next cycle picks them up oldest first.
	evaluateBatch = 100

	scrapeConcurrency = 4
)

// Store is the research persistence slice the pipeline drives. Satisfied
// by *services.ResearchService.
type Store interface {
	FilterNew(ctx context.Context, sourceIDs []string) ([]string, error)
	SaveItems(ctx context.Context, items []*models.ResearchItem) (int, error)
	MarkEvaluated(ctx context.Context, id int64, eval models.Evaluation) (*models.ResearchItem, error)
	PendingEvaluation(ctx context.Context, limit int) ([]*models.ResearchItem, error)
	SaveDigest(ctx context.Context, digest *models.Digest) (*models.Digest, error)
}

// Deps wires the pipeline's collaborators at construction time.
type Deps struct {
	Store     Store
	Memory    Memories
	Approvals Approvals
	Model     Model
	Notifier  Notifier

	Config  *config.ResearchConfig
	Persona *config.PersonaConfig
	Project string

	// KnowledgeDir and TodoPath are resolved file locations.
	KnowledgeDir string
	TodoPath     string
}

// Pipeline runs scrape, dedup, evaluate, route as one cycle.
type Pipeline struct {
	deps      Deps
	cfg       *config.ResearchConfig
	evaluator *Evaluator
	router    *Router

	mu       sync.Mutex
	scrapers []Scraper

	logger *slog.Logger
}

// New creates a pipeline and registers the scrapers the configuration
// provides sources for. Further scrapers can be added with Register.
func New(deps Deps) *Pipeline {
	if deps.Store == nil {
		panic("research pipeline requires a store")
	}
	if deps.Config == nil {
		deps.Config = config.DefaultResearchConfig()
	}
	p := &Pipeline{
		deps:      deps,
		cfg:       deps.Config,
		evaluator: NewEvaluator(deps.Model, deps.Config),
		router: NewRouter(deps.Approvals, deps.Memory, deps.Notifier, deps.Model,
			deps.Persona, deps.Project, deps.KnowledgeDir, deps.TodoPath),
		logger: slog.Default().With("component", "research"),
	}

	if len(deps.Config.Feeds) > 0 {
		p.Register(NewFeedScraper(deps.Config.Feeds))
	}
	if len(deps.Config.HNQueries) > 0 {
		p.Register(NewHNScraper(deps.Config.HNQueries))
	}
	if len(deps.Config.Subreddits) > 0 {
		p.Register(NewRedditScraper(deps.Config.Subreddits))
	}
	if len(deps.Config.GitHubRepos) > 0 {
		p.Register(NewGitHubScraper(deps.Config.GitHubRepos))
	}
	if len(deps.Config.ArxivQueries) > 0 {
		p.Register(NewArxivScraper(deps.Config.ArxivQueries))
	}
	return p
}

// Register adds a scraper. Registering a name again replaces the earlier
// scraper.
func (p *Pipeline) Register(s Scraper) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.scrapers {
		if existing.Name() == s.Name() {
			p.scrapers[i] = s
			return
		}
	}
	p.scrapers = append(p.scrapers, s)
}

// ScraperNames lists registered scrapers in registration order.
func (p *Pipeline) ScraperNames() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, len(p.scrapers))
	for i, s := range p.scrapers {
		names[i] = s.Name()
	}
	return names
}

func (p *Pipeline) scrapersFor(kind string) []Scraper {
	p.mu.Lock()
	defer p.mu.Unlock()

	var wanted []string
	switch kind {
	case CycleHot:
		wanted = p.cfg.HotScrapers
	case CycleWarm:
		wanted = p.cfg.WarmScrapers
	default:
		return append([]Scraper(nil), p.scrapers...)
	}

	byName := make(map[string]Scraper, len(p.scrapers))
	for _, s := range p.scrapers {
		byName[s.Name()] = s
	}
	var picked []Scraper
	for _, name := range wanted {
		if s, ok := byName[name]; ok {
			picked = append(picked, s)
		}
	}
	return picked
}

// Run executes one research cycle and returns its persisted digest.
// Scraper and evaluation failures land in the digest's error list; only
// storage failures abort the cycle.
func (p *Pipeline) Run(ctx context.Context, kind string) (*models.Digest, error) {
	switch kind {
	case CycleFull, CycleHot, CycleWarm:
	default:
		return nil, fmt.Errorf("unknown cycle kind %q", kind)
	}

	started := time.Now()
	digest := &models.Digest{Kind: kind}
	cycleErrs := []string{}

	scraped := p.scrape(ctx, kind, &cycleErrs)
	digest.Scraped = len(scraped)

	fresh, err := p.dedupe(ctx, scraped)
	if err != nil {
		return nil, fmt.Errorf("dedup failed: %w", err)
	}
	digest.NewItems = len(fresh)
	if len(fresh) > 0 {
		if _, err := p.deps.Store.SaveItems(ctx, fresh); err != nil {
			return nil, fmt.Errorf("saving items: %w", err)
		}
	}

	if err := p.evaluate(ctx, digest, &cycleErrs); err != nil {
		return nil, err
	}

	errsJSON, err := json.Marshal(cycleErrs)
	if err != nil {
		errsJSON = []byte("[]")
	}
	digest.Errors = errsJSON

	saved, err := p.deps.Store.SaveDigest(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("saving digest: %w", err)
	}

	p.logger.Info("Research cycle finished",
		"kind", kind,
		"scraped", saved.Scraped,
		"new", saved.NewItems,
		"relevant", saved.Relevant,
		"errors", len(cycleErrs),
		"duration", time.Since(started).Round(time.Millisecond))

	if p.deps.Notifier != nil {
		p.deps.Notifier.Notify(ctx, "research", "digest", digestText(saved, len(cycleErrs)))
	}
	return saved, nil
}

// scrape fans out over the cycle's scrapers with bounded concurrency.
func (p *Pipeline) scrape(ctx context.Context, kind string, cycleErrs *[]string) []*models.ResearchItem {
	scrapers := p.scrapersFor(kind)

	var (
		mu    sync.Mutex
		items []*models.ResearchItem
	)
	var g errgroup.Group
	g.SetLimit(scrapeConcurrency)
	for _, s := range scrapers {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, scrapeTimeout)
			defer cancel()

			got, err := s.Scrape(sctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				p.logger.Warn("Scraper failed", "scraper", s.Name(), "error", err)
				*cycleErrs = append(*cycleErrs, fmt.Sprintf("%s: %v", s.Name(), err))
			}
			if len(got) > 0 {
				metrics.ResearchScraped.WithLabelValues(s.Name()).Add(float64(len(got)))
				items = append(items, got...)
			}
			return nil
		})
	}
	_ = g.Wait()
	return items
}

// dedupe drops items already stored in a previous run plus duplicates
// inside this batch.
func (p *Pipeline) dedupe(ctx context.Context, scraped []*models.ResearchItem) ([]*models.ResearchItem, error) {
	if len(scraped) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(scraped))
	for _, item := range scraped {
		ids = append(ids, item.SourceID)
	}
	freshIDs, err := p.deps.Store.FilterNew(ctx, ids)
	if err != nil {
		return nil, err
	}
	keep := make(map[string]bool, len(freshIDs))
	for _, id := range freshIDs {
		keep[id] = true
	}
	var fresh []*models.ResearchItem
	for _, item := range scraped {
		if keep[item.SourceID] {
			keep[item.SourceID] = false
			fresh = append(fresh, item)
		}
	}
	return fresh, nil
}

// evaluate grades pending items (including leftovers from earlier cycles)
// and routes the verdicts. Content actions are rate controlled: only the
// top scorers become drafts, the rest are downgraded to knowledge.
func (p *Pipeline) evaluate(ctx context.Context, digest *models.Digest, cycleErrs *[]string) error {
	var goals []*models.Goal
	if p.deps.Memory != nil {
		var err error
		goals, err = p.deps.Memory.ActiveGoals(ctx)
		if err != nil {
			p.logger.Warn("Active goals unavailable, filtering on extras only", "error", err)
			*cycleErrs = append(*cycleErrs, fmt.Sprintf("goals: %v", err))
		}
	}
	keywords := GoalKeywords(goals, p.cfg.ExtraKeywords)

	pending, err := p.deps.Store.PendingEvaluation(ctx, evaluateBatch)
	if err != nil {
		return fmt.Errorf("loading pending items: %w", err)
	}

	type candidate struct {
		item    *models.ResearchItem
		verdict *models.Evaluation
	}
	var contentCandidates []candidate
	modelDown := false

	for _, item := range pending {
		if ctx.Err() != nil {
			break
		}

		matched := MatchKeywords(item, keywords)
		if len(matched) == 0 {
			if _, err := p.deps.Store.MarkEvaluated(ctx, item.ID, IgnoredEvaluation("no keyword overlap with active goals")); err != nil {
				*cycleErrs = append(*cycleErrs, fmt.Sprintf("mark %s: %v", item.SourceID, err))
			}
			continue
		}
		if modelDown {
			// Leave matched items pending; the next cycle retries them.
			continue
		}

		verdict, err := p.evaluator.Evaluate(ctx, item, goals, matched)
		if err != nil {
			*cycleErrs = append(*cycleErrs, fmt.Sprintf("evaluate %s: %v", item.SourceID, err))
			if errors.Is(err, modelrouter.ErrBudgetExceeded) ||
				errors.Is(err, modelrouter.ErrUnavailable) ||
				errors.Is(err, modelrouter.ErrNotConfigured) {
				modelDown = true
			}
			continue
		}
		if _, err := p.deps.Store.MarkEvaluated(ctx, item.ID, *verdict); err != nil {
			*cycleErrs = append(*cycleErrs, fmt.Sprintf("mark %s: %v", item.SourceID, err))
			continue
		}
		if verdict.SuggestedAction != "ignore" {
			digest.Relevant++
		}

		switch verdict.SuggestedAction {
		case "content":
			contentCandidates = append(contentCandidates, candidate{item: item, verdict: verdict})
			continue
		case "alert":
			digest.Alerts++
		case "task":
			digest.Tasks++
		case "knowledge", "watch":
			digest.Knowledge++
		case "ignore":
			continue
		}
		if err := p.router.Dispatch(ctx, verdict.SuggestedAction, item, verdict); err != nil {
			*cycleErrs = append(*cycleErrs, fmt.Sprintf("route %s: %v", item.SourceID, err))
		}
	}

	sort.SliceStable(contentCandidates, func(i, j int) bool {
		return contentCandidates[i].verdict.Relevance > contentCandidates[j].verdict.Relevance
	})
	maxContent := p.cfg.MaxContentPerCycle
	if maxContent <= 0 {
		maxContent = 5
	}
	for i, cand := range contentCandidates {
		action := "knowledge"
		if i < maxContent && cand.verdict.Relevance >= p.cfg.ContentScoreThreshold {
			action = "content"
		}
		if err := p.router.Dispatch(ctx, action, cand.item, cand.verdict); err != nil {
			*cycleErrs = append(*cycleErrs, fmt.Sprintf("route %s: %v", cand.item.SourceID, err))
			continue
		}
		if action == "content" {
			digest.Content++
		} else {
			digest.Knowledge++
		}
	}
	return nil
}

func digestText(d *models.Digest, errCount int) string {
	return fmt.Sprintf(
		"Research digest (%s): scraped %d, new %d, relevant %d. Routed %d alerts, %d tasks, %d content drafts, %d knowledge notes. %d errors.",
		d.Kind, d.Scraped, d.NewItems, d.Relevant, d.Alerts, d.Tasks, d.Content, d.Knowledge, errCount)
}
