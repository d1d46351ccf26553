package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/fedpulse/fedpulse/config"
	"github.com/fedpulse/fedpulse/internal/analysis"
	"github.com/fedpulse/fedpulse/internal/enrich"
	"github.com/fedpulse/fedpulse/internal/format"
	"github.com/fedpulse/fedpulse/internal/pipeline"
	"github.com/fedpulse/fedpulse/internal/store"
	"github.com/fedpulse/fedpulse/internal/telemetry"
	"github.com/fedpulse/fedpulse/models"
	"github.com/fedpulse/fedpulse/provider"
)

// Fetcher pulls raw articles from the upstream news API.
type Fetcher interface {
	Retrieve(ctx context.Context, start, end time.Time, pages, perPage int) ([]models.RawArticle, error)
}

// Storage is the persistence surface the runner needs.
type Storage interface {
	UpsertArticle(ctx context.Context, raw models.RawArticle) (bool, error)
	QueryArticles(ctx context.Context, start, end time.Time, trusted []string, limit int) ([]models.Article, error)
	SaveNarrative(ctx context.Context, run store.NarrativeRun) (string, error)
	SaveTopicCollection(ctx context.Context, run store.TopicGroupRun) (string, error)
	SetNextRunTime(ctx context.Context, t time.Time) error
}

// Lock is a single-flight guard so two scheduler processes cannot double-fire
// the same tick.
type Lock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewLock builds a redis-backed run lock.
func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{client: client, key: key, ttl: ttl}
}

// TryAcquire reports whether this process won the tick.
func (l *Lock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, l.key, "1", l.ttl).Result()
}

// Runner executes one full analysis run and drives the tick loop.
type Runner struct {
	cfg       config.SchedulerConfig
	sched     *Scheduler
	fetcher   Fetcher
	storage   Storage
	narrative *pipeline.Sequential
	topics    *pipeline.Parallel
	topicList []string
	agentName string
	lock      *Lock // nil when redis is not configured
	logger    *log.Logger
}

// NewRunner wires the scheduler, the news source, the pipelines and storage
// into a runnable unit.
func NewRunner(cfg config.SchedulerConfig, llm config.LLMConfig, fetcher Fetcher, storage Storage, prov provider.Provider, lock *Lock, agentName string) *Runner {
	logger := log.New(os.Stdout, "[SCHEDULER] ", log.LstdFlags)
	return &Runner{
		cfg:       cfg,
		sched:     New(cfg),
		fetcher:   fetcher,
		storage:   storage,
		narrative: pipeline.NewNarrativePipeline(prov, llm.StageTimeout, logger),
		topics:    pipeline.NewTopicPipeline(prov, analysis.Topics, llm.StageTimeout, logger),
		topicList: analysis.Topics,
		agentName: agentName,
		lock:      lock,
		logger:    logger,
	}
}

// ingest pulls the lookback window from the news API and upserts every
// article. Individual upsert failures are logged and skipped so one bad row
// cannot sink the whole run.
func (r *Runner) ingest(ctx context.Context, now time.Time) error {
	raws, err := r.fetcher.Retrieve(ctx, now.Add(-r.cfg.Lookback), now, r.cfg.FetchPages, r.cfg.FetchPageSize)
	if err != nil {
		return fmt.Errorf("retrieve articles: %w", err)
	}
	created := 0
	for _, raw := range raws {
		isNew, err := r.storage.UpsertArticle(ctx, raw)
		if err != nil {
			r.logger.Printf("upsert %s failed: %v", raw.URI, err)
			continue
		}
		if isNew {
			created++
		}
	}
	r.logger.Printf("ingested %d articles (%d new)", len(raws), created)
	return nil
}

// RunOnce performs one complete analysis run for the given decision: ingest,
// select, format, both pipelines, enrichment and persistence. An empty
// article selection is not an error; there is nothing to analyze. The
// returned bool reports whether at least one result shape was persisted:
// the run counts as having happened once anything is saved, even if the
// other shape failed.
func (r *Runner) RunOnce(ctx context.Context, now time.Time, decision Decision) (bool, error) {
	if err := r.ingest(ctx, now); err != nil {
		return false, err
	}

	var trusted []string
	if r.cfg.FilterTrusted {
		trusted = r.cfg.TrustedSources
	}
	articles, err := r.storage.QueryArticles(ctx, now.Add(-r.cfg.QueryLookback), now, trusted, r.cfg.ArticleLimit)
	if err != nil {
		return false, err
	}

	formatted := format.Format(articles)
	if formatted.Empty() {
		r.logger.Printf("no articles in window, skipping run")
		return true, nil
	}
	payload, err := formatted.PromptJSON()
	if err != nil {
		return false, err
	}

	var announcementAt *time.Time
	if decision.Critical {
		ts := decision.AnnouncementAt
		announcementAt = &ts
	}
	enricher := enrich.New(formatted.Meta)

	// Both pipelines run off the same formatted input; each gets its own
	// state so narrative intermediates never reach the topic stages.
	state := pipeline.State{
		pipeline.KeyArticles:   payload,
		pipeline.KeyRunContext: decision.Context,
	}
	topicState := state.Clone()

	var errs []error
	persisted := false

	if err := r.narrative.Run(ctx, state); err != nil {
		errs = append(errs, fmt.Errorf("narrative pipeline: %w", err))
	} else {
		result, err := pipeline.NarrativeFromState(state)
		if err != nil {
			errs = append(errs, err)
		} else {
			if n := enricher.Narrative(&result); n > 0 {
				telemetry.EnrichmentFallbacks.Add(float64(n))
				r.logger.Printf("%d citation references left unresolved", n)
			}
			id, err := r.storage.SaveNarrative(ctx, store.NarrativeRun{
				Result:         result,
				Articles:       articles,
				DateRangeStart: now.Add(-r.cfg.QueryLookback),
				DateRangeEnd:   now,
				AgentName:      r.agentName,
				Context:        decision.Context,
				AnnouncementAt: announcementAt,
				CreatedAt:      now,
			})
			if err != nil {
				errs = append(errs, fmt.Errorf("save narrative: %w", err))
			} else {
				persisted = true
				r.logger.Printf("narrative %s saved (%d articles)", id, len(articles))
			}
		}
	}

	failed, err := r.topics.Run(ctx, topicState)
	if len(failed) > 0 {
		telemetry.TopicsFailed.Add(float64(len(failed)))
		r.logger.Printf("%d topic stages failed: %v", len(failed), failed)
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("topic pipeline: %w", err))
	} else {
		collection := pipeline.TopicsFromState(topicState, r.topicList)
		if n := enricher.Topics(collection); n > 0 {
			telemetry.EnrichmentFallbacks.Add(float64(n))
			r.logger.Printf("%d topic citation references left unresolved", n)
		}
		id, err := r.storage.SaveTopicCollection(ctx, store.TopicGroupRun{
			Collection:     collection,
			Articles:       articles,
			AgentName:      r.agentName,
			Context:        decision.Context,
			AnnouncementAt: announcementAt,
			CreatedAt:      now,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("save topic collection: %w", err))
		} else {
			persisted = true
			r.logger.Printf("topic group %s saved (%d topics)", id, len(collection))
		}
	}

	return persisted, errors.Join(errs...)
}

// Loop ticks until the context is cancelled. State only advances after a
// successful run, so a failed run is retried on the next due tick.
func (r *Runner) Loop(ctx context.Context) error {
	state := State{}
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	r.logger.Printf("loop started, tick interval %s", r.cfg.TickInterval)
	for {
		select {
		case <-ctx.Done():
			r.logger.Printf("loop stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
		}

		now := time.Now().UTC()
		state = r.tick(ctx, now, state)
	}
}

// tick evaluates one instant, fires if due and returns the state to carry
// forward. The published next-run time is derived from the state actually
// adopted: a fire that persisted nothing has not consumed its slot, and
// readers see the loop retrying instead of a cooldown it never earned.
func (r *Runner) tick(ctx context.Context, now time.Time, state State) State {
	decision := r.sched.Evaluate(now, state)

	mode := "standard"
	if decision.Critical {
		mode = "critical"
	}
	telemetry.TicksEvaluated.WithLabelValues(mode).Inc()

	if decision.Fire && r.acquire(ctx) {
		telemetry.RunsFired.WithLabelValues(decision.Context).Inc()
		r.logger.Printf("firing %s run (context=%s)", mode, decision.Context)
		persisted, err := r.RunOnce(ctx, now, decision)
		if err != nil {
			telemetry.RunsFailed.Inc()
			r.logger.Printf("run failed: %v", err)
		}
		if persisted {
			state = decision.Next
		}
	}

	next := r.sched.NextRun(now, state, decision.Critical)
	if err := r.storage.SetNextRunTime(ctx, next); err != nil {
		r.logger.Printf("publish next run time: %v", err)
	}
	return state
}

// acquire takes the single-flight lock when one is configured.
func (r *Runner) acquire(ctx context.Context) bool {
	if r.lock == nil {
		return true
	}
	ok, err := r.lock.TryAcquire(ctx)
	if err != nil {
		r.logger.Printf("run lock: %v", err)
		return false
	}
	if !ok {
		r.logger.Printf("run lock held elsewhere, skipping tick")
	}
	return ok
}
