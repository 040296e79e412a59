// Package crawler runs the harvest pipeline: a single producer expands the
// category frontier breadth-first while a pool of workers fetches and
// classifies pages from a bounded queue. Progress is checkpointed so an
// interrupted run resumes where it left off.
package crawler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/arvinsingh/fictech-harvester/internal/checkpoint"
	"github.com/arvinsingh/fictech-harvester/internal/classifier"
	"github.com/arvinsingh/fictech-harvester/internal/config"
	"github.com/arvinsingh/fictech-harvester/internal/model"
	"github.com/arvinsingh/fictech-harvester/internal/resilience"
	"github.com/arvinsingh/fictech-harvester/internal/store"
	"github.com/arvinsingh/fictech-harvester/internal/wiki"
)

const defaultQueueCapacity = 256

// Crawler coordinates one harvest run.
type Crawler struct {
	api  wiki.API
	cls  *classifier.Classifier
	ckpt *checkpoint.Manager
	db   store.Store
	cfg  config.HarvestConfig

	retry resilience.RetryConfig
	queue *queue
	st    *state

	// stop is set when the entry cap is reached or the context is
	// cancelled. The producer stops expanding and workers stop dequeuing;
	// whatever remains in the frontier goes into the final checkpoint.
	stop atomic.Bool

	ckptMu    sync.Mutex
	lastSaved int
}

// Option customizes a Crawler.
type Option func(*Crawler)

// WithStore attaches a persistent entry store. Accepted entries are written
// there as they arrive, and a resumed run rehydrates its accepted set from
// it. Without a store, a resumed run keeps its visited sets but loses the
// entries collected before the interruption.
func WithStore(s store.Store) Option {
	return func(c *Crawler) { c.db = s }
}

// WithRetryConfig overrides the retry policy for wiki API calls.
func WithRetryConfig(rc resilience.RetryConfig) Option {
	return func(c *Crawler) { c.retry = rc }
}

// New creates a Crawler. The classifier and checkpoint manager are required;
// a store is optional.
func New(api wiki.API, cls *classifier.Classifier, ckpt *checkpoint.Manager, cfg config.HarvestConfig, opts ...Option) *Crawler {
	capacity := cfg.QueueCapacity
	if capacity < 1 {
		capacity = defaultQueueCapacity
	}

	c := &Crawler{
		api:   api,
		cls:   cls,
		ckpt:  ckpt,
		cfg:   cfg,
		retry: resilience.DefaultRetryConfig(),
		queue: newQueue(capacity),
		st:    newState(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Result is the outcome of one run.
type Result struct {
	RunID   string
	Entries []model.DatasetEntry
	Stats   model.RunStats
}

// Run executes the harvest until the frontier drains, the entry cap is
// reached, or ctx is cancelled. It always writes a final checkpoint unless
// the run completed with nothing left to do, in which case the checkpoint
// file is removed.
func (c *Crawler) Run(ctx context.Context) (*Result, error) {
	restored, err := c.restore(ctx)
	if err != nil {
		return nil, err
	}

	// A cancelled context must also unblock a producer waiting on a full
	// queue and workers waiting on an empty one.
	stopWatch := context.AfterFunc(ctx, c.halt)
	defer stopWatch()

	workers := c.cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	zap.L().Info("harvest starting",
		zap.String("run_id", c.st.runID),
		zap.Int("workers", workers),
		zap.Int("max_depth", c.cfg.MaxDepth),
		zap.Int("max_entries", c.cfg.MaxEntries),
	)

	var g errgroup.Group
	g.Go(func() error {
		c.produce(ctx, restored)
		return nil
	})
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			c.work(ctx)
			return nil
		})
	}
	_ = g.Wait()

	return c.finish(ctx)
}

// halt initiates shutdown: no new expansions, no new dequeues. Closing the
// queue wakes anyone blocked on it.
func (c *Crawler) halt() {
	c.stop.Store(true)
	c.queue.Close()
}

// restore loads the checkpoint if one exists and rebuilds the run state
// from it, returning page tasks that were pending when the checkpoint was
// taken. Without a checkpoint it starts a fresh run from the seeds.
func (c *Crawler) restore(ctx context.Context) ([]pageTask, error) {
	saved, err := c.ckpt.Load()
	if err != nil {
		return nil, err
	}

	if saved == nil {
		return nil, c.startFresh(ctx)
	}

	c.st.runID = saved.RunID
	c.st.runStartedAt = saved.RunStartedAt
	for _, name := range saved.VisitedCategories {
		c.st.visitedCategories[name] = true
	}
	for _, name := range saved.VisitedPages {
		c.st.visitedPages[name] = true
	}

	var restored []pageTask
	for _, item := range saved.Frontier {
		switch item.Kind {
		case model.KindCategory:
			c.st.categories = append(c.st.categories, item)
		case model.KindPage:
			// The discovering category is not part of the persisted
			// frontier, so rehydrated pages carry no source.
			restored = append(restored, pageTask{item: item})
		}
	}

	c.st.entriesEmitted = saved.EntriesEmitted
	if c.db != nil {
		entries, err := c.db.ListEntries(ctx, saved.RunID)
		if err != nil {
			return nil, eris.Wrap(err, "crawler: rehydrate entries")
		}
		c.st.entries = entries
		if len(entries) > c.st.entriesEmitted {
			c.st.entriesEmitted = len(entries)
		}
	}
	c.lastSaved = c.st.entriesEmitted

	zap.L().Info("resuming from checkpoint",
		zap.String("run_id", saved.RunID),
		zap.Int("visited_categories", len(saved.VisitedCategories)),
		zap.Int("visited_pages", len(saved.VisitedPages)),
		zap.Int("frontier", len(saved.Frontier)),
		zap.Int("entries", c.st.entriesEmitted),
	)
	return restored, nil
}

func (c *Crawler) startFresh(ctx context.Context) error {
	seeds := make([]string, 0, len(c.cfg.Seeds))
	for _, s := range c.cfg.Seeds {
		seeds = append(seeds, model.NormalizeTitle(s))
	}

	c.st.runID = uuid.New().String()
	c.st.runStartedAt = time.Now().UTC()
	if c.db != nil {
		run, err := c.db.CreateRun(ctx, seeds)
		if err != nil {
			return eris.Wrap(err, "crawler: create run")
		}
		c.st.runID = run.ID
		c.st.runStartedAt = run.StartedAt
	}

	for _, seed := range seeds {
		if c.st.markCategory(seed) {
			c.st.pushCategory(model.FrontierItem{Kind: model.KindCategory, Name: seed, Depth: 0})
		}
	}
	return nil
}

// produce re-enqueues restored page tasks, then expands categories one at a
// time until the frontier drains or shutdown starts. It owns the queue's
// write side and closes it on exit, which is what lets workers finish.
func (c *Crawler) produce(ctx context.Context, restored []pageTask) {
	defer c.queue.Close()

	for i, task := range restored {
		if err := c.queue.Push(task); err != nil {
			for _, t := range restored[i:] {
				c.st.requeue(t.item)
			}
			return
		}
	}

	for {
		if c.stop.Load() || ctx.Err() != nil {
			return
		}
		item, ok := c.st.nextCategory()
		if !ok {
			return
		}
		c.expand(ctx, item)
	}
}

// expand fetches the members of one category, enqueues its unseen pages at
// the category's depth, and appends its unseen subcategories to the
// frontier one level deeper. Subcategories beyond the depth limit are
// dropped; their pages are never reached.
func (c *Crawler) expand(ctx context.Context, item model.FrontierItem) {
	members, err := resilience.DoVal(ctx, c.retryFor("expand category", item.Name),
		func(ctx context.Context) ([]model.CategoryMember, error) {
			return c.api.FetchCategoryMembers(ctx, item.Name)
		})
	if err != nil {
		if ctx.Err() != nil {
			c.st.requeueCategory(item)
			return
		}
		if eris.Is(err, wiki.ErrNotFound) {
			zap.L().Debug("category empty or missing", zap.String("category", item.Name))
		} else {
			zap.L().Warn("category expansion failed, skipping",
				zap.String("category", item.Name),
				zap.Error(err),
			)
			c.st.countFetchFailure()
		}
		return
	}

	var pages, subcats int
	for _, m := range members {
		name := model.NormalizeTitle(m.Title)
		if m.IsSubcategory {
			if item.Depth >= c.cfg.MaxDepth {
				continue
			}
			if c.st.markCategory(name) {
				c.st.pushCategory(model.FrontierItem{Kind: model.KindCategory, Name: name, Depth: item.Depth + 1})
				subcats++
			}
			continue
		}

		if !c.st.markPage(name) {
			continue
		}
		task := pageTask{
			item:   model.FrontierItem{Kind: model.KindPage, Name: name, Depth: item.Depth},
			source: item.Name,
		}
		if err := c.queue.Push(task); err != nil {
			// Shutdown mid-expansion. Requeue the whole category; members
			// already marked visited are skipped when it re-expands.
			c.st.requeueCategory(item)
			return
		}
		pages++
	}

	zap.L().Debug("category expanded",
		zap.String("category", item.Name),
		zap.Int("depth", item.Depth),
		zap.Int("pages", pages),
		zap.Int("subcategories", subcats),
	)
}

// work drains page tasks until the queue closes or shutdown starts. A task
// popped during shutdown is requeued for the final checkpoint instead of
// being processed.
func (c *Crawler) work(ctx context.Context) {
	for {
		task, ok := c.queue.Pop()
		if !ok {
			return
		}
		if c.stop.Load() || ctx.Err() != nil {
			c.st.requeue(task.item)
			return
		}
		c.processPage(ctx, task)
	}
}

func (c *Crawler) processPage(ctx context.Context, task pageTask) {
	page, err := resilience.DoVal(ctx, c.retryFor("fetch page", task.item.Name),
		func(ctx context.Context) (*model.PageContent, error) {
			return c.api.FetchPageContent(ctx, task.item.Name)
		})
	if err != nil {
		if ctx.Err() != nil {
			c.st.requeue(task.item)
			return
		}
		if eris.Is(err, wiki.ErrNotFound) {
			zap.L().Debug("page missing", zap.String("page", task.item.Name))
		} else {
			zap.L().Warn("page fetch failed, skipping",
				zap.String("page", task.item.Name),
				zap.Error(err),
			)
		}
		c.st.countFetchFailure()
		return
	}

	res := c.cls.Classify(page.Text)
	if res.Rejected {
		c.st.countRejection(res.Reason)
		zap.L().Debug("page rejected",
			zap.String("page", task.item.Name),
			zap.String("reason", string(res.Reason)),
		)
		return
	}

	c.accept(ctx, task, model.NewDatasetEntry(*page, task.source, res))
}

func (c *Crawler) accept(ctx context.Context, task pageTask, entry model.DatasetEntry) {
	if c.db != nil {
		inserted, err := c.db.InsertEntry(ctx, c.st.runID, entry)
		if err != nil {
			if ctx.Err() != nil {
				c.st.requeue(task.item)
				return
			}
			zap.L().Warn("entry persist failed",
				zap.String("entry", entry.Name),
				zap.Error(err),
			)
		} else if !inserted {
			return
		}
	}

	snap, reachedMax := c.st.admit(entry, c.cfg.CheckpointInterval, c.cfg.MaxEntries, c.queue)

	zap.L().Info("entry accepted",
		zap.String("entry", entry.Name),
		zap.String("tech_type", string(entry.TechType)),
		zap.Float64("confidence", entry.Confidence),
	)

	if snap != nil {
		c.saveCheckpoint(snap)
	}
	if reachedMax {
		zap.L().Info("entry limit reached", zap.Int("max_entries", c.cfg.MaxEntries))
		c.halt()
	}
}

// saveCheckpoint persists a snapshot unless a newer one was already saved.
// Snapshots are created under the state lock, so the emitted count orders
// them totally.
func (c *Crawler) saveCheckpoint(snap *checkpoint.State) {
	c.ckptMu.Lock()
	defer c.ckptMu.Unlock()

	if snap.EntriesEmitted < c.lastSaved {
		return
	}
	if err := c.ckpt.Save(snap); err != nil {
		zap.L().Warn("checkpoint save failed", zap.Error(err))
		return
	}
	c.lastSaved = snap.EntriesEmitted
}

func (c *Crawler) finish(ctx context.Context) (*Result, error) {
	cancelled := ctx.Err() != nil
	ctx = context.WithoutCancel(ctx)

	snap := c.st.snapshot(c.queue)
	if cancelled || len(snap.Frontier) > 0 {
		c.saveCheckpoint(snap)
	} else if err := c.ckpt.Clear(); err != nil {
		zap.L().Warn("checkpoint cleanup failed", zap.Error(err))
	}

	stats := c.st.buildStats()
	if c.db != nil && !cancelled {
		if err := c.db.FinishRun(ctx, c.st.runID, stats); err != nil {
			zap.L().Warn("run finalize failed", zap.Error(err))
		}
	}

	zap.L().Info("harvest finished",
		zap.String("run_id", c.st.runID),
		zap.Int("entries", stats.TotalEntries),
		zap.Int("categories_visited", stats.CategoriesVisited),
		zap.Int("pages_visited", stats.PagesVisited),
		zap.Int("failed_fetches", stats.FailedFetches),
		zap.Bool("interrupted", cancelled),
	)

	return &Result{
		RunID:   c.st.runID,
		Entries: c.st.entriesSnapshot(),
		Stats:   *stats,
	}, nil
}

func (c *Crawler) retryFor(operation, unit string) resilience.RetryConfig {
	rc := c.retry
	rc.OnRetry = resilience.RetryLogger(operation, unit)
	return rc
}
