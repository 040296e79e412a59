package crawler

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arvinsingh/fictech-harvester/internal/checkpoint"
	"github.com/arvinsingh/fictech-harvester/internal/classifier"
	"github.com/arvinsingh/fictech-harvester/internal/config"
	"github.com/arvinsingh/fictech-harvester/internal/model"
	"github.com/arvinsingh/fictech-harvester/internal/resilience"
	"github.com/arvinsingh/fictech-harvester/internal/store"
	"github.com/arvinsingh/fictech-harvester/internal/wiki"
)

// fakeAPI serves a fixed category tree and page set, with optional
// injected transient failures.
type fakeAPI struct {
	mu         sync.Mutex
	categories map[string][]model.CategoryMember
	pages      map[string]string
	failPages  map[string]int
	pageCalls  map[string]int

	onPageFetch func(title string)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		categories: make(map[string][]model.CategoryMember),
		pages:      make(map[string]string),
		failPages:  make(map[string]int),
		pageCalls:  make(map[string]int),
	}
}

func (f *fakeAPI) addCategory(name string, subcats []string, pages []string) {
	var members []model.CategoryMember
	for _, s := range subcats {
		members = append(members, model.CategoryMember{Title: "Category:" + s, IsSubcategory: true})
	}
	for _, p := range pages {
		members = append(members, model.CategoryMember{Title: p})
	}
	f.categories[name] = members
}

func (f *fakeAPI) addPage(title, text string) {
	f.pages[title] = text
}

func (f *fakeAPI) FetchCategoryMembers(ctx context.Context, category string) ([]model.CategoryMember, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	members, ok := f.categories[category]
	if !ok {
		return nil, eris.Wrapf(wiki.ErrNotFound, "category %q", category)
	}
	out := make([]model.CategoryMember, len(members))
	copy(out, members)
	return out, nil
}

func (f *fakeAPI) FetchPageContent(ctx context.Context, title string) (*model.PageContent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.onPageFetch != nil {
		f.onPageFetch(title)
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.pageCalls[title]++
	if f.failPages[title] > 0 {
		f.failPages[title]--
		return nil, resilience.NewTransientError(eris.New("injected failure"), 503)
	}

	text, ok := f.pages[title]
	if !ok {
		return nil, eris.Wrapf(wiki.ErrNotFound, "page %q", title)
	}
	return &model.PageContent{
		Title: title,
		Text:  text,
		URL:   "https://example.org/wiki/" + strings.ReplaceAll(title, " ", "_"),
	}, nil
}

func (f *fakeAPI) callCount(title string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pageCalls[title]
}

// weaponText is long enough to pass the length gate and matches several
// weapon keywords plus context terms.
func weaponText(name string) string {
	head := name + " is a fictional energy weapon. The blaster emits a plasma blade used in combat; it fires a focused beam. "
	return head + strings.Repeat("Its glowing edge hums with a familiar tone across the galaxy. ", 10)
}

// neutralText is long enough but matches no technology patterns.
func neutralText() string {
	return strings.Repeat("A quiet village sits between two green hills near a slow river. ", 10)
}

func testClassifier(t *testing.T) *classifier.Classifier {
	t.Helper()
	cls, err := classifier.New(classifier.DefaultRules(), config.ClassifierConfig{})
	require.NoError(t, err)
	return cls
}

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		JitterFraction: 0,
	}
}

func harvestConfig(seeds ...string) config.HarvestConfig {
	return config.HarvestConfig{
		Seeds:              seeds,
		MaxDepth:           5,
		MaxWorkers:         4,
		CheckpointInterval: 10,
		QueueCapacity:      64,
	}
}

func newTestCrawler(t *testing.T, api wiki.API, cfg config.HarvestConfig, opts ...Option) (*Crawler, *checkpoint.Manager) {
	t.Helper()
	ckpt := checkpoint.NewManager(filepath.Join(t.TempDir(), "harvest.json"))
	opts = append([]Option{WithRetryConfig(fastRetry())}, opts...)
	return New(api, testClassifier(t), ckpt, cfg, opts...), ckpt
}

func entryNames(entries []model.DatasetEntry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	sort.Strings(names)
	return names
}

// weaponTree is a three-level category tree with five acceptable pages,
// one too-short page, and one page matching no patterns.
func weaponTree() *fakeAPI {
	api := newFakeAPI()
	api.addCategory("Fictional technology", []string{"Science fiction weapons"}, []string{"Phaser", "Stub page"})
	api.addCategory("Science fiction weapons", []string{"Energy blades"}, []string{"Lightsaber", "Disruptor", "Quiet page"})
	api.addCategory("Energy blades", nil, []string{"Vibroblade", "Force pike"})

	for _, p := range []string{"Phaser", "Lightsaber", "Disruptor", "Vibroblade", "Force pike"} {
		api.addPage(p, weaponText(p))
	}
	api.addPage("Stub page", "Too short.")
	api.addPage("Quiet page", neutralText())
	return api
}

func TestRun_HarvestsCategoryTree(t *testing.T) {
	api := weaponTree()
	c, ckpt := newTestCrawler(t, api, harvestConfig("Fictional technology"))

	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t,
		[]string{"Disruptor", "Force pike", "Lightsaber", "Phaser", "Vibroblade"},
		entryNames(res.Entries),
	)
	assert.Equal(t, 5, res.Stats.TotalEntries)
	assert.Equal(t, 3, res.Stats.CategoriesVisited)
	assert.Equal(t, 7, res.Stats.PagesVisited)
	assert.Equal(t, 1, res.Stats.Rejections[model.ReasonLength])
	assert.Equal(t, 1, res.Stats.Rejections[model.ReasonNoMatch])
	assert.Equal(t, 0, res.Stats.FailedFetches)

	for _, e := range res.Entries {
		assert.Equal(t, model.TechTypeWeapon, e.TechType)
		assert.Greater(t, e.Confidence, 0.5)
		assert.NotEmpty(t, e.URL)
		assert.NotEmpty(t, e.SourceCategory)
	}

	// Nothing left to resume.
	assert.False(t, ckpt.Exists())
}

func TestRun_SameResultForAnyWorkerCount(t *testing.T) {
	var reference []string
	for _, workers := range []int{1, 8} {
		cfg := harvestConfig("Fictional technology")
		cfg.MaxWorkers = workers

		c, _ := newTestCrawler(t, weaponTree(), cfg)
		res, err := c.Run(context.Background())
		require.NoError(t, err)

		names := entryNames(res.Entries)
		if reference == nil {
			reference = names
			continue
		}
		assert.Equal(t, reference, names, "workers=%d", workers)
	}
}

func TestRun_DepthLimit(t *testing.T) {
	cfg := harvestConfig("Fictional technology")
	cfg.MaxDepth = 1

	c, _ := newTestCrawler(t, weaponTree(), cfg)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	// Energy blades sits at depth 2 and must not be expanded.
	names := entryNames(res.Entries)
	assert.Contains(t, names, "Lightsaber")
	assert.NotContains(t, names, "Vibroblade")
	assert.NotContains(t, names, "Force pike")
	assert.Equal(t, 2, res.Stats.CategoriesVisited)
}

func TestRun_SingleWeaponScenario(t *testing.T) {
	api := newFakeAPI()
	api.addCategory("Fictional technology", []string{"Science fiction weapons"}, nil)
	api.addCategory("Science fiction weapons", nil, []string{"Lightsaber"})
	api.addPage("Lightsaber", weaponText("Lightsaber"))

	cfg := harvestConfig("Fictional technology")
	cfg.MaxDepth = 1

	c, _ := newTestCrawler(t, api, cfg)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Entries, 1)
	e := res.Entries[0]
	assert.Equal(t, "Lightsaber", e.Name)
	assert.Equal(t, model.TechTypeWeapon, e.TechType)
	assert.Greater(t, e.Confidence, 0.5)
	assert.Equal(t, "Science fiction weapons", e.SourceCategory)
}

func TestRun_PageSharedByCategoriesFetchedOnce(t *testing.T) {
	api := newFakeAPI()
	api.addCategory("Fictional technology", []string{"Science fiction weapons", "Star Trek devices"}, nil)
	api.addCategory("Science fiction weapons", nil, []string{"Phaser"})
	api.addCategory("Star Trek devices", nil, []string{"Phaser"})
	api.addPage("Phaser", weaponText("Phaser"))

	c, _ := newTestCrawler(t, api, harvestConfig("Fictional technology"))
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Phaser"}, entryNames(res.Entries))
	assert.Equal(t, 1, api.callCount("Phaser"))
}

func TestRun_NormalizedTitlesDeduped(t *testing.T) {
	api := newFakeAPI()
	api.addCategory("Fictional technology", nil, []string{"Warp drive", "Warp_drive"})
	api.addPage("Warp drive", weaponText("Warp drive"))

	c, _ := newTestCrawler(t, api, harvestConfig("Fictional technology"))
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Warp drive"}, entryNames(res.Entries))
}

func TestRun_TransientFailureRetried(t *testing.T) {
	api := newFakeAPI()
	api.addCategory("Fictional technology", nil, []string{"Lightsaber"})
	api.addPage("Lightsaber", weaponText("Lightsaber"))
	api.failPages["Lightsaber"] = 2

	c, _ := newTestCrawler(t, api, harvestConfig("Fictional technology"))
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Lightsaber"}, entryNames(res.Entries))
	assert.Equal(t, 3, api.callCount("Lightsaber"))
	assert.Equal(t, 0, res.Stats.FailedFetches)
}

func TestRun_ExhaustedRetriesSkipUnit(t *testing.T) {
	api := newFakeAPI()
	api.addCategory("Fictional technology", nil, []string{"Lightsaber", "Phaser"})
	api.addPage("Lightsaber", weaponText("Lightsaber"))
	api.addPage("Phaser", weaponText("Phaser"))
	api.failPages["Lightsaber"] = 100

	c, _ := newTestCrawler(t, api, harvestConfig("Fictional technology"))
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Phaser"}, entryNames(res.Entries))
	assert.Equal(t, 1, res.Stats.FailedFetches)
	assert.Equal(t, 3, api.callCount("Lightsaber"))
}

func TestRun_MissingSeedCategoryIsNotFatal(t *testing.T) {
	c, ckpt := newTestCrawler(t, newFakeAPI(), harvestConfig("No such category"))

	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, res.Entries)
	assert.Equal(t, 0, res.Stats.FailedFetches)
	assert.False(t, ckpt.Exists())
}

func TestRun_MaxEntriesStopsRun(t *testing.T) {
	api := newFakeAPI()
	pages := []string{"A gun", "B gun", "C gun", "D gun", "E gun", "F gun"}
	api.addCategory("Fictional technology", nil, pages)
	for _, p := range pages {
		api.addPage(p, weaponText(p))
	}

	cfg := harvestConfig("Fictional technology")
	cfg.MaxWorkers = 1
	cfg.MaxEntries = 3
	cfg.QueueCapacity = 2

	c, ckpt := newTestCrawler(t, api, cfg)
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Len(t, res.Entries, 3)
	// Unprocessed pages survive in the checkpoint frontier.
	assert.True(t, ckpt.Exists())

	saved, err := ckpt.Load()
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, 3, saved.EntriesEmitted)
	assert.NotEmpty(t, saved.Frontier)
}

func TestRun_ResumeProducesSameEntrySet(t *testing.T) {
	buildAPI := func() *fakeAPI {
		api := newFakeAPI()
		api.addCategory("Fictional technology", []string{"Science fiction weapons"}, []string{"A gun", "B gun", "C gun"})
		api.addCategory("Science fiction weapons", nil, []string{"D gun", "E gun", "F gun", "G gun", "H gun"})
		for _, p := range []string{"A gun", "B gun", "C gun", "D gun", "E gun", "F gun", "G gun", "H gun"} {
			api.addPage(p, weaponText(p))
		}
		return api
	}

	// Uninterrupted reference run.
	ref, _ := newTestCrawler(t, buildAPI(), harvestConfig("Fictional technology"))
	refRes, err := ref.Run(context.Background())
	require.NoError(t, err)
	want := entryNames(refRes.Entries)
	require.Len(t, want, 8)

	// Interrupted run: shared checkpoint and store, cancel mid-harvest.
	dir := t.TempDir()
	ckpt := checkpoint.NewManager(filepath.Join(dir, "harvest.json"))
	db, err := store.NewSQLite(filepath.Join(dir, "harvest.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	defer db.Close() //nolint:errcheck

	cfg := harvestConfig("Fictional technology")
	cfg.MaxWorkers = 2
	cfg.CheckpointInterval = 1

	ctx, cancel := context.WithCancel(context.Background())
	api := buildAPI()
	var fetches atomic.Int32
	api.onPageFetch = func(string) {
		if fetches.Add(1) == 3 {
			cancel()
		}
	}

	first := New(api, testClassifier(t), ckpt, cfg, WithRetryConfig(fastRetry()), WithStore(db))
	firstRes, err := first.Run(ctx)
	require.NoError(t, err)
	require.True(t, ckpt.Exists())
	assert.Less(t, len(firstRes.Entries), 8)

	// Resumed run finishes the remainder against a fresh API.
	second := New(buildAPI(), testClassifier(t), ckpt, cfg, WithRetryConfig(fastRetry()), WithStore(db))
	secondRes, err := second.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, firstRes.RunID, secondRes.RunID)
	assert.Equal(t, want, entryNames(secondRes.Entries))
	assert.False(t, ckpt.Exists())

	// The store holds exactly one row per accepted page.
	n, err := db.CountEntries(context.Background(), secondRes.RunID)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
}

func TestRun_StorePersistsEntries(t *testing.T) {
	dir := t.TempDir()
	db, err := store.NewSQLite(filepath.Join(dir, "harvest.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	defer db.Close() //nolint:errcheck

	c, _ := newTestCrawler(t, weaponTree(), harvestConfig("Fictional technology"), WithStore(db))
	res, err := c.Run(context.Background())
	require.NoError(t, err)

	stored, err := db.ListEntries(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, entryNames(res.Entries), entryNames(stored))

	run, err := db.GetRun(context.Background(), res.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusComplete, run.Status)
}
