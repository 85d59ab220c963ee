package check

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/internal/extract"
	"github.com/roelvdh/marktwatch/internal/scrape"
	"github.com/roelvdh/marktwatch/internal/store"
	"github.com/roelvdh/marktwatch/pkg/models"
)

// fakeFetcher serves canned HTML per URL, optionally blocking until released
// so tests can hold a cycle open.
type fakeFetcher struct {
	pages   map[string]string
	err     error
	block   chan struct{}
	fetches int
	mu      sync.Mutex
}

func (f *fakeFetcher) EnsureReady(ctx context.Context, site *config.Website) error {
	return nil
}

func (f *fakeFetcher) FetchTarget(ctx context.Context, site *config.Website, url string) (string, error) {
	f.mu.Lock()
	f.fetches++
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return "", f.err
	}
	return f.pages[url], nil
}

type fakeHub struct {
	mu         sync.Mutex
	checking   int
	updates    [][]models.Listing
	nextChecks []time.Time
	errors     []string
}

func (h *fakeHub) PublishChecking() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checking++
}

func (h *fakeHub) PublishListingsUpdate(listings []models.Listing, nextCheck time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.updates = append(h.updates, listings)
}

func (h *fakeHub) PublishNextCheck(nextCheck time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextChecks = append(h.nextChecks, nextCheck)
}

func (h *fakeHub) PublishError(message, code string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errors = append(h.errors, code)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notification
}

type notification struct {
	target string
	items  []models.Listing
}

func (n *fakeNotifier) Notify(cfg config.Email, target string, items []models.Listing) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notification{target: target, items: items})
}

const targetPage = `
<ul class="hz-Listings">
	<li class="hz-Listing">
		<a class="hz-Listing-coverLink" href="/v/m1"></a>
		<h3 class="hz-Listing-title">Gazelle</h3>
		<p class="hz-Listing-price">€250</p>
	</li>
	<li class="hz-Listing">
		<a class="hz-Listing-coverLink" href="/v/m2"></a>
		<h3 class="hz-Listing-title">Batavus</h3>
		<p class="hz-Listing-price">€180</p>
	</li>
</ul>`

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.TickInterval = 10 * time.Millisecond
	return cfg
}

func setupSettings(t *testing.T, st store.Storage, scheduleStr string) {
	t.Helper()
	ctx := context.Background()
	site := config.Website{
		LoginURL: "https://site.example/login",
		Username: "user",
		Password: "pass",
		Targets: []models.Target{
			{Name: "bikes", URL: "https://site.example/q/fietsen", Selector: "ul.hz-Listings"},
		},
	}
	if err := st.SetSetting(ctx, config.KeyWebsite, site); err != nil {
		t.Fatalf("SetSetting website: %v", err)
	}
	if err := st.SetSetting(ctx, config.KeySchedule, scheduleStr); err != nil {
		t.Fatalf("SetSetting schedule: %v", err)
	}
	if err := st.SetSetting(ctx, config.KeyEmail, config.Email{}); err != nil {
		t.Fatalf("SetSetting email: %v", err)
	}
}

func newTestOrchestrator(t *testing.T, f Fetcher, hub Publisher, n Notifier) (*Orchestrator, store.Storage) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return New(testConfig(), st, f, extract.New(), n, hub), st
}

func TestRunCycle_FirstRun(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://site.example/q/fietsen": targetPage,
	}}
	hub := &fakeHub{}
	notifier := &fakeNotifier{}
	orch, st := newTestOrchestrator(t, fetcher, hub, notifier)
	setupSettings(t, st, "*/10 * * * *")

	result, err := orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(result.Targets) != 1 {
		t.Fatalf("Targets = %d, want 1", len(result.Targets))
	}
	tr := result.Targets[0]
	if !tr.Changed {
		t.Error("First run should report a change")
	}
	if len(tr.NewItems) != 2 {
		t.Errorf("NewItems = %d, want 2", len(tr.NewItems))
	}
	if tr.Total != 2 {
		t.Errorf("Total = %d, want 2", tr.Total)
	}

	stored, err := st.ListingsByTarget(context.Background(), "bikes")
	if err != nil {
		t.Fatalf("ListingsByTarget: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored = %d, want 2", len(stored))
	}

	if hub.checking != 1 {
		t.Errorf("checking events = %d, want 1", hub.checking)
	}
	if len(hub.updates) != 1 {
		t.Fatalf("listings updates = %d, want 1", len(hub.updates))
	}
	if len(notifier.calls) != 1 || len(notifier.calls[0].items) != 2 {
		t.Errorf("notification calls wrong: %+v", notifier.calls)
	}
}

func TestRunCycle_NoChangeNoNotification(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		"https://site.example/q/fietsen": targetPage,
	}}
	hub := &fakeHub{}
	notifier := &fakeNotifier{}
	orch, st := newTestOrchestrator(t, fetcher, hub, notifier)
	setupSettings(t, st, "*/10 * * * *")

	if _, err := orch.RunCycle(context.Background()); err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	result, err := orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("second cycle failed: %v", err)
	}
	if result.Targets[0].Changed {
		t.Error("unchanged page reported as changed")
	}
	if len(notifier.calls) != 1 {
		t.Errorf("notifications = %d, want 1 (only the first cycle)", len(notifier.calls))
	}
	// The full set is still published every cycle.
	if len(hub.updates) != 2 {
		t.Errorf("listings updates = %d, want 2", len(hub.updates))
	}
}

func TestRunCycle_MutualExclusion(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{"https://site.example/q/fietsen": targetPage},
		block: make(chan struct{}),
	}
	hub := &fakeHub{}
	orch, st := newTestOrchestrator(t, fetcher, hub, &fakeNotifier{})
	setupSettings(t, st, "*/10 * * * *")

	done := make(chan error, 1)
	go func() {
		_, err := orch.RunCycle(context.Background())
		done <- err
	}()

	// Wait for the first cycle to reach the blocking fetch.
	deadline := time.After(2 * time.Second)
	for {
		fetcher.mu.Lock()
		started := fetcher.fetches > 0
		fetcher.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first cycle never started fetching")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if !orch.Running() {
		t.Error("Running() = false while a cycle is in flight")
	}
	if _, err := orch.Trigger(context.Background()); !errors.Is(err, scrape.ErrCheckRunning) {
		t.Errorf("concurrent trigger error = %v, want ErrCheckRunning", err)
	}

	close(fetcher.block)
	if err := <-done; err != nil {
		t.Fatalf("first cycle failed: %v", err)
	}
	if orch.Running() {
		t.Error("guard not cleared after cycle")
	}

	// A new trigger is accepted once the guard clears.
	if _, err := orch.Trigger(context.Background()); err != nil {
		t.Errorf("post-cycle trigger failed: %v", err)
	}
}

func TestRunCycle_FetchErrorContained(t *testing.T) {
	fetcher := &fakeFetcher{err: scrape.NewTransportError("connection refused", nil)}
	hub := &fakeHub{}
	notifier := &fakeNotifier{}
	orch, st := newTestOrchestrator(t, fetcher, hub, notifier)
	setupSettings(t, st, "*/10 * * * *")

	result, err := orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle should not fail on a per-target error: %v", err)
	}
	if result.Targets[0].Error == "" {
		t.Error("target error not recorded")
	}
	if len(hub.errors) == 0 || hub.errors[0] != string(scrape.CodeTransport) {
		t.Errorf("published error codes = %v, want TRANSPORT", hub.errors)
	}
	if len(notifier.calls) != 0 {
		t.Error("failed target must not notify")
	}
	if orch.Running() {
		t.Error("guard not cleared after failed target")
	}
}

func TestRunCycle_AdvancesDeadlineBeforeWork(t *testing.T) {
	fetcher := &fakeFetcher{
		pages: map[string]string{"https://site.example/q/fietsen": targetPage},
		block: make(chan struct{}),
	}
	orch, st := newTestOrchestrator(t, fetcher, &fakeHub{}, &fakeNotifier{})
	setupSettings(t, st, "*/10 * * * *")

	before := time.Now()
	done := make(chan struct{})
	go func() {
		_, _ = orch.RunCycle(context.Background())
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		fetcher.mu.Lock()
		started := fetcher.fetches > 0
		fetcher.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("cycle never started fetching")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Mid-cycle the deadline must already be ~interval away.
	got := orch.Deadline()
	want := before.Add(10 * time.Minute)
	if got.Before(want.Add(-time.Minute)) {
		t.Errorf("Deadline during cycle = %v, want about %v", got, want)
	}

	close(fetcher.block)
	<-done
}

func TestReschedule_AnchorsToLatestListing(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}
	hub := &fakeHub{}
	orch, st := newTestOrchestrator(t, fetcher, hub, &fakeNotifier{})
	setupSettings(t, st, "*/10 * * * *")

	anchor := time.Now().Add(-2 * time.Minute).UTC().Truncate(time.Millisecond)
	if _, err := st.ReplaceListings(context.Background(), "bikes", []models.Listing{
		{Target: "bikes", Title: "Gazelle", Price: "€250", URL: "https://site.example/a", CreatedAt: anchor},
	}); err != nil {
		t.Fatalf("ReplaceListings: %v", err)
	}

	orch.Reschedule(context.Background())

	got := orch.Deadline()
	want := anchor.Add(10 * time.Minute)
	if diff := got.Sub(want); diff < -time.Second || diff > time.Second {
		t.Errorf("Deadline = %v, want %v (anchored to latest listing)", got, want)
	}
	if len(hub.nextChecks) != 1 {
		t.Errorf("nextCheck events = %d, want 1", len(hub.nextChecks))
	}
}

func TestReschedule_ClampsPastDeadline(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}
	orch, st := newTestOrchestrator(t, fetcher, &fakeHub{}, &fakeNotifier{})
	setupSettings(t, st, "*/1 * * * *")

	stale := time.Now().Add(-3 * time.Hour).UTC()
	if _, err := st.ReplaceListings(context.Background(), "bikes", []models.Listing{
		{Target: "bikes", Title: "Oud", Price: "€10", URL: "https://site.example/old", CreatedAt: stale},
	}); err != nil {
		t.Fatalf("ReplaceListings: %v", err)
	}

	orch.Reschedule(context.Background())

	if orch.Deadline().Before(time.Now()) {
		t.Errorf("Deadline = %v is in the past", orch.Deadline())
	}
}

func TestRunCycle_NoTargets(t *testing.T) {
	fetcher := &fakeFetcher{}
	hub := &fakeHub{}
	orch, st := newTestOrchestrator(t, fetcher, hub, &fakeNotifier{})
	setupSettings(t, st, "*/10 * * * *")
	if err := st.SetSetting(context.Background(), config.KeyWebsite, config.Website{}); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	result, err := orch.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}
	if len(result.Targets) != 0 {
		t.Errorf("Targets = %d, want 0", len(result.Targets))
	}
	if fetcher.fetches != 0 {
		t.Error("fetched with no targets configured")
	}
	// The (empty) set and fresh deadline still go out.
	if len(hub.updates) != 1 {
		t.Errorf("listings updates = %d, want 1", len(hub.updates))
	}
}
