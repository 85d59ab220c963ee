// Package check runs the scheduled change-detection pipeline: ensure an
// authenticated session, fetch and extract every active target, diff against
// the stored snapshot, persist the replacement set, notify, and publish
// realtime events. Exactly one check cycle runs at a time.
package check

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/roelvdh/marktwatch/internal/config"
	"github.com/roelvdh/marktwatch/internal/detect"
	"github.com/roelvdh/marktwatch/internal/extract"
	"github.com/roelvdh/marktwatch/internal/notify"
	"github.com/roelvdh/marktwatch/internal/realtime"
	"github.com/roelvdh/marktwatch/internal/schedule"
	"github.com/roelvdh/marktwatch/internal/scrape"
	"github.com/roelvdh/marktwatch/internal/session"
	"github.com/roelvdh/marktwatch/internal/store"
	"github.com/roelvdh/marktwatch/pkg/models"
)

// Fetcher is the slice of the session manager the orchestrator needs;
// narrowed to an interface so tests can run cycles without a browser.
type Fetcher interface {
	EnsureReady(ctx context.Context, site *config.Website) error
	FetchTarget(ctx context.Context, site *config.Website, url string) (string, error)
}

// Publisher is the slice of the realtime hub the orchestrator needs.
type Publisher interface {
	PublishChecking()
	PublishListingsUpdate(listings []models.Listing, nextCheck time.Time)
	PublishNextCheck(nextCheck time.Time)
	PublishError(message, code string)
}

// Notifier is the slice of the mailer the orchestrator needs.
type Notifier interface {
	Notify(cfg config.Email, target string, items []models.Listing)
}

// Orchestrator owns the check schedule and the single-flight guard. The
// guard is the only mutual-exclusion primitive in the system: the tick loop
// and the manual trigger endpoint both go through it.
type Orchestrator struct {
	cfg       *config.Config
	store     store.Storage
	fetcher   Fetcher
	extractor *extract.Extractor
	notifier  Notifier
	hub       Publisher

	mu       sync.Mutex
	interval time.Duration
	deadline time.Time
	running  bool
}

// New creates an Orchestrator with the default interval; the real interval is
// re-read from the settings store at the start of every cycle.
func New(cfg *config.Config, st store.Storage, f Fetcher, ex *extract.Extractor, n Notifier, hub Publisher) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		fetcher:   f,
		extractor: ex,
		notifier:  n,
		hub:       hub,
		interval:  cfg.DefaultInterval,
		deadline:  time.Now().Add(cfg.DefaultInterval),
	}
}

var _ Fetcher = (*session.Manager)(nil)
var _ Publisher = (*realtime.Hub)(nil)
var _ Notifier = (*notify.Mailer)(nil)

// Deadline returns the absolute time of the next scheduled check.
func (o *Orchestrator) Deadline() time.Time {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.deadline
}

// Running reports whether a check cycle is currently in flight.
func (o *Orchestrator) Running() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

// Run drives the orchestration loop on a short fixed tick until ctx is
// cancelled. A cycle failure is logged and swallowed; the loop never dies.
func (o *Orchestrator) Run(ctx context.Context) {
	ticker := time.NewTicker(o.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.mu.Lock()
			due := !o.running && !time.Now().Before(o.deadline)
			o.mu.Unlock()
			if !due {
				continue
			}
			if _, err := o.RunCycle(ctx); err != nil && err != scrape.ErrCheckRunning {
				log.Error().Err(err).Msg("Scheduled check failed")
			}
		}
	}
}

// Trigger runs one check cycle on demand. Returns ErrCheckRunning when a
// cycle is already in flight; the caller surfaces that as a busy response,
// never queues.
func (o *Orchestrator) Trigger(ctx context.Context) (*models.CheckResult, error) {
	return o.RunCycle(ctx)
}

// RunCycle performs one full check cycle for every active target. The
// deadline is advanced before any work starts, so concurrent ticks and manual
// triggers cannot double-fire.
func (o *Orchestrator) RunCycle(ctx context.Context) (result *models.CheckResult, err error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, scrape.ErrCheckRunning
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		// The guard must never stay stuck, not even on a panic inside a
		// scraping library.
		if r := recover(); r != nil {
			err = fmt.Errorf("check cycle panicked: %v", r)
			log.Error().Interface("panic", r).Msg("Check cycle panicked")
		}
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
		if err != nil {
			o.hub.PublishError(err.Error(), string(scrape.CodeOf(err)))
		}
	}()

	started := time.Now()

	// Settings are re-read every cycle so dashboard edits take effect
	// without a restart.
	site, scheduleStr, email, err := o.loadSettings(ctx)
	if err != nil {
		return nil, err
	}

	interval := schedule.ParseInterval(scheduleStr)
	deadline := started.Add(interval)
	o.mu.Lock()
	o.interval = interval
	o.deadline = deadline
	o.mu.Unlock()

	o.hub.PublishChecking()
	log.Info().Int("targets", len(site.Targets)).Time("next_check", deadline).Msg("Check cycle started")

	result = &models.CheckResult{StartedAt: started, NextCheck: deadline}

	if len(site.Targets) > 0 {
		if err := o.fetcher.EnsureReady(ctx, site); err != nil {
			return result, err
		}
		for _, target := range site.Targets {
			tr := o.checkTarget(ctx, site, email, target)
			result.Targets = append(result.Targets, tr)
		}
	} else {
		log.Warn().Msg("No targets configured, skipping cycle body")
	}

	// Always publish the full set with the fresh deadline, changed or not.
	listings, err := o.store.AllListings(ctx)
	if err != nil {
		return result, fmt.Errorf("load listings for publish: %w", err)
	}
	o.hub.PublishListingsUpdate(listings, deadline)

	result.FinishedAt = time.Now()
	log.Info().Dur("elapsed", result.FinishedAt.Sub(started)).Msg("Check cycle finished")
	return result, nil
}

// checkTarget runs fetch -> extract -> diff -> persist -> notify for one
// target. Failures are contained per target so one broken saved search does
// not starve the others.
func (o *Orchestrator) checkTarget(ctx context.Context, site *config.Website, email config.Email, target models.Target) models.TargetResult {
	tr := models.TargetResult{Target: target.Name}

	html, err := o.fetcher.FetchTarget(ctx, site, target.URL)
	if err != nil {
		log.Error().Err(err).Str("target", target.Name).Msg("Target fetch failed")
		tr.Error = err.Error()
		o.hub.PublishError(err.Error(), string(scrape.CodeOf(err)))
		return tr
	}

	extracted, err := o.extractor.Extract(html, target.URL, target.Selector, target.Name)
	if err != nil {
		log.Error().Err(err).Str("target", target.Name).Msg("Extraction failed")
		tr.Error = err.Error()
		o.hub.PublishError(err.Error(), string(scrape.CodeOf(err)))
		return tr
	}

	// The previous snapshot must be read before ReplaceListings runs: the
	// delete inside it destroys the diff baseline.
	previous, err := o.store.ListingsByTarget(ctx, target.Name)
	if err != nil {
		tr.Error = err.Error()
		return tr
	}

	diff := detect.Diff(previous, extracted)
	tr.Changed = diff.Changed
	tr.NewItems = diff.NewItems

	written, err := o.store.ReplaceListings(ctx, target.Name, extracted)
	if err != nil {
		tr.Error = err.Error()
		return tr
	}
	tr.Total = written

	if diff.Changed {
		log.Info().Str("target", target.Name).Int("new_items", len(diff.NewItems)).
			Str("titles", detect.Summary(diff.NewItems)).Msg("Listing change detected")
	} else {
		log.Debug().Str("target", target.Name).Msg("No change detected")
	}

	if len(diff.NewItems) > 0 {
		o.notifier.Notify(email, target.Name, diff.NewItems)
	}

	return tr
}

// Reschedule reparses the schedule setting and re-anchors the deadline
// relative to the most recent listing timestamp, falling back to now. The
// resulting deadline is never in the past. Called when the schedule
// configuration changes.
func (o *Orchestrator) Reschedule(ctx context.Context) {
	_, scheduleStr, _, err := o.loadSettings(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings for reschedule")
		return
	}
	interval := schedule.ParseInterval(scheduleStr)

	anchor, err := o.store.LatestListingTime(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read latest listing time, anchoring to now")
	}
	now := time.Now()
	if anchor.IsZero() {
		anchor = now
	}
	deadline := anchor.Add(interval)
	if deadline.Before(now) {
		deadline = now.Add(interval)
	}

	o.mu.Lock()
	o.interval = interval
	o.deadline = deadline
	o.mu.Unlock()

	log.Info().Dur("interval", interval).Time("next_check", deadline).Msg("Schedule updated")
	o.hub.PublishNextCheck(deadline)
}

// loadSettings reads the website, schedule and email sections from the
// settings store, applying credential fallbacks from the environment.
func (o *Orchestrator) loadSettings(ctx context.Context) (*config.Website, string, config.Email, error) {
	var site config.Website
	if _, err := o.store.GetSetting(ctx, config.KeyWebsite, &site); err != nil {
		return nil, "", config.Email{}, fmt.Errorf("load website settings: %w", err)
	}
	site.ResolveCredentials()

	var scheduleStr string
	if _, err := o.store.GetSetting(ctx, config.KeySchedule, &scheduleStr); err != nil {
		return nil, "", config.Email{}, fmt.Errorf("load schedule setting: %w", err)
	}

	var email config.Email
	if _, err := o.store.GetSetting(ctx, config.KeyEmail, &email); err != nil {
		return nil, "", config.Email{}, fmt.Errorf("load email settings: %w", err)
	}

	return &site, scheduleStr, email, nil
}
