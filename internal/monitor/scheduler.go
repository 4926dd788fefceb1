package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/alert"
	"github.com/JakeFAU/pricewatch/internal/metrics"
	"github.com/JakeFAU/pricewatch/internal/policy/ratelimit"
)

// ErrPassInProgress is returned by RunPass when another pass is running.
var ErrPassInProgress = errors.New("monitoring pass already in progress")

const (
	defaultInterval     = 15 * time.Minute
	defaultFetchTimeout  = 15 * time.Second
	defaultNotifyTimeout = 10 * time.Second
	storeWriteTimeout    = 10 * time.Second
)

// Registry turns a fetched page into a snapshot for the URL's shop.
type Registry interface {
	Extract(rawURL string, body []byte) (alert.Snapshot, error)
}

// Config controls Scheduler behavior.
type Config struct {
	Interval      time.Duration
	FetchTimeout  time.Duration
	NotifyTimeout time.Duration
	// RunOnStart runs the first pass immediately instead of after one interval.
	RunOnStart bool
}

// Scheduler owns the periodic monitoring pass.
type Scheduler struct {
	store    alert.Store
	fetcher  alert.Fetcher
	registry Registry
	notifier alert.Notifier
	limiter  *ratelimit.Controller
	clock    alert.Clock
	archive  *DriftArchive
	notFound *NotFoundTracker
	cfg      Config
	logger   *zap.Logger

	state  atomic.Int32
	last   atomic.Pointer[PassReport]
	passMu sync.Mutex
	after  func(time.Duration) <-chan time.Time
}

// New constructs a Scheduler. archive may be nil.
func New(
	store alert.Store,
	fetcher alert.Fetcher,
	registry Registry,
	notifier alert.Notifier,
	limiter *ratelimit.Controller,
	clock alert.Clock,
	archive *DriftArchive,
	cfg Config,
	logger *zap.Logger,
) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = defaultNotifyTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.Config{})
	}
	return &Scheduler{
		store:    store,
		fetcher:  fetcher,
		registry: registry,
		notifier: notifier,
		limiter:  limiter,
		clock:    clock,
		archive:  archive,
		notFound: NewNotFoundTracker(),
		cfg:      cfg,
		logger:   logger,
		after:    time.After,
	}
}

// State reports the phase of the current pass.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	if State(s.state.Swap(int32(st))) != st {
		s.logger.Debug("pass state changed", zap.Stringer("state", st))
	}
}

// Run blocks, running one pass per interval until the context finishes.
// The sleep between passes is the interval minus the time the pass took.
func (s *Scheduler) Run(ctx context.Context) {
	if !s.cfg.RunOnStart {
		select {
		case <-ctx.Done():
			return
		case <-s.after(s.cfg.Interval):
		}
	}
	for {
		start := s.clock.Now()
		report, err := s.RunPass(ctx)
		switch {
		case ctx.Err() != nil:
			return
		case errors.Is(err, ErrPassInProgress):
			s.logger.Warn("skipping scheduled pass", zap.Error(err))
		case err != nil:
			s.logger.Error("monitoring pass aborted", zap.Error(err))
		default:
			s.logger.Info("monitoring pass finished",
				zap.Int("rules", report.Rules),
				zap.Int("updated", report.Updated),
				zap.Int("skipped", report.SkippedTotal()),
				zap.Int("notified", report.Notified),
				zap.Int("delivery_failures", report.DeliveryFailures),
				zap.Duration("duration", report.Duration),
			)
		}

		wait := s.cfg.Interval - s.clock.Now().Sub(start)
		if wait < 0 {
			wait = 0
		}
		select {
		case <-ctx.Done():
			return
		case <-s.after(wait):
		}
	}
}

// ruleResult is what one dispatched rule hands to settling.
type ruleResult struct {
	skip         string
	observation  *alert.Observation
	notification *alert.Notification
}

// LastReport returns the report of the most recent finished pass.
func (s *Scheduler) LastReport() (PassReport, bool) {
	r := s.last.Load()
	if r == nil {
		return PassReport{}, false
	}
	return *r, true
}

// RunPass executes one pass over every rule and returns its report.
func (s *Scheduler) RunPass(ctx context.Context) (PassReport, error) {
	if !s.passMu.TryLock() {
		return PassReport{}, ErrPassInProgress
	}
	defer s.passMu.Unlock()
	defer s.setState(StateIdle)

	report, err := s.runPass(ctx)
	if err == nil {
		s.last.Store(&report)
	}
	return report, err
}

func (s *Scheduler) runPass(ctx context.Context) (PassReport, error) {
	start := s.clock.Now()
	report := PassReport{StartedAt: start, Skipped: map[string]int{}}

	s.setState(StateLoading)
	rules, err := s.store.ListRules(ctx)
	if err != nil {
		report.Duration = s.clock.Now().Sub(start)
		metrics.ObservePass("aborted", report.Duration)
		return report, fmt.Errorf("%w: load rules: %w", alert.ErrStore, err)
	}
	report.Rules = len(rules)
	metrics.SetRules(len(rules))
	s.notFound.Retain(ruleIDs(rules))
	if len(rules) == 0 {
		report.Duration = s.clock.Now().Sub(start)
		metrics.ObservePass("ok", report.Duration)
		return report, nil
	}

	s.setState(StateDispatching)
	results := s.dispatch(ctx, rules)

	s.setState(StateSettling)
	s.settle(ctx, rules, results, &report)

	report.Duration = s.clock.Now().Sub(start)
	status := "ok"
	if ctx.Err() != nil {
		status = "canceled"
	}
	metrics.ObservePass(status, report.Duration)
	return report, nil
}

func (s *Scheduler) dispatch(ctx context.Context, rules []alert.Rule) []ruleResult {
	results := make([]ruleResult, len(rules))
	var wg sync.WaitGroup

	s.logger.Debug("dispatching rules",
		zap.Int("rules", len(rules)),
		zap.Int("max_concurrent", s.limiter.Max()),
	)
	for i, rule := range rules {
		permit, err := s.limiter.Start(ctx)
		if err != nil {
			s.logger.Info("dispatch canceled",
				zap.Int("remaining", len(rules)-i),
				zap.Int("in_flight", s.limiter.InFlight()),
				zap.Error(err),
			)
			markCanceled(results[i:])
			break
		}
		wg.Add(1)
		go func(i int, rule alert.Rule) {
			defer wg.Done()
			defer permit.Release()
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("rule evaluation panicked",
						zap.String("rule_id", rule.ID),
						zap.String("url", rule.URL),
						zap.Any("panic", r),
					)
					results[i] = ruleResult{skip: SkipPanic}
				}
			}()
			results[i] = s.evaluate(ctx, rule)
		}(i, rule)
	}

	s.setState(StateAwaiting)
	wg.Wait()
	return results
}

func markCanceled(results []ruleResult) {
	for i := range results {
		results[i] = ruleResult{skip: SkipCanceled}
	}
}

func (s *Scheduler) evaluate(ctx context.Context, rule alert.Rule) ruleResult {
	fetchCtx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	out := s.fetcher.Fetch(fetchCtx, rule.URL)
	cancel()

	if !out.OK() {
		return ruleResult{skip: s.logFetchFailure(rule, out)}
	}
	s.notFound.Reset(rule.ID)

	snap, err := s.registry.Extract(rule.URL, out.Body)
	if err != nil {
		return ruleResult{skip: s.handleExtractionFailure(ctx, rule, out.Body, err)}
	}

	notified, fire := Decide(rule.Threshold, rule.NotifiedPrice, snap.Price)
	obs := alert.Observation{
		ProductName:   snap.ProductName,
		LastPrice:     snap.Price,
		NotifiedPrice: notified,
		CheckedAt:     s.clock.Now().UTC(),
	}
	res := ruleResult{observation: &obs}
	if fire {
		updated := rule
		updated.ProductName = obs.ProductName
		updated.LastPrice = obs.LastPrice
		updated.NotifiedPrice = obs.NotifiedPrice
		updated.CheckedAt = &obs.CheckedAt
		res.notification = &alert.Notification{
			Owner:         rule.Owner,
			Rule:          updated,
			Snapshot:      snap,
			PreviousPrice: rule.LastPrice,
		}
	}
	return res
}

func (s *Scheduler) logFetchFailure(rule alert.Rule, out alert.FetchOutcome) string {
	fields := []zap.Field{
		zap.String("rule_id", rule.ID),
		zap.String("url", rule.URL),
		zap.String("outcome", string(out.Kind)),
		zap.Int("status", out.Status),
		zap.Error(out.Err),
	}
	switch out.Kind {
	case alert.OutcomeNotFound:
		if s.notFound.Observe(rule.ID) == 1 {
			s.logger.Warn("product page not found", fields...)
		} else {
			s.logger.Debug("product page still not found", fields...)
		}
		return SkipNotFound
	case alert.OutcomeServerError:
		s.logger.Warn("server error", fields...)
		return SkipServerError
	case alert.OutcomeTimeout:
		s.logger.Warn("network failure", append(fields, zap.NamedError("cause", alert.ErrNetwork))...)
		return SkipTimeout
	default:
		s.logger.Warn("network failure", append(fields, zap.NamedError("cause", alert.ErrNetwork))...)
		return SkipNetworkError
	}
}

func (s *Scheduler) handleExtractionFailure(ctx context.Context, rule alert.Rule, body []byte, err error) string {
	fields := []zap.Field{
		zap.String("rule_id", rule.ID),
		zap.String("url", rule.URL),
		zap.String("shop", rule.Shop),
		zap.Error(err),
	}
	if errors.Is(err, alert.ErrNoExtractor) {
		metrics.ObserveExtractionFailure(rule.Shop, SkipNoExtractor)
		s.logger.Warn("no extractor for rule", fields...)
		return SkipNoExtractor
	}

	metrics.ObserveExtractionFailure(rule.Shop, SkipSiteDrift)
	if s.archive != nil {
		uri, archiveErr := s.archive.Archive(ctx, rule, body)
		if archiveErr != nil {
			fields = append(fields, zap.NamedError("archive_error", archiveErr))
		} else {
			fields = append(fields, zap.String("archive_uri", uri))
		}
	}
	s.logger.Warn("site structure drift", fields...)
	return SkipSiteDrift
}

func (s *Scheduler) settle(ctx context.Context, rules []alert.Rule, results []ruleResult, report *PassReport) {
	// Completed work is persisted even when the pass was canceled mid-flight.
	settleCtx := context.WithoutCancel(ctx)

	intents := make([]int, 0)
	for i, res := range results {
		if res.skip != "" {
			report.Skipped[res.skip]++
			continue
		}
		if res.observation == nil {
			continue
		}
		rule := rules[i]
		if err := s.record(settleCtx, rule.ID, *res.observation); err != nil {
			report.StoreFailures++
			if errors.Is(err, alert.ErrNotFound) {
				s.logger.Info("rule deleted during pass", zap.String("rule_id", rule.ID))
			} else {
				s.logger.Error("record observation failed",
					zap.String("rule_id", rule.ID),
					zap.NamedError("cause", alert.ErrStore),
					zap.Error(err),
				)
			}
			continue
		}
		report.Updated++
		if res.notification != nil {
			intents = append(intents, i)
		}
	}

	for _, i := range intents {
		s.deliver(settleCtx, rules[i], results[i], report)
	}
}

func (s *Scheduler) record(ctx context.Context, id string, obs alert.Observation) error {
	ctx, cancel := context.WithTimeout(ctx, storeWriteTimeout)
	defer cancel()
	return s.store.RecordObservation(ctx, id, obs)
}

func (s *Scheduler) notify(ctx context.Context, note alert.Notification) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
	defer cancel()
	return s.notifier.Notify(ctx, note)
}

// deliver gets a fresh budget per notification so a hung delivery cannot
// starve the ones after it.
func (s *Scheduler) deliver(ctx context.Context, rule alert.Rule, res ruleResult, report *PassReport) {
	err := s.notify(ctx, *res.notification)
	if err == nil {
		report.Notified++
		metrics.ObserveNotification("sent")
		s.logger.Info("price alert sent",
			zap.String("rule_id", rule.ID),
			zap.String("owner", rule.Owner),
			zap.String("price", res.observation.LastPrice.String()),
		)
		return
	}

	report.DeliveryFailures++
	metrics.ObserveNotification("failed")
	s.logger.Warn("notification delivery failed",
		zap.String("rule_id", rule.ID),
		zap.String("owner", rule.Owner),
		zap.NamedError("cause", alert.ErrDelivery),
		zap.Error(err),
	)

	// Restore the previous notification state so the next pass tries again.
	rollback := *res.observation
	rollback.NotifiedPrice = rule.NotifiedPrice
	if err := s.record(ctx, rule.ID, rollback); err != nil {
		s.logger.Error("restore notification state failed",
			zap.String("rule_id", rule.ID),
			zap.Error(err),
		)
	}
}

func ruleIDs(rules []alert.Rule) []string {
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}
