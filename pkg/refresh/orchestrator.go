package refresh

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Sternrassler/steam-monitor/pkg/batch"
	"github.com/Sternrassler/steam-monitor/pkg/notify"
	"github.com/Sternrassler/steam-monitor/pkg/steamapi"
	"github.com/Sternrassler/steam-monitor/pkg/tracker"
)

// Task refreshes or creates one entity. *tracker.Task implements it.
type Task interface {
	Refresh(ctx context.Context, prev tracker.Entity) tracker.Outcome
	Create(ctx context.Context, id string) tracker.Outcome
}

var _ Task = (*tracker.Task)(nil)

// Dispatcher sends notifications without blocking. *notify.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(n notify.Notification)
}

var _ Dispatcher = (*notify.Dispatcher)(nil)

// Config holds orchestrator configuration.
type Config struct {
	// Schedule drives refresh sessions.
	Schedule Schedule

	// ImportSchedule drives import sessions.
	ImportSchedule Schedule

	// MaxRounds stops a session after this many rounds (0 = until nothing is pending).
	MaxRounds int
}

// DefaultConfig returns the default schedules without a round limit.
func DefaultConfig() Config {
	return Config{
		Schedule:       DefaultSchedule(),
		ImportSchedule: ImportSchedule(),
	}
}

// Result is what a session settled on.
type Result struct {
	Mode   Mode
	Rounds int

	// Outcomes holds the last outcome per id.
	Outcomes map[string]tracker.Outcome

	// Succeeded lists the entities written to the set, in input order.
	Succeeded []tracker.Entity

	// Updated is the subset of Succeeded with new activity.
	Updated []tracker.Entity

	// Failed holds the fatal error per permanently excluded id.
	Failed map[string]error

	// Pending lists ids still transient when the session stopped early.
	Pending []string

	Duration time.Duration
}

// Summary is the "what changed" view of the last refresh session.
type Summary struct {
	Mode       Mode              `json:"mode"`
	Updated    []tracker.Entity  `json:"updated"`
	Failed     map[string]string `json:"failed,omitempty"`
	Pending    []string          `json:"pending,omitempty"`
	Show       bool              `json:"show"`
	FinishedAt time.Time         `json:"finished_at"`
}

// ImportResult reports an import session.
type ImportResult struct {
	Added   int              `json:"added"`
	Skipped []string         `json:"skipped,omitempty"`
	Errors  map[string]error `json:"-"`
	Pending []string         `json:"pending,omitempty"`
}

// Orchestrator owns refresh sessions over a tracking set.
type Orchestrator struct {
	set        *tracker.Set
	task       Task
	dispatcher Dispatcher
	config     Config
	logger     zerolog.Logger

	busy     atomic.Bool
	sessions sync.WaitGroup
	progress progressState

	summaryMu sync.RWMutex
	summary   *Summary

	sleep func(ctx context.Context, d time.Duration) error
	rand  func() float64
}

// New creates an orchestrator. dispatcher may be nil to disable notifications.
func New(set *tracker.Set, task Task, dispatcher Dispatcher, cfg Config) *Orchestrator {
	if len(cfg.Schedule.Rounds) == 0 {
		cfg.Schedule = DefaultSchedule()
	}
	if len(cfg.ImportSchedule.Rounds) == 0 {
		cfg.ImportSchedule = ImportSchedule()
	}
	if cfg.MaxRounds < 0 {
		cfg.MaxRounds = 0
	}

	return &Orchestrator{
		set:        set,
		task:       task,
		dispatcher: dispatcher,
		config:     cfg,
		logger:     log.With().Str("component", "refresh").Logger(),
		sleep:      sleepContext,
		rand:       rand.Float64,
	}
}

// Progress returns the live progress of the running (or last) session.
func (o *Orchestrator) Progress() Progress {
	return o.progress.get()
}

// Busy reports whether a session is running.
func (o *Orchestrator) Busy() bool {
	return o.busy.Load()
}

// Summary returns the summary of the last refresh session.
func (o *Orchestrator) Summary() (Summary, bool) {
	o.summaryMu.RLock()
	defer o.summaryMu.RUnlock()
	if o.summary == nil {
		return Summary{}, false
	}
	return *o.summary, true
}

// Wait blocks until sessions started with the Start* methods have finished.
func (o *Orchestrator) Wait() {
	o.sessions.Wait()
}

func (o *Orchestrator) acquire() error {
	if !o.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	return nil
}

func (o *Orchestrator) release() {
	o.busy.Store(false)
}

// RefreshAll refreshes every tracked app. mode is ModeRefresh for a user
// triggered session or ModeAuto for a timer triggered one; an auto session
// only asks for its summary to be shown when something changed.
func (o *Orchestrator) RefreshAll(ctx context.Context, mode Mode) (*Result, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()
	return o.refreshAll(ctx, mode)
}

// StartRefreshAll runs RefreshAll in the background. ctx must outlive the call.
func (o *Orchestrator) StartRefreshAll(ctx context.Context, mode Mode) error {
	if err := o.acquire(); err != nil {
		return err
	}
	o.sessions.Add(1)
	go func() {
		defer o.sessions.Done()
		defer o.release()
		o.refreshAll(ctx, mode)
	}()
	return nil
}

func (o *Orchestrator) refreshAll(ctx context.Context, mode Mode) (*Result, error) {
	if mode != ModeAuto {
		mode = ModeRefresh
	}

	ids := o.set.IDs()
	if len(ids) == 0 {
		return newResult(mode, 0), nil
	}

	res, err := o.run(ctx, mode, ids, o.config.Schedule, o.refreshWorker, o.commitUpdate)

	if len(res.Updated) > 0 {
		o.notify(SummaryNotification(res.Updated))
	}
	o.setSummary(res, mode == ModeRefresh || len(res.Updated) > 0)
	o.logSession(res, err)
	return res, err
}

// RefreshOne refreshes a single tracked app through the same round engine.
// New activity produces a notification tagged with the app and timestamp.
func (o *Orchestrator) RefreshOne(ctx context.Context, id string) (*Result, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()
	return o.refreshOne(ctx, id)
}

// StartRefreshOne runs RefreshOne in the background. ctx must outlive the call.
func (o *Orchestrator) StartRefreshOne(ctx context.Context, id string) error {
	if !o.set.Contains(id) {
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	if err := o.acquire(); err != nil {
		return err
	}
	o.sessions.Add(1)
	go func() {
		defer o.sessions.Done()
		defer o.release()
		o.refreshOne(ctx, id)
	}()
	return nil
}

func (o *Orchestrator) refreshOne(ctx context.Context, id string) (*Result, error) {
	if !o.set.Contains(id) {
		return nil, fmt.Errorf("%w: %s", ErrNotTracked, id)
	}

	res, err := o.run(ctx, ModeSingle, []string{id}, o.config.Schedule, o.refreshWorker, o.commitUpdate)

	for _, e := range res.Updated {
		o.notify(UpdateNotification(e))
	}
	o.setSummary(res, len(res.Updated) > 0)
	o.logSession(res, err)

	if ferr, failed := res.Failed[id]; failed && err == nil {
		err = ferr
	}
	return res, err
}

// Add looks up a new app once and tracks it. The error wraps
// steamapi.ErrInvalidIdentifier when the id does not exist, and
// tracker.ErrTransient when the lookup could not complete.
func (o *Orchestrator) Add(ctx context.Context, id string) (tracker.Entity, error) {
	if !ValidID(id) {
		return tracker.Entity{}, fmt.Errorf("app %q: %w", id, steamapi.ErrInvalidIdentifier)
	}
	if err := o.acquire(); err != nil {
		return tracker.Entity{}, err
	}
	defer o.release()

	if o.set.Contains(id) {
		return tracker.Entity{}, fmt.Errorf("%w: %s", ErrAlreadyTracked, id)
	}

	refreshSessionsTotal.WithLabelValues(string(ModeAdd)).Inc()
	o.progress.begin(ModeAdd, 1)
	defer o.progress.end()

	out := o.task.Create(ctx, id)
	o.progress.completed(1, id)
	refreshOutcomesTotal.WithLabelValues(string(out.Kind)).Inc()

	if out.Kind != tracker.OutcomeSuccess {
		o.logger.Warn().Err(out.Err).Str("app_id", id).Str("kind", string(out.Kind)).Msg("Failed to add app")
		return tracker.Entity{}, out.Err
	}

	added, err := o.set.Insert(context.WithoutCancel(ctx), out.Entity)
	if err != nil {
		o.logger.Warn().Err(err).Str("app_id", id).Msg("Failed to persist new app")
	}
	if !added {
		return tracker.Entity{}, fmt.Errorf("%w: %s", ErrAlreadyTracked, id)
	}

	o.logger.Info().Str("app_id", id).Str("name", out.Entity.Name).Msg("App added")
	return out.Entity, nil
}

// Import adds many apps. Duplicates and tracked ids are skipped; the rest
// are created over rounds of the import schedule until each one is added
// or known to be invalid.
func (o *Orchestrator) Import(ctx context.Context, ids []string) (*ImportResult, error) {
	if err := o.acquire(); err != nil {
		return nil, err
	}
	defer o.release()
	return o.importIDs(ctx, ids)
}

// StartImport runs Import in the background. ctx must outlive the call.
func (o *Orchestrator) StartImport(ctx context.Context, ids []string) error {
	if err := o.acquire(); err != nil {
		return err
	}
	o.sessions.Add(1)
	go func() {
		defer o.sessions.Done()
		defer o.release()
		o.importIDs(ctx, ids)
	}()
	return nil
}

func (o *Orchestrator) importIDs(ctx context.Context, ids []string) (*ImportResult, error) {
	result := &ImportResult{Errors: make(map[string]error)}

	seen := make(map[string]struct{}, len(ids))
	fresh := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		switch {
		case !ValidID(id):
			result.Errors[id] = fmt.Errorf("app %q: %w", id, steamapi.ErrInvalidIdentifier)
		case o.set.Contains(id):
			result.Skipped = append(result.Skipped, id)
		default:
			fresh = append(fresh, id)
		}
	}
	if len(fresh) == 0 {
		return result, nil
	}

	res, err := o.run(ctx, ModeImport, fresh, o.config.ImportSchedule, o.task.Create, o.commitInsert)

	result.Added = len(res.Succeeded)
	for id, ferr := range res.Failed {
		result.Errors[id] = ferr
	}
	result.Pending = res.Pending
	o.logSession(res, err)
	return result, err
}

// Remove stops tracking id. It may run during a session; the removed app
// is not written back by that session.
func (o *Orchestrator) Remove(ctx context.Context, id string) error {
	removed, err := o.set.Remove(ctx, id)
	if !removed {
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	if err != nil {
		o.logger.Warn().Err(err).Str("app_id", id).Msg("Failed to delete app from store")
	}
	o.logger.Info().Str("app_id", id).Msg("App removed")
	return nil
}

// worker produces the outcome for one id in a session.
type worker func(ctx context.Context, id string) tracker.Outcome

// commit writes a successful outcome and reports whether it was kept.
type commit func(ctx context.Context, out tracker.Outcome) bool

func (o *Orchestrator) refreshWorker(ctx context.Context, id string) tracker.Outcome {
	prev, ok := o.set.Get(id)
	if !ok {
		return tracker.Fatal(id, fmt.Errorf("%w: %s", ErrNotTracked, id))
	}
	return o.task.Refresh(ctx, prev)
}

func (o *Orchestrator) commitUpdate(ctx context.Context, out tracker.Outcome) bool {
	updated, err := o.set.Update(ctx, out.Entity)
	if err != nil {
		o.logger.Warn().Err(err).Str("app_id", out.ID).Msg("Failed to persist refreshed app")
	}
	if !updated {
		o.logger.Debug().Str("app_id", out.ID).Msg("App removed during session, discarding result")
	}
	return updated
}

func (o *Orchestrator) commitInsert(ctx context.Context, out tracker.Outcome) bool {
	added, err := o.set.Insert(ctx, out.Entity)
	if err != nil {
		o.logger.Warn().Err(err).Str("app_id", out.ID).Msg("Failed to persist imported app")
	}
	return added
}

func newResult(mode Mode, size int) *Result {
	return &Result{
		Mode:     mode,
		Outcomes: make(map[string]tracker.Outcome, size),
		Failed:   make(map[string]error),
	}
}

// run drives rounds over ids until nothing is pending, ctx ends, or the
// round limit is reached.
func (o *Orchestrator) run(ctx context.Context, mode Mode, ids []string, sched Schedule, work worker, keep commit) (*Result, error) {
	start := time.Now()
	res := newResult(mode, len(ids))
	logger := o.logger.With().Str("mode", string(mode)).Logger()

	refreshSessionsTotal.WithLabelValues(string(mode)).Inc()
	o.progress.begin(mode, len(ids))
	defer o.progress.end()

	// Results are written even if ctx ended during the round.
	writeCtx := context.WithoutCancel(ctx)

	pending := ids
	var runErr error
	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		res.Rounds++
		round := res.Rounds
		plan := sched.Plan(round)
		o.progress.round(round, len(pending))
		refreshRoundsTotal.Inc()

		logger.Info().
			Int("round", round).
			Int("pending", len(pending)).
			Int("concurrency", plan.Concurrency).
			Msg("Starting round")

		outcomes := batch.Map(ctx, pending, func(ctx context.Context, id string) tracker.Outcome {
			if d := plan.delay(o.rand()); d > 0 {
				if err := o.sleep(ctx, d); err != nil {
					return tracker.Transient(id, err)
				}
			}
			refreshInFlight.Inc()
			defer refreshInFlight.Dec()
			return work(ctx, id)
		}, plan.Concurrency, func(completed int, id string) {
			o.progress.completed(completed, id)
			logger.Debug().Int("round", round).Int("completed", completed).Str("app_id", id).Msg("App settled")
		})

		next := make([]string, 0, len(pending))
		var succeeded, failed int
		for i, out := range outcomes {
			id := pending[i]
			out.ID = id
			res.Outcomes[id] = out
			refreshOutcomesTotal.WithLabelValues(string(out.Kind)).Inc()

			switch out.Kind {
			case tracker.OutcomeSuccess:
				succeeded++
				if !keep(writeCtx, out) {
					continue
				}
				res.Succeeded = append(res.Succeeded, out.Entity)
				if out.HasNewActivity {
					res.Updated = append(res.Updated, out.Entity)
				}
			case tracker.OutcomeFatal:
				failed++
				res.Failed[id] = out.Err
				logger.Warn().Err(out.Err).Str("app_id", id).Int("round", round).Msg("App failed permanently")
			default:
				next = append(next, id)
			}
		}
		pending = next

		logger.Info().
			Int("round", round).
			Int("succeeded", succeeded).
			Int("failed", failed).
			Int("pending", len(pending)).
			Msg("Round finished")

		if len(pending) == 0 {
			break
		}
		if o.config.MaxRounds > 0 && res.Rounds >= o.config.MaxRounds {
			runErr = ErrRoundLimit
			break
		}
		if err := o.sleep(ctx, sched.Pause); err != nil {
			runErr = err
			break
		}
	}

	for _, id := range pending {
		if _, ok := res.Outcomes[id]; !ok {
			res.Outcomes[id] = tracker.Transient(id, runErr)
		}
	}
	res.Pending = append([]string(nil), pending...)
	res.Duration = time.Since(start)
	refreshSessionDuration.WithLabelValues(string(mode)).Observe(res.Duration.Seconds())

	return res, runErr
}

func (o *Orchestrator) notify(n notify.Notification) {
	if o.dispatcher == nil {
		return
	}
	o.dispatcher.Dispatch(n)
}

func (o *Orchestrator) setSummary(res *Result, show bool) {
	s := &Summary{
		Mode:       res.Mode,
		Updated:    append([]tracker.Entity(nil), res.Updated...),
		Pending:    res.Pending,
		Show:       show,
		FinishedAt: time.Now(),
	}
	if len(res.Failed) > 0 {
		s.Failed = make(map[string]string, len(res.Failed))
		for id, err := range res.Failed {
			s.Failed[id] = err.Error()
		}
	}

	o.summaryMu.Lock()
	defer o.summaryMu.Unlock()
	o.summary = s
}

func (o *Orchestrator) logSession(res *Result, err error) {
	event := o.logger.Info()
	if err != nil {
		event = o.logger.Warn().Err(err)
	}
	event.
		Str("mode", string(res.Mode)).
		Int("rounds", res.Rounds).
		Int("succeeded", len(res.Succeeded)).
		Int("updated", len(res.Updated)).
		Int("failed", len(res.Failed)).
		Int("pending", len(res.Pending)).
		Dur("duration", res.Duration).
		Msg("Session finished")
}

// sleepContext waits for d or until ctx ends.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
