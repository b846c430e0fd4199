package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/metrics"
	"github.com/semmidev/backuppilot/internal/usecase"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

type ScheduleSource interface {
	ListEnabledSchedules(ctx context.Context) ([]domain.Schedule, error)
	GetSchedule(ctx context.Context, id uint) (*domain.Schedule, error)
}

type TargetRunner interface {
	RunTargets(ctx context.Context, targets []domain.DatabaseTarget) []usecase.JobResult
}

type entry struct {
	id   cron.EntryID
	name string
	expr string
}

// Scheduler owns one cron instance and the timer registered for each
// enabled schedule. Construct it once per process.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	loc     *time.Location
	entries map[uint]entry
	running bool

	source ScheduleSource
	runner TargetRunner
	logger usecase.Logger
}

type Option func(*Scheduler)

// WithLocation sets the time zone cron expressions are evaluated in.
// The default is UTC.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.loc = loc
	}
}

func New(source ScheduleSource, runner TargetRunner, logger usecase.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		loc:     time.UTC,
		entries: make(map[uint]entry),
		source:  source,
		runner:  runner,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron = cron.New(
		cron.WithParser(parser),
		cron.WithLocation(s.loc),
		cron.WithChain(cron.Recover(cronLogger{logger})),
	)
	return s
}

const expressionHint = "Use five fields: minute hour day-of-month month day-of-week, e.g. \"0 2 * * *\"."

// ValidateExpression accepts standard five-field cron expressions only.
// Descriptors such as @hourly or @every and per-expression time zones are
// rejected.
func ValidateExpression(expr string) error {
	_, err := parse(expr)
	return err
}

func parse(expr string) (cron.Schedule, error) {
	trimmed := strings.TrimSpace(expr)
	if strings.HasPrefix(trimmed, "TZ=") || strings.HasPrefix(trimmed, "CRON_TZ=") {
		return nil, domain.Errorf(domain.KindMisconfigured, "invalid cron expression %q: time zone prefixes are not supported", expr).
			WithRemediation(expressionHint + " Set scheduler.timezone instead.")
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, domain.WrapError(domain.KindMisconfigured, fmt.Sprintf("invalid cron expression %q", expr), err).
			WithRemediation(expressionHint)
	}
	return sched, nil
}

// NextRunEstimate returns the first activation strictly after now, evaluated
// in now's location.
func NextRunEstimate(expr string, now time.Time) (time.Time, error) {
	sched, err := parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(now), nil
}

// ReconcileAll rebuilds every timer from the enabled schedules. Schedules
// that fail to register are skipped and reported together.
func (s *Scheduler) ReconcileAll(ctx context.Context) error {
	schedules, err := s.source.ListEnabledSchedules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id := range s.entries {
		s.removeLocked(id)
	}

	var errs []error
	for i := range schedules {
		if err := s.registerLocked(&schedules[i]); err != nil {
			s.logger.Errorf("Skipping schedule %s: %v", schedules[i].Name, err)
			errs = append(errs, err)
		}
	}

	s.logger.Infof("Scheduler reconciled: %d active timer(s)", len(s.entries))
	return errors.Join(errs...)
}

// ReconcileOne brings the timer of a single schedule in line with its
// stored state. Deleted, disabled, empty and invalid schedules end up with
// no timer. When the schedule cannot be read the existing timer is kept.
func (s *Scheduler) ReconcileOne(ctx context.Context, id uint) error {
	sch, err := s.source.GetSchedule(ctx, id)
	if err != nil && !domain.IsKind(err, domain.KindNotFound) {
		return fmt.Errorf("failed to read schedule %d: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.removeLocked(id)
	if err != nil || !sch.Enabled {
		return nil
	}
	return s.registerLocked(sch)
}

func (s *Scheduler) registerLocked(sch *domain.Schedule) error {
	if err := ValidateExpression(sch.Cron); err != nil {
		return err
	}
	if len(sch.Targets) == 0 {
		s.logger.Infof("Schedule %s has no databases, not registering", sch.Name)
		return nil
	}

	scheduleID, name := sch.ID, sch.Name
	targets := append([]domain.DatabaseTarget(nil), sch.Targets...)

	id, err := s.cron.AddFunc(sch.Cron, func() {
		s.fire(scheduleID, name, targets)
	})
	if err != nil {
		return domain.WrapError(domain.KindMisconfigured, fmt.Sprintf("failed to register schedule %s", name), err)
	}

	s.entries[sch.ID] = entry{id: id, name: name, expr: sch.Cron}
	metrics.ScheduledTimers.Set(float64(len(s.entries)))
	s.logger.Debugf("Registered schedule %s (%s) with %d database(s)", name, sch.Cron, len(targets))
	return nil
}

func (s *Scheduler) removeLocked(id uint) {
	e, ok := s.entries[id]
	if !ok {
		return
	}
	s.cron.Remove(e.id)
	delete(s.entries, id)
	metrics.ScheduledTimers.Set(float64(len(s.entries)))
}

// fire reloads the schedule so that target changes made since registration,
// BackupEnabled included, apply to this run. If the store cannot be read the
// targets captured at registration are used; a deleted or disabled schedule
// does not run. Targets with backups disabled
// are left out of scheduled runs.
func (s *Scheduler) fire(scheduleID uint, name string, targets []domain.DatabaseTarget) {
	ctx := context.Background()
	sch, err := s.source.GetSchedule(ctx, scheduleID)
	switch {
	case domain.IsKind(err, domain.KindNotFound):
		s.logger.Infof("Schedule %s no longer exists, skipping run", name)
		return
	case err != nil:
		s.logger.Warnf("Schedule %s: failed to reload targets, using registered ones: %v", name, err)
	case !sch.Enabled:
		s.logger.Infof("Schedule %s is disabled, skipping run", name)
		return
	default:
		targets = sch.Targets
	}

	enabled := make([]domain.DatabaseTarget, 0, len(targets))
	for _, t := range targets {
		if t.BackupEnabled {
			enabled = append(enabled, t)
		} else {
			s.logger.Infof("[%s] Backups disabled, skipping in schedule %s", t.Name, name)
		}
	}
	if len(enabled) == 0 {
		return
	}

	s.logger.Infof("Schedule %s fired for %d database(s)", name, len(enabled))
	results := s.runner.RunTargets(ctx, enabled)

	ok := 0
	for _, r := range results {
		if r.Success {
			ok++
			continue
		}
		s.logger.Errorf("[%s] Scheduled backup failed: %v", r.TargetName, r.Err)
	}
	s.logger.Infof("Schedule %s finished: %d/%d successful", name, ok, len(results))
}

type EntryStatus struct {
	ScheduleID uint
	Name       string
	Cron       string
	Next       time.Time
}

type Status struct {
	Running     bool
	ActiveCount int
	Entries     []EntryStatus
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.running, ActiveCount: len(s.entries)}
	for id, e := range s.entries {
		next := s.cron.Entry(e.id).Next
		if next.IsZero() {
			next, _ = NextRunEstimate(e.expr, time.Now().In(s.cron.Location()))
		}
		st.Entries = append(st.Entries, EntryStatus{ScheduleID: id, Name: e.name, Cron: e.expr, Next: next})
	}
	sort.Slice(st.Entries, func(i, j int) bool { return st.Entries[i].ScheduleID < st.Entries[j].ScheduleID })
	return st
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop halts the cron loop and waits for running backups to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	ctx := s.cron.Stop()
	<-ctx.Done()
}

// cronLogger routes cron's own messages, including recovered panics from a
// fired schedule, to the application logger.
type cronLogger struct {
	logger usecase.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugf("cron: %s %v", msg, keysAndValues)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorf("cron: %s: %v %v", msg, err, keysAndValues)
}
