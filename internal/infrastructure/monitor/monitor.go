package monitor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sourcegraph/conc/iter"

	"github.com/semmidev/backuppilot/internal/adapter/database"
	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/metrics"
	"github.com/semmidev/backuppilot/internal/usecase"
)

const (
	DefaultProbeTimeout = 5 * time.Second
	maxConcurrentProbes = 8
)

var ErrAlreadyRunning = errors.New("monitor is already running")

type TargetLister interface {
	ListTargets(ctx context.Context) ([]domain.DatabaseTarget, error)
}

type Prober interface {
	Probe(ctx context.Context, target *domain.DatabaseTarget) error
}

type OpenFunc func(driverName, dataSourceName string) (*sql.DB, error)

// SQLProber opens a connection, pings and closes it. It never touches the
// job history.
type SQLProber struct {
	open    OpenFunc
	timeout time.Duration
}

func NewSQLProber(timeout time.Duration) *SQLProber {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	return &SQLProber{open: sql.Open, timeout: timeout}
}

func (p *SQLProber) WithOpener(open OpenFunc) *SQLProber {
	p.open = open
	return p
}

func (p *SQLProber) Probe(ctx context.Context, target *domain.DatabaseTarget) error {
	if target.Engine == domain.EngineSQLite {
		if _, err := os.Stat(target.Path); err != nil {
			return domain.WrapError(domain.KindHostUnreachable, fmt.Sprintf("sqlite file %s is not accessible", target.Path), err)
		}
	}

	driver, dsn, err := database.DSN(target, p.timeout)
	if err != nil {
		return err
	}

	db, err := p.open(driver, dsn)
	if err != nil {
		return domain.WrapError(domain.KindMisconfigured, fmt.Sprintf("failed to open connection to %s", target.Name), err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return domain.WrapError(domain.KindHostUnreachable, fmt.Sprintf("failed to reach %s at %s", target.Name, target.Address()), err)
	}
	return nil
}

type Reachability struct {
	TargetID   uint
	TargetName string
	Engine     domain.EngineType
	Reachable  bool
	Latency    time.Duration
	CheckedAt  time.Time
	Err        error
}

// Monitor periodically probes every configured database. It owns its
// goroutine and shares no state with the backup path.
type Monitor struct {
	targets TargetLister
	prober  Prober
	logger  usecase.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	last    []Reachability
}

func New(targets TargetLister, prober Prober, logger usecase.Logger) *Monitor {
	return &Monitor{targets: targets, prober: prober, logger: logger}
}

// Start probes immediately and then on every interval. A second Start
// without a Stop in between returns ErrAlreadyRunning.
func (m *Monitor) Start(interval time.Duration) error {
	if interval <= 0 {
		return domain.Errorf(domain.KindMisconfigured, "monitor interval must be positive, got %s", interval)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrAlreadyRunning
	}
	m.running = true
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.loop(interval, m.stop, m.done)
	m.logger.Infof("Database monitor started, interval: %s", interval)
	return nil
}

func (m *Monitor) loop(interval time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.CheckOnce(context.Background())
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.CheckOnce(context.Background())
		}
	}
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	stop, done := m.stop, m.done
	m.mu.Unlock()

	close(stop)
	<-done
	m.logger.Infof("Database monitor stopped")
}

func (m *Monitor) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// CheckOnce probes all targets concurrently and returns one result per
// target in listing order.
func (m *Monitor) CheckOnce(ctx context.Context) []Reachability {
	targets, err := m.targets.ListTargets(ctx)
	if err != nil {
		m.logger.Errorf("Database monitor could not list targets: %v", err)
		return nil
	}

	mapper := iter.Mapper[domain.DatabaseTarget, Reachability]{MaxGoroutines: maxConcurrentProbes}
	results := mapper.Map(targets, func(t *domain.DatabaseTarget) Reachability {
		return m.check(ctx, t)
	})

	m.mu.Lock()
	m.last = results
	m.mu.Unlock()
	return results
}

func (m *Monitor) check(ctx context.Context, t *domain.DatabaseTarget) Reachability {
	start := time.Now()
	err := m.prober.Probe(ctx, t)
	r := Reachability{
		TargetID:   t.ID,
		TargetName: t.Name,
		Engine:     t.Engine,
		Reachable:  err == nil,
		Latency:    time.Since(start),
		CheckedAt:  start,
		Err:        err,
	}

	metrics.SetReachable(t.Name, string(t.Engine), r.Reachable)
	if err != nil {
		m.logger.Warnf("[%s] Database unreachable: %v", t.Name, err)
	} else {
		m.logger.Debugf("[%s] Database reachable in %s", t.Name, r.Latency.Round(time.Millisecond))
	}
	return r
}

func (m *Monitor) LastResults() []Reachability {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Reachability(nil), m.last...)
}
