package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
)

type memStore struct {
	mu           sync.Mutex
	targets      map[uint]*domain.DatabaseTarget
	destinations map[uint]*domain.Destination
	schedules    map[uint]*domain.Schedule
	jobs         map[uint]*domain.Job
	nextJobID    uint
	createErr    error
	finishErr    error
}

func newMemStore() *memStore {
	return &memStore{
		targets:      make(map[uint]*domain.DatabaseTarget),
		destinations: make(map[uint]*domain.Destination),
		schedules:    make(map[uint]*domain.Schedule),
		jobs:         make(map[uint]*domain.Job),
	}
}

func (s *memStore) GetTarget(ctx context.Context, id uint) (*domain.DatabaseTarget, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.targets[id]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "database %d not found", id)
	}
	cp := *t
	return &cp, nil
}

func (s *memStore) GetDestination(ctx context.Context, id uint) (*domain.Destination, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.destinations[id]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "destination %d not found", id)
	}
	cp := *d
	return &cp, nil
}

func (s *memStore) GetSchedule(ctx context.Context, id uint) (*domain.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sch, ok := s.schedules[id]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "schedule %d not found", id)
	}
	cp := *sch
	return &cp, nil
}

func (s *memStore) CreateJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.nextJobID++
	job.ID = s.nextJobID
	job.Status = domain.JobRunning
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) FinishJob(ctx context.Context, job *domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishErr != nil {
		return s.finishErr
	}
	existing, ok := s.jobs[job.ID]
	if !ok || existing.Status != domain.JobRunning {
		return domain.Errorf(domain.KindNotFound, "running job %d not found", job.ID)
	}
	cp := *job
	s.jobs[job.ID] = &cp
	return nil
}

func (s *memStore) GetJob(ctx context.Context, id uint) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, domain.Errorf(domain.KindNotFound, "backup job %d not found", id)
	}
	cp := *j
	return &cp, nil
}

func (s *memStore) ListJobs(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, j := range s.jobs {
		if filter.DatabaseID != nil && j.DatabaseID != *filter.DatabaseID {
			continue
		}
		if filter.Status != "" && j.Status != filter.Status {
			continue
		}
		out = append(out, *j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *memStore) LatestSuccessfulJob(ctx context.Context, destinationID uint, since time.Time) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *domain.Job
	for _, j := range s.jobs {
		if j.DestinationID != destinationID || j.Status != domain.JobSuccess || j.FinishedAt == nil {
			continue
		}
		if j.FinishedAt.Before(since) {
			continue
		}
		if latest == nil || j.FinishedAt.After(*latest.FinishedAt) {
			cp := *j
			latest = &cp
		}
	}
	return latest, nil
}

func (s *memStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *memStore) job(id uint) domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.jobs[id]
}

// fakeStorage keeps artifacts in memory keyed by namespace/filename.
type fakeStorage struct {
	mu       sync.Mutex
	objects  map[string][]byte
	storeErr error
	live     bool
	probe    domain.ConnectionResult
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte), live: true, probe: domain.ConnectionOK("ok")}
}

func (f *fakeStorage) Kind() domain.DestinationKind { return domain.KindObjectStore }

func (f *fakeStorage) Store(ctx context.Context, filename string, data []byte, namespace string) (*domain.StoredArtifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.storeErr != nil {
		return nil, f.storeErr
	}
	key := namespace + "/" + filename
	f.objects[key] = append([]byte(nil), data...)
	return &domain.StoredArtifact{Location: "mem://" + key, Size: int64(len(data))}, nil
}

func (f *fakeStorage) TestConnection(ctx context.Context) domain.ConnectionResult {
	return f.probe
}

func (f *fakeStorage) LiveProbe() bool { return f.live }

func (f *fakeStorage) List(ctx context.Context, namespace string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	prefix := namespace + "/"
	for key := range f.objects {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			names = append(names, key[len(prefix):])
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeStorage) Delete(ctx context.Context, namespace, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, namespace+"/"+name)
	return nil
}

// GetOldFiles has no modification times to go on, so pruning falls back to
// the timestamp embedded in each filename.
func (f *fakeStorage) GetOldFiles(ctx context.Context, namespace string, cutoff time.Time) ([]string, error) {
	return nil, errors.New("not supported")
}

func (f *fakeStorage) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for k := range f.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

type fakeOpener struct {
	storage domain.Storage
	err     error
}

func (o *fakeOpener) Open(ctx context.Context, dest *domain.Destination) (domain.Storage, error) {
	return o.storage, o.err
}

type fakeDumper struct {
	engine  domain.EngineType
	payload map[uint][]byte
	errs    map[uint]error
	delay   time.Duration
	calls   int32
	during  func(ctx context.Context)
}

func (d *fakeDumper) Engine() domain.EngineType { return d.engine }

func (d *fakeDumper) Dump(ctx context.Context, target *domain.DatabaseTarget) ([]byte, error) {
	atomic.AddInt32(&d.calls, 1)
	if d.delay > 0 {
		time.Sleep(d.delay)
	}
	if d.during != nil {
		d.during(ctx)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	if err := d.errs[target.ID]; err != nil {
		return nil, err
	}
	if p, ok := d.payload[target.ID]; ok {
		return p, nil
	}
	return []byte("CREATE TABLE t (id int);\n"), nil
}

type fakeDumpers struct {
	dumper *fakeDumper
}

func (f *fakeDumpers) For(engine domain.EngineType) (domain.Dumper, error) {
	if engine != f.dumper.engine {
		return nil, domain.Errorf(domain.KindUnsupportedKind, "unsupported database type %q", engine)
	}
	return f.dumper, nil
}

func (f *fakeDumpers) Placeholder(target *domain.DatabaseTarget, now time.Time) []byte {
	return []byte("-- EMPTY DATABASE " + target.Name + "\n")
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []domain.BackupEvent
}

func (n *recordingNotifier) Notify(ctx context.Context, event domain.BackupEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return errors.New("telegram unavailable")
}
