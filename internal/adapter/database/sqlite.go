package database

import (
	"context"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
)

type SQLiteDumper struct {
	runner  shell.Runner
	timeout time.Duration
}

func NewSQLite(runner shell.Runner, timeout time.Duration) *SQLiteDumper {
	return &SQLiteDumper{runner: runner, timeout: timeout}
}

func (s *SQLiteDumper) Dump(ctx context.Context, target *domain.DatabaseTarget) ([]byte, error) {
	if target.Path == "" {
		return nil, domain.Errorf(domain.KindMisconfigured, "sqlite target %s has no file path", target.Name)
	}

	res, err := s.runner.Run(ctx, shell.Command{
		Name:    "sqlite3",
		Args:    []string{"-readonly", target.Path, ".dump"},
		Timeout: s.timeout,
	})
	return finishDump(target, "sqlite3", res, err)
}

func (s *SQLiteDumper) Engine() domain.EngineType {
	return domain.EngineSQLite
}
