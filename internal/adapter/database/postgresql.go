package database

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
)

type PostgreSQLDumper struct {
	runner  shell.Runner
	timeout time.Duration
}

func NewPostgreSQL(runner shell.Runner, timeout time.Duration) *PostgreSQLDumper {
	return &PostgreSQLDumper{runner: runner, timeout: timeout}
}

func (p *PostgreSQLDumper) Dump(ctx context.Context, target *domain.DatabaseTarget) ([]byte, error) {
	cmd := shell.Command{
		Name: "pg_dump",
		Args: []string{
			fmt.Sprintf("--host=%s", target.Host),
			fmt.Sprintf("--port=%d", target.Port),
			fmt.Sprintf("--username=%s", target.Username),
			"--format=plain",
			"--no-password",
			target.Schema(),
		},
		// Set PGPASSWORD environment variable
		Env:     []string{fmt.Sprintf("PGPASSWORD=%s", target.Password)},
		Timeout: p.timeout,
	}

	res, err := p.runner.Run(ctx, cmd)
	return finishDump(target, "pg_dump", res, err)
}

func (p *PostgreSQLDumper) Engine() domain.EngineType {
	return domain.EnginePostgres
}
