package database

import (
	"context"
	"fmt"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
)

type MySQLDumper struct {
	runner  shell.Runner
	timeout time.Duration
}

func NewMySQL(runner shell.Runner, timeout time.Duration) *MySQLDumper {
	return &MySQLDumper{runner: runner, timeout: timeout}
}

// Dump runs mysqldump. The password travels in MYSQL_PWD so it stays off
// the argument list, though it is still visible in the child environment.
func (m *MySQLDumper) Dump(ctx context.Context, target *domain.DatabaseTarget) ([]byte, error) {
	args := []string{
		fmt.Sprintf("--host=%s", target.Host),
		fmt.Sprintf("--port=%d", target.Port),
		fmt.Sprintf("--user=%s", target.Username),
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
		target.Schema(),
	}

	cmd := shell.Command{
		Name:    "mysqldump",
		Args:    args,
		Env:     []string{fmt.Sprintf("MYSQL_PWD=%s", target.Password)},
		Timeout: m.timeout,
	}

	res, err := m.runner.Run(ctx, cmd)
	return finishDump(target, "mysqldump", res, err)
}

func (m *MySQLDumper) Engine() domain.EngineType {
	return domain.EngineMySQL
}
