package database

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
)

const (
	DefaultDumpTimeout = 30 * time.Minute

	// EmptyDatabaseMarker is present in every placeholder payload.
	EmptyDatabaseMarker = "-- EMPTY DATABASE"
)

var ErrEmptyDatabase = domain.ErrEmptyDatabase

var emptyQuerySignals = []string{
	"Query was empty",
	"ER_EMPTY_QUERY",
	"Error: 1065",
	"ERROR 1065",
}

func isEmptyQueryError(text string) bool {
	for _, s := range emptyQuerySignals {
		if strings.Contains(text, s) {
			return true
		}
	}
	return false
}

func hasSchemaObjects(dump []byte) bool {
	return bytes.Contains(dump, []byte("CREATE "))
}

// finishDump turns a dump tool invocation into a payload or a classified
// error. Tool output is redacted before it can reach an error message.
func finishDump(target *domain.DatabaseTarget, tool string, res shell.Result, err error) ([]byte, error) {
	if err != nil {
		output := res.Output()
		if isEmptyQueryError(output) {
			return nil, ErrEmptyDatabase
		}
		if errors.Is(err, shell.ErrToolNotFound) {
			return nil, domain.WrapError(domain.KindDumpFailed,
				fmt.Sprintf("%s is not installed on this system", tool), err).
				WithRemediation(installHint(tool))
		}

		detail := shell.Redact(output, target.Password)
		if detail == "" {
			detail = err.Error()
		}
		return nil, domain.Errorf(domain.KindDumpFailed, "%s failed for %s: %s", tool, target.Name, detail)
	}

	if len(bytes.TrimSpace(res.Stdout)) == 0 || !hasSchemaObjects(res.Stdout) {
		return nil, ErrEmptyDatabase
	}
	return res.Stdout, nil
}

func installHint(tool string) string {
	switch tool {
	case "mysqldump":
		return "Install the MySQL client tools (e.g. `apt-get install default-mysql-client` or `brew install mysql-client`)."
	case "pg_dump":
		return "Install the PostgreSQL client tools (e.g. `apt-get install postgresql-client` or `brew install libpq`)."
	case "sqlite3":
		return "Install the sqlite3 command line shell (e.g. `apt-get install sqlite3` or `brew install sqlite`)."
	}
	return fmt.Sprintf("Install %s and make sure it is on PATH.", tool)
}

// Placeholder builds the payload stored for an empty database. It carries
// the marker line and never any credentials.
func Placeholder(target *domain.DatabaseTarget, now time.Time) []byte {
	ts := now.UTC().Format(time.RFC3339)
	var b strings.Builder

	switch target.Engine {
	case domain.EngineMySQL:
		fmt.Fprintf(&b, "-- MySQL backup for empty database: %s\n", target.Schema())
		fmt.Fprintf(&b, "-- Generated at: %s\n", ts)
		fmt.Fprintf(&b, "-- Host: %s\n", target.Address())
		fmt.Fprintf(&b, "-- Database: %s\n", target.Schema())
		b.WriteString(EmptyDatabaseMarker + "\n\n")
		b.WriteString("-- This database currently contains no tables or data\n")
		b.WriteString("-- But the connection was successful\n\n")
		b.WriteString("SET NAMES utf8mb4;\n")
		b.WriteString("SET FOREIGN_KEY_CHECKS = 0;\n")
		b.WriteString("SET SQL_MODE = \"NO_AUTO_VALUE_ON_ZERO\";\n")
		b.WriteString("SET AUTOCOMMIT = 0;\n")
		b.WriteString("START TRANSACTION;\n")
		b.WriteString("SET time_zone = \"+00:00\";\n\n")
		b.WriteString("-- Database structure dump completed (empty database)\n\n")
		b.WriteString("COMMIT;\n")
		b.WriteString("SET FOREIGN_KEY_CHECKS = 1;\n")
	case domain.EnginePostgres:
		fmt.Fprintf(&b, "-- PostgreSQL backup for empty database: %s\n", target.Schema())
		fmt.Fprintf(&b, "-- Generated at: %s\n", ts)
		fmt.Fprintf(&b, "-- Host: %s\n", target.Address())
		b.WriteString(EmptyDatabaseMarker + "\n\n")
		b.WriteString("SET client_encoding = 'UTF8';\n")
		b.WriteString("SET standard_conforming_strings = on;\n\n")
		b.WriteString("-- No relations found\n")
	case domain.EngineSQLServer:
		fmt.Fprintf(&b, "-- SQL Server backup for empty database: %s\n", target.Schema())
		fmt.Fprintf(&b, "-- Generated at: %s\n", ts)
		fmt.Fprintf(&b, "-- Host: %s\n", target.Address())
		b.WriteString(EmptyDatabaseMarker + "\n\n")
		b.WriteString("-- No base tables found\n")
	default:
		fmt.Fprintf(&b, "-- %s backup for empty database: %s\n", target.Engine, target.Name)
		fmt.Fprintf(&b, "-- Generated at: %s\n", ts)
		b.WriteString(EmptyDatabaseMarker + "\n\n")
		b.WriteString("PRAGMA foreign_keys=OFF;\nBEGIN TRANSACTION;\nCOMMIT;\n")
	}

	return []byte(b.String())
}

// Producer selects the dumper for a target's engine.
type Producer struct {
	dumpers map[domain.EngineType]domain.Dumper
}

func NewProducer(runner shell.Runner, timeout time.Duration) *Producer {
	if timeout <= 0 {
		timeout = DefaultDumpTimeout
	}
	p := &Producer{dumpers: make(map[domain.EngineType]domain.Dumper)}
	p.Register(NewMySQL(runner, timeout))
	p.Register(NewPostgreSQL(runner, timeout))
	p.Register(NewSQLite(runner, timeout))
	p.Register(NewSQLServer(timeout))
	return p
}

func (p *Producer) Register(d domain.Dumper) {
	p.dumpers[d.Engine()] = d
}

func (p *Producer) For(engine domain.EngineType) (domain.Dumper, error) {
	d, ok := p.dumpers[engine]
	if !ok {
		return nil, domain.Errorf(domain.KindUnsupportedKind, "no dump producer for database type %q", engine)
	}
	return d, nil
}

func (p *Producer) Placeholder(target *domain.DatabaseTarget, now time.Time) []byte {
	return Placeholder(target, now)
}
