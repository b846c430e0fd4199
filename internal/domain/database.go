package domain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type EngineType string

const (
	EngineMySQL     EngineType = "MYSQL"
	EnginePostgres  EngineType = "POSTGRES"
	EngineSQLServer EngineType = "SQLSERVER"
	EngineSQLite    EngineType = "SQLITE"
)

func ParseEngine(s string) (EngineType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "MYSQL", "MARIADB":
		return EngineMySQL, nil
	case "POSTGRES", "POSTGRESQL":
		return EnginePostgres, nil
	case "SQLSERVER", "MSSQL":
		return EngineSQLServer, nil
	case "SQLITE", "SQLITE3":
		return EngineSQLite, nil
	}
	return "", Errorf(KindUnsupportedKind, "unsupported database type %q", s)
}

// DatabaseTarget is a configured source database. It is owned by the
// administrative layer and read-only to the backup engine.
type DatabaseTarget struct {
	ID            uint
	Name          string
	Engine        EngineType
	Host          string
	Port          int
	Username      string
	Password      string
	DatabaseName  string
	Path          string
	ScheduleID    *uint
	DestinationID *uint
	BackupEnabled bool
}

// Schema returns the database name to dump, defaulting to the display name.
func (t *DatabaseTarget) Schema() string {
	if t.DatabaseName != "" {
		return t.DatabaseName
	}
	return t.Name
}

func (t *DatabaseTarget) Address() string {
	if t.Engine == EngineSQLite {
		return t.Path
	}
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// String never includes the password.
func (t *DatabaseTarget) String() string {
	return fmt.Sprintf("%s (%s %s)", t.Name, t.Engine, t.Address())
}

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9]`)

func SanitizeName(name string) string {
	return unsafeNameChars.ReplaceAllString(name, "_")
}

// Namespace is the per-target folder/key prefix inside a destination. It is
// derived from the id, so two targets never share one.
func (t *DatabaseTarget) Namespace() string {
	return fmt.Sprintf("db_%d_%s", t.ID, SanitizeName(t.Name))
}

// ErrEmptyDatabase marks the one non-fatal dump outcome: the source has no
// schema objects, so a placeholder payload is stored instead.
var ErrEmptyDatabase = errors.New("database is empty")

// Dumper produces the full logical content of a database.
type Dumper interface {
	Dump(ctx context.Context, target *DatabaseTarget) ([]byte, error)
	Engine() EngineType
}
