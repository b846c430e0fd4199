package database

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/microsoft/go-mssqldb"

	"github.com/semmidev/backuppilot/internal/domain"
)

// DSN returns the database/sql driver name and connection string for a
// target. The result contains the password and must never be logged.
func DSN(target *domain.DatabaseTarget, timeout time.Duration) (driver string, dsn string, err error) {
	switch target.Engine {
	case domain.EngineMySQL:
		cfg := mysql.NewConfig()
		cfg.User = target.Username
		cfg.Passwd = target.Password
		cfg.Net = "tcp"
		cfg.Addr = target.Address()
		cfg.DBName = target.Schema()
		cfg.Timeout = timeout
		return "mysql", cfg.FormatDSN(), nil

	case domain.EnginePostgres:
		parts := []string{
			"host=" + pqQuote(target.Host),
			"port=" + strconv.Itoa(target.Port),
			"user=" + pqQuote(target.Username),
			"password=" + pqQuote(target.Password),
			"dbname=" + pqQuote(target.Schema()),
			"sslmode=disable",
		}
		if secs := int(timeout.Seconds()); secs > 0 {
			parts = append(parts, fmt.Sprintf("connect_timeout=%d", secs))
		}
		return "postgres", strings.Join(parts, " "), nil

	case domain.EngineSQLServer:
		query := url.Values{}
		query.Set("database", target.Schema())
		if secs := int(timeout.Seconds()); secs > 0 {
			query.Set("dial timeout", strconv.Itoa(secs))
		}
		u := &url.URL{
			Scheme:   "sqlserver",
			User:     url.UserPassword(target.Username, target.Password),
			Host:     target.Address(),
			RawQuery: query.Encode(),
		}
		return "sqlserver", u.String(), nil

	case domain.EngineSQLite:
		if target.Path == "" {
			return "", "", domain.Errorf(domain.KindMisconfigured, "sqlite target %s has no file path", target.Name)
		}
		return "sqlite", target.Path, nil
	}

	return "", "", domain.Errorf(domain.KindUnsupportedKind, "unsupported database type %q", target.Engine)
}

func pqQuote(v string) string {
	if v != "" && !strings.ContainsAny(v, " '\\") {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
