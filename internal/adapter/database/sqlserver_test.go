package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/backuppilot/internal/domain"
)

func TestSQLServerDumper(t *testing.T) {
	Convey("Given a SQL Server dumper on a mocked connection", t, func() {
		db, mock, err := sqlmock.New()
		So(err, ShouldBeNil)
		defer db.Close()

		var openedDriver string
		dumper := NewSQLServer(time.Minute).WithOpener(func(driver, dsn string) (*sql.DB, error) {
			openedDriver = driver
			return db, nil
		})
		target := &domain.DatabaseTarget{ID: 3, Name: "erp", Engine: domain.EngineSQLServer, Host: "mssql", Port: 1433, Username: "sa", Password: "pw"}

		Convey("When the database has tables", func() {
			mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).
				WillReturnRows(sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME"}).AddRow("dbo", "users"))
			mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM [dbo].[users]")).
				WillReturnRows(sqlmock.NewRows([]string{"id", "name", "avatar", "deleted"}).
					AddRow(int64(1), "O'Brien", []byte{0xCA, 0xFE}, nil))

			data, err := dumper.Dump(context.Background(), target)

			Convey("It should emit INSERT statements", func() {
				So(err, ShouldBeNil)
				So(openedDriver, ShouldEqual, "sqlserver")
				So(string(data), ShouldContainSubstring, "-- Table: [dbo].[users]")
				So(string(data), ShouldContainSubstring,
					"INSERT INTO [dbo].[users] ([id], [name], [avatar], [deleted]) VALUES (1, N'O''Brien', 0xCAFE, NULL);")
				So(mock.ExpectationsWereMet(), ShouldBeNil)
			})
		})

		Convey("When the database has no tables", func() {
			mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).
				WillReturnRows(sqlmock.NewRows([]string{"TABLE_SCHEMA", "TABLE_NAME"}))

			_, err := dumper.Dump(context.Background(), target)

			Convey("It should classify the database as empty", func() {
				So(errors.Is(err, ErrEmptyDatabase), ShouldBeTrue)
			})
		})

		Convey("When the server rejects the query", func() {
			mock.ExpectQuery(regexp.QuoteMeta(listTablesQuery)).WillReturnError(errors.New("login failed for user 'sa'"))

			_, err := dumper.Dump(context.Background(), target)

			Convey("It should fail with DumpFailed", func() {
				So(domain.KindOf(err), ShouldEqual, domain.KindDumpFailed)
				So(err.Error(), ShouldContainSubstring, "login failed")
			})
		})
	})
}
