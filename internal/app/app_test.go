package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	"golang.org/x/oauth2"

	"github.com/semmidev/backuppilot/internal/config"
	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/logger"
	"github.com/semmidev/backuppilot/internal/usecase"
)

func testConfig(dir string) *config.Config {
	return &config.Config{
		App:       config.AppConfig{Name: "backuppilot"},
		Metadata:  config.MetadataConfig{DBPath: filepath.Join(dir, "pilot.db")},
		Backup:    config.BackupConfig{TempDir: filepath.Join(dir, "tmp"), DumpTimeout: time.Minute},
		Scheduler: config.SchedulerConfig{Timezone: "UTC"},
		Monitor:   config.MonitorConfig{IntervalMinutes: 5, ProbeTimeout: time.Second},
		Server:    config.ServerConfig{Addr: "127.0.0.1:0"},
		Destinations: []config.DestinationConfig{
			{Name: "disk", Type: "local", Path: filepath.Join(dir, "backups")},
		},
		Databases: []config.DatabaseConfig{
			{Name: "orders", Type: "mysql", Host: "db", Port: 3306, Username: "root", Database: "orders", Destination: "disk", Enabled: true},
			{Name: "ledger", Type: "postgres", Host: "pg", Port: 5432, Username: "app", Database: "ledger", Enabled: true},
		},
		Schedules: []config.ScheduleConfig{
			{Name: "nightly", Cron: "0 2 * * *", RetentionDays: 7, Enabled: true, Databases: []string{"orders", "ledger"}},
		},
	}
}

func TestApp(t *testing.T) {
	ctx := context.Background()

	Convey("Given an application built from config", t, func() {
		cfg := testConfig(t.TempDir())
		a, err := New(cfg, logger.Nop())
		So(err, ShouldBeNil)
		defer a.Shutdown()

		Convey("Seeding populates the metadata store", func() {
			So(a.Seed(ctx), ShouldBeNil)

			targets, err := a.Store().ListTargets(ctx)
			So(err, ShouldBeNil)
			So(targets, ShouldHaveLength, 2)

			var orders domain.DatabaseTarget
			for _, tg := range targets {
				if tg.Name == "orders" {
					orders = tg
				}
			}
			So(orders.DestinationID, ShouldNotBeNil)

			dest, err := a.Store().GetDestination(ctx, *orders.DestinationID)
			So(err, ShouldBeNil)
			So(dest.Kind, ShouldEqual, domain.KindLocal)

			schedules, err := a.Store().ListEnabledSchedules(ctx)
			So(err, ShouldBeNil)
			So(schedules, ShouldHaveLength, 1)
			So(schedules[0].Targets, ShouldHaveLength, 2)

			Convey("and seeding again does not duplicate entries", func() {
				So(a.Seed(ctx), ShouldBeNil)
				targets, _ := a.Store().ListTargets(ctx)
				So(targets, ShouldHaveLength, 2)
				dests, _ := a.Store().ListDestinations(ctx)
				So(dests, ShouldHaveLength, 1)
			})

			Convey("and the scheduler arms the seeded schedule", func() {
				So(a.Scheduler().ReconcileAll(ctx), ShouldBeNil)
				st := a.Scheduler().Status()
				So(st.ActiveCount, ShouldEqual, 1)
				So(st.Entries[0].Name, ShouldEqual, "nightly")
			})

			Convey("and a database without destination is misconfigured", func() {
				var ledger domain.DatabaseTarget
				for _, tg := range targets {
					if tg.Name == "ledger" {
						ledger = tg
					}
				}
				res := a.Backup().RunBackup(ctx, usecase.BackupRequest{TargetID: ledger.ID})
				So(domain.KindOf(res.Err), ShouldEqual, domain.KindMisconfigured)
				So(res.JobID, ShouldEqual, uint(0))
			})
		})

		Convey("Unknown references fail the seed", func() {
			cfg.Databases[0].Destination = "nowhere"
			So(a.Seed(ctx), ShouldNotBeNil)
		})
	})
}

func TestGoogleOAuth(t *testing.T) {
	Convey("Given the Drive consent flow", t, func() {
		tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","refresh_token":"rt","token_type":"Bearer","expires_in":3600}`)
		}))
		defer tokenServer.Close()

		svc := newGoogleOAuthService(&oauth2.Config{
			ClientID:     "client",
			ClientSecret: "secret",
			RedirectURL:  "http://localhost:8085/auth/google/callback",
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://accounts.example.com/auth",
				TokenURL: tokenServer.URL,
			},
		}, logger.Nop())
		h := svc.Router()

		Convey("The start page redirects to the consent URL", func() {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest("GET", "/auth/google/drive", nil))

			So(rr.Code, ShouldEqual, http.StatusTemporaryRedirect)
			loc, err := url.Parse(rr.Header().Get("Location"))
			So(err, ShouldBeNil)
			So(loc.Query().Get("access_type"), ShouldEqual, "offline")
			So(loc.Query().Get("state"), ShouldEqual, svc.state)
		})

		Convey("A callback with a forged state is rejected", func() {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest("GET", "/auth/google/callback?state=forged&code=abc", nil))
			So(rr.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("A valid callback delivers the refresh token", func() {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest("GET", "/auth/google/callback?state="+svc.state+"&code=abc", nil))

			So(rr.Code, ShouldEqual, http.StatusOK)
			So(strings.Contains(rr.Body.String(), "Authorization complete"), ShouldBeTrue)

			select {
			case tok := <-svc.Tokens():
				So(tok.RefreshToken, ShouldEqual, "rt")
			default:
				So("no token delivered", ShouldBeEmpty)
			}
		})

		Convey("A missing client secret file is reported", func() {
			_, err := NewGoogleOAuthService(logger.Nop(), "")
			So(err, ShouldNotBeNil)
			_, err = NewGoogleOAuthService(logger.Nop(), filepath.Join(t.TempDir(), "missing.json"))
			So(err, ShouldNotBeNil)
		})
	})
}
