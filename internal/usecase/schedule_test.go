package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/backuppilot/internal/domain"
)

func TestTriggerSchedule(t *testing.T) {
	ctx := context.Background()

	Convey("Given a schedule bound to two targets", t, func() {
		f := newFixture(t)
		f.store.schedules[5] = &domain.Schedule{
			ID: 5, Name: "nightly", Cron: "0 2 * * *", Enabled: true,
			Targets: []domain.DatabaseTarget{*f.store.targets[1], *f.store.targets[2]},
		}

		Convey("Triggering runs both and reports the tally", func() {
			f.dumper.errs[1] = errors.New("timeout")
			report, err := f.uc.TriggerSchedule(ctx, 5)
			So(err, ShouldBeNil)
			So(report.Total, ShouldEqual, 2)
			So(report.Successful, ShouldEqual, 1)
			So(report.Message, ShouldEqual, "Manual backup completed: 1/2 successful")
			So(report.Results[1].Success, ShouldBeTrue)
		})

		Convey("Manual runs include targets with backups disabled", func() {
			f.store.targets[2].BackupEnabled = false
			report, err := f.uc.TriggerSchedule(ctx, 5)
			So(err, ShouldBeNil)
			So(report.Successful, ShouldEqual, 2)
		})

		Convey("A disabled schedule is Misconfigured", func() {
			f.store.schedules[5].Enabled = false
			_, err := f.uc.TriggerSchedule(ctx, 5)
			So(domain.KindOf(err), ShouldEqual, domain.KindMisconfigured)
			So(f.store.jobCount(), ShouldEqual, 0)
		})

		Convey("An unknown schedule is NotFound", func() {
			_, err := f.uc.TriggerSchedule(ctx, 42)
			So(domain.KindOf(err), ShouldEqual, domain.KindNotFound)
		})
	})
}

func TestDestinationHealth(t *testing.T) {
	ctx := context.Background()

	Convey("Given a destination", t, func() {
		f := newFixture(t)

		Convey("Live destinations are probed directly", func() {
			report := f.uc.DestinationHealth(ctx, f.dest.ID)
			So(report.Method, ShouldEqual, "live")
			So(report.Connected, ShouldBeTrue)
			So(report.Name, ShouldEqual, "bucket")

			Convey("and probe failures are reported with their kind", func() {
				f.storage.probe = domain.ConnectionFailed(domain.NewError(domain.KindAuthenticationFailed, "denied"))
				report := f.uc.DestinationHealth(ctx, f.dest.ID)
				So(report.Connected, ShouldBeFalse)
				So(domain.KindOf(report.Err), ShouldEqual, domain.KindAuthenticationFailed)
			})
		})

		Convey("Destinations without live probing use recent job history", func() {
			f.storage.live = false

			report := f.uc.DestinationHealth(ctx, f.dest.ID)
			So(report.Method, ShouldEqual, "history")
			So(report.Connected, ShouldBeFalse)

			res := f.uc.RunBackup(ctx, BackupRequest{TargetID: 1})
			So(res.Success, ShouldBeTrue)

			report = f.uc.DestinationHealth(ctx, f.dest.ID)
			So(report.Connected, ShouldBeTrue)
			So(report.Detail, ShouldContainSubstring, "last successful backup")

			Convey("but only within the last day", func() {
				f.uc.now = func() time.Time { return time.Now().Add(25 * time.Hour) }
				report := f.uc.DestinationHealth(ctx, f.dest.ID)
				So(report.Connected, ShouldBeFalse)
			})
		})

		Convey("Unknown destinations are NotFound", func() {
			report := f.uc.DestinationHealth(ctx, 404)
			So(domain.KindOf(report.Err), ShouldEqual, domain.KindNotFound)
		})
	})
}

func TestPrune(t *testing.T) {
	ctx := context.Background()

	Convey("Given stored artifacts of different ages", t, func() {
		f := newFixture(t)
		now := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)
		f.uc.now = func() time.Time { return now }

		f.storage.objects["db_1_orders/orders_20240601_020000_job1.sql"] = []byte("old")
		f.storage.objects["db_1_orders/orders_20240629_020000_job9.sql"] = []byte("new")
		f.storage.objects["db_1_orders/notes.txt"] = []byte("untouched")
		f.storage.objects["db_2_crm/crm_20240101_020000_job2.sql"] = []byte("other namespace")

		f.store.schedules[5] = &domain.Schedule{
			ID: 5, Name: "nightly", RetentionDays: 7, Enabled: true,
			Targets: []domain.DatabaseTarget{*f.store.targets[1]},
		}

		Convey("Only expired files in bound namespaces are removed", func() {
			report, err := f.uc.Prune(ctx, 5)
			So(err, ShouldBeNil)
			So(report.Deleted, ShouldResemble, []string{"db_1_orders/orders_20240601_020000_job1.sql"})
			So(report.Failed, ShouldEqual, 0)
			So(f.storage.keys(), ShouldResemble, []string{
				"db_1_orders/notes.txt",
				"db_1_orders/orders_20240629_020000_job9.sql",
				"db_2_crm/crm_20240101_020000_job2.sql",
			})
		})

		Convey("A schedule without retention is Misconfigured", func() {
			f.store.schedules[5].RetentionDays = 0
			_, err := f.uc.Prune(ctx, 5)
			So(domain.KindOf(err), ShouldEqual, domain.KindMisconfigured)
		})
	})

	Convey("extractTimestamp reads the embedded timestamp", t, func() {
		ts, err := extractTimestamp("orders_20240309_020005_job1.sql.gz")
		So(err, ShouldBeNil)
		So(ts.Equal(time.Date(2024, 3, 9, 2, 0, 5, 0, time.UTC)), ShouldBeTrue)

		_, err = extractTimestamp("notes.txt")
		So(err, ShouldNotBeNil)
	})
}
