package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetrics(t *testing.T) {
	Convey("NormalizePath collapses numeric segments", t, func() {
		So(NormalizePath("/api/storage/12/test"), ShouldEqual, "/api/storage/{id}/test")
		So(NormalizePath("/api/backups/7"), ShouldEqual, "/api/backups/{id}")
		So(NormalizePath("/api/backups"), ShouldEqual, "/api/backups")
	})

	Convey("ObserveBackup counts by status and tracks the last size", t, func() {
		before := testutil.ToFloat64(BackupJobsTotal.WithLabelValues("MYSQL", "LOCAL", "success"))
		ObserveBackup("metrics-test", "MYSQL", "LOCAL", true, time.Second, 2048)

		So(testutil.ToFloat64(BackupJobsTotal.WithLabelValues("MYSQL", "LOCAL", "success")), ShouldEqual, before+1)
		So(testutil.ToFloat64(BackupLastSize.WithLabelValues("metrics-test")), ShouldEqual, 2048.0)
	})

	Convey("SetReachable writes 1 or 0", t, func() {
		SetReachable("metrics-test", "POSTGRES", true)
		So(testutil.ToFloat64(DatabaseReachable.WithLabelValues("metrics-test", "POSTGRES")), ShouldEqual, 1.0)
		SetReachable("metrics-test", "POSTGRES", false)
		So(testutil.ToFloat64(DatabaseReachable.WithLabelValues("metrics-test", "POSTGRES")), ShouldEqual, 0.0)
	})
}
