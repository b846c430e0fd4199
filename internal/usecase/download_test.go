package usecase

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"go.uber.org/zap"

	"github.com/semmidev/backuppilot/internal/adapter/storage"
	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
)

func TestLocalArtifact(t *testing.T) {
	ctx := context.Background()

	Convey("Given a backup written to a LOCAL destination", t, func() {
		root := t.TempDir()
		st := newMemStore()
		st.destinations[1] = &domain.Destination{ID: 1, Name: "disk", Kind: domain.KindLocal,
			Config: domain.DestinationConfig{Local: &domain.LocalConfig{Path: root}}}
		st.destinations[2] = &domain.Destination{ID: 2, Name: "bucket", Kind: domain.KindObjectStore}
		st.targets[1] = &domain.DatabaseTarget{ID: 1, Name: "orders", Engine: domain.EngineMySQL,
			Host: "db", Port: 3306, Username: "root", DestinationID: uintPtr(1), BackupEnabled: true}

		dumper := &fakeDumper{engine: domain.EngineMySQL, payload: map[uint][]byte{1: []byte("CREATE TABLE orders (id int);\n")}, errs: map[uint]error{}}
		uc := NewBackup(st, &fakeDumpers{dumper: dumper}, storage.NewFactory(shell.NewFakeRunner(), t.TempDir()),
			nil, nil, zap.NewNop().Sugar(), BackupOptions{TempDir: t.TempDir()})

		res := uc.RunBackup(ctx, BackupRequest{TargetID: 1})
		So(res.Err, ShouldBeNil)

		Convey("The artifact resolves to the file on disk", func() {
			file, err := uc.LocalArtifact(ctx, res.JobID)
			So(err, ShouldBeNil)
			So(file.Path, ShouldEqual, res.Location)
			So(file.Name, ShouldEqual, filepath.Base(res.Location))
			So(file.Size, ShouldEqual, res.Size)
		})

		Convey("A pruned file is not found", func() {
			So(os.Remove(res.Location), ShouldBeNil)
			_, err := uc.LocalArtifact(ctx, res.JobID)
			So(domain.KindOf(err), ShouldEqual, domain.KindNotFound)
			So(domain.RemediationOf(err), ShouldContainSubstring, "pruning")
		})

		Convey("Unknown jobs are not found", func() {
			_, err := uc.LocalArtifact(ctx, 99)
			So(domain.KindOf(err), ShouldEqual, domain.KindNotFound)
		})

		Convey("Failed jobs have no file", func() {
			st.jobs[7] = &domain.Job{ID: 7, DatabaseID: 1, DestinationID: 1, Status: domain.JobFailed}
			_, err := uc.LocalArtifact(ctx, 7)
			So(domain.KindOf(err), ShouldEqual, domain.KindMisconfigured)
		})

		Convey("Remote artifacts cannot be downloaded", func() {
			st.jobs[8] = &domain.Job{ID: 8, DatabaseID: 1, DestinationID: 2, Status: domain.JobSuccess,
				Location: "s3://backups/db_1_orders/orders.sql"}
			_, err := uc.LocalArtifact(ctx, 8)
			So(domain.KindOf(err), ShouldEqual, domain.KindUnsupportedKind)
			So(domain.RemediationOf(err), ShouldContainSubstring, "s3://backups")
		})

		Convey("A location outside the destination root is refused", func() {
			outside := filepath.Join(t.TempDir(), "passwd")
			So(os.WriteFile(outside, []byte("x"), 0600), ShouldBeNil)
			st.jobs[9] = &domain.Job{ID: 9, DatabaseID: 1, DestinationID: 1, Status: domain.JobSuccess, Location: outside}
			_, err := uc.LocalArtifact(ctx, 9)
			So(domain.KindOf(err), ShouldEqual, domain.KindMisconfigured)
		})
	})
}
