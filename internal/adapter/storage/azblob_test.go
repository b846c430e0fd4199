package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/runtime"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/backuppilot/internal/domain"
)

type fakeBlobs struct {
	createErr  error
	creates    int
	uploads    map[string][]byte
	uploadOpts []*azblob.UploadBufferOptions
	uploadErr  error
	items      []*container.BlobItem
	listErr    error
	prefixes   []string
	deleted    []string
}

func (f *fakeBlobs) CreateContainer(ctx context.Context, containerName string, o *azblob.CreateContainerOptions) (azblob.CreateContainerResponse, error) {
	f.creates++
	return azblob.CreateContainerResponse{}, f.createErr
}

func (f *fakeBlobs) UploadBuffer(ctx context.Context, containerName string, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	if f.uploadErr != nil {
		return azblob.UploadBufferResponse{}, f.uploadErr
	}
	f.uploads[containerName+"/"+blobName] = append([]byte(nil), buffer...)
	f.uploadOpts = append(f.uploadOpts, o)
	return azblob.UploadBufferResponse{}, nil
}

func (f *fakeBlobs) NewListBlobsFlatPager(containerName string, o *azblob.ListBlobsFlatOptions) *runtime.Pager[azblob.ListBlobsFlatResponse] {
	if o != nil && o.Prefix != nil {
		f.prefixes = append(f.prefixes, *o.Prefix)
	}
	return runtime.NewPager(runtime.PagingHandler[azblob.ListBlobsFlatResponse]{
		More: func(azblob.ListBlobsFlatResponse) bool { return false },
		Fetcher: func(ctx context.Context, _ *azblob.ListBlobsFlatResponse) (azblob.ListBlobsFlatResponse, error) {
			if f.listErr != nil {
				return azblob.ListBlobsFlatResponse{}, f.listErr
			}
			var resp azblob.ListBlobsFlatResponse
			resp.Segment = &container.BlobFlatListSegment{BlobItems: f.items}
			return resp, nil
		},
	})
}

func (f *fakeBlobs) DeleteBlob(ctx context.Context, containerName string, blobName string, o *azblob.DeleteBlobOptions) (azblob.DeleteBlobResponse, error) {
	f.deleted = append(f.deleted, blobName)
	return azblob.DeleteBlobResponse{}, nil
}

func blobItem(name string, modified time.Time) *container.BlobItem {
	return &container.BlobItem{Name: &name, Properties: &container.BlobProperties{LastModified: &modified}}
}

func TestAzureBlobStorage(t *testing.T) {
	Convey("Given an AzureBlobStorage with a fake client", t, func() {
		fake := &fakeBlobs{uploads: map[string][]byte{}}
		a := newAzureBlobWithClient(fake, &domain.BlobStoreConfig{Container: "backups", BlobPrefix: "/prod/"})
		ctx := context.Background()

		Convey("Health is inferred from job history unless live probing is enabled", func() {
			So(a.Kind(), ShouldEqual, domain.KindBlobStore)
			So(a.LiveProbe(), ShouldBeFalse)
			So(newAzureBlobWithClient(fake, &domain.BlobStoreConfig{Container: "c", LiveProbe: true}).LiveProbe(), ShouldBeTrue)
		})

		Convey("Store uploads under prefix/namespace and reports an azure:// location", func() {
			artifact, err := a.Store(ctx, "orders.sql", []byte("CREATE TABLE t;"), "db_1_orders")

			So(err, ShouldBeNil)
			So(artifact.Location, ShouldEqual, "azure://backups/prod/db_1_orders/orders.sql")
			So(artifact.Size, ShouldEqual, int64(15))
			So(string(fake.uploads["backups/prod/db_1_orders/orders.sql"]), ShouldEqual, "CREATE TABLE t;")
			So(*fake.uploadOpts[0].HTTPHeaders.BlobContentType, ShouldEqual, "application/sql")

			Convey("and creates the container only once", func() {
				_, err := a.Store(ctx, "orders2.sql", []byte("x"), "db_1_orders")
				So(err, ShouldBeNil)
				So(fake.creates, ShouldEqual, 1)
			})
		})

		Convey("An existing container is not an error", func() {
			fake.createErr = &azcore.ResponseError{ErrorCode: "ContainerAlreadyExists", StatusCode: 409}
			_, err := a.Store(ctx, "orders.sql", []byte("x"), "db_1_orders")
			So(err, ShouldBeNil)
		})

		Convey("Rejected credentials are an authentication failure", func() {
			fake.uploadErr = &azcore.ResponseError{ErrorCode: "AuthenticationFailed", StatusCode: 403}
			_, err := a.Store(ctx, "orders.sql", []byte("x"), "db_1_orders")
			So(domain.KindOf(err), ShouldEqual, domain.KindAuthenticationFailed)
			So(domain.RemediationOf(err), ShouldNotBeBlank)
		})

		Convey("TestConnection lists the container", func() {
			So(a.TestConnection(ctx).Success, ShouldBeTrue)

			fake.listErr = &azcore.ResponseError{ErrorCode: "ContainerNotFound", StatusCode: 404}
			res := a.TestConnection(ctx)
			So(res.Success, ShouldBeFalse)
			So(domain.KindOf(res.Err), ShouldEqual, domain.KindMisconfigured)

			fake.listErr = errors.New("dial tcp: i/o timeout")
			So(domain.KindOf(a.TestConnection(ctx).Err), ShouldEqual, domain.KindStorageFailed)
		})

		Convey("GetOldFiles only returns direct children older than the cutoff", func() {
			old := time.Now().Add(-10 * 24 * time.Hour)
			fake.items = []*container.BlobItem{
				blobItem("prod/db_1_orders/old.sql", old),
				blobItem("prod/db_1_orders/new.sql", time.Now()),
				blobItem("prod/db_1_orders/nested/old.sql", old),
			}

			files, err := a.GetOldFiles(ctx, "db_1_orders", time.Now().Add(-7*24*time.Hour))
			So(err, ShouldBeNil)
			So(files, ShouldResemble, []string{"old.sql"})
			So(fake.prefixes, ShouldResemble, []string{"prod/db_1_orders/"})

			all, err := a.List(ctx, "db_1_orders")
			So(err, ShouldBeNil)
			So(all, ShouldHaveLength, 2)
		})

		Convey("Delete addresses the namespaced blob", func() {
			So(a.Delete(ctx, "db_1_orders", "old.sql"), ShouldBeNil)
			So(fake.deleted, ShouldResemble, []string{"prod/db_1_orders/old.sql"})
		})
	})

	Convey("The factory opens Azure Blob destinations", t, func() {
		dest := &domain.Destination{Name: "azure", Kind: domain.KindBlobStore, Config: domain.DestinationConfig{
			BlobStore: &domain.BlobStoreConfig{AccountName: "devstoreaccount1", AccountKey: "a2V5", Container: "backups",
				ServiceURL: "http://127.0.0.1:10000/devstoreaccount1"},
		}}
		s, err := NewFactory(nil, t.TempDir()).Open(context.Background(), dest)
		So(err, ShouldBeNil)
		So(s.Kind(), ShouldEqual, domain.KindBlobStore)

		dest.Config.BlobStore.AccountKey = "not base64!"
		_, err = NewFactory(nil, t.TempDir()).Open(context.Background(), dest)
		So(domain.KindOf(err), ShouldEqual, domain.KindMisconfigured)
	})
}
