package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"

	"github.com/semmidev/backuppilot/internal/domain"
)

func newTestDrive(handler http.Handler) (*GDriveStorage, *httptest.Server) {
	srv := httptest.NewServer(handler)
	svc, err := drive.NewService(context.Background(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()),
	)
	So(err, ShouldBeNil)
	return newGDriveWithService(svc, "parent123", true), srv
}

func TestGDriveStorage(t *testing.T) {
	Convey("Given a GDriveStorage against a fake Drive API", t, func() {
		Convey("TestConnection should report the account", func() {
			var path string
			g, srv := newTestDrive(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				json.NewEncoder(w).Encode(map[string]any{"user": map[string]any{"emailAddress": "ops@example.com"}})
			}))
			defer srv.Close()

			res := g.TestConnection(context.Background())
			So(res.Success, ShouldBeTrue)
			So(res.Detail, ShouldContainSubstring, "ops@example.com")
			So(path, ShouldEndWith, "/about")
		})

		Convey("TestConnection should map 401 to AuthenticationFailed", func() {
			g, srv := newTestDrive(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnauthorized)
				json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"code": 401, "message": "Invalid Credentials"}})
			}))
			defer srv.Close()

			res := g.TestConnection(context.Background())
			So(res.Success, ShouldBeFalse)
			So(domain.KindOf(res.Err), ShouldEqual, domain.KindAuthenticationFailed)
			So(domain.RemediationOf(res.Err), ShouldContainSubstring, "pilot auth gdrive")
		})

		Convey("ensureFolder should create the namespace folder once", func() {
			var creates int32
			var query string
			var created map[string]any
			g, srv := newTestDrive(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				switch r.Method {
				case http.MethodGet:
					query = r.URL.Query().Get("q")
					json.NewEncoder(w).Encode(map[string]any{"files": []any{}})
				case http.MethodPost:
					atomic.AddInt32(&creates, 1)
					json.NewDecoder(r.Body).Decode(&created)
					json.NewEncoder(w).Encode(map[string]any{"id": "folder42"})
				}
			}))
			defer srv.Close()

			id, err := g.ensureFolder(context.Background(), "db_1_orders")
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "folder42")

			id, err = g.ensureFolder(context.Background(), "db_1_orders")
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "folder42")
			So(atomic.LoadInt32(&creates), ShouldEqual, int32(1))
			So(query, ShouldContainSubstring, "'parent123' in parents")
			So(created["name"], ShouldEqual, "db_1_orders")
			So(created["mimeType"], ShouldEqual, folderMimeType)
		})
	})
}

func TestEscapeQuery(t *testing.T) {
	Convey("escapeQuery escapes quotes and backslashes", t, func() {
		So(escapeQuery(`it's`), ShouldEqual, `it\'s`)
		So(strings.Count(escapeQuery(`a\b`), `\`), ShouldEqual, 2)
	})
}
