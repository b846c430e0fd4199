package cli

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/semmidev/backuppilot/internal/domain"
)

const testConfigYAML = `
app:
  log_level: warn
metadata:
  db_path: {{dir}}/pilot.db
backup:
  temp_dir: {{dir}}/tmp
monitor:
  enabled: false
destinations:
  - name: disk
    type: local
    path: {{dir}}/backups
databases:
  - name: orders
    type: mysql
    host: db.internal
    port: 3306
    username: backup
    database: orders
    destination: disk
    enabled: true
schedules:
  - name: nightly
    cron: "0 2 * * *"
    retention_days: 7
    enabled: true
    databases: [orders]
`

func writeConfig(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := strings.ReplaceAll(testConfigYAML, "{{dir}}", dir)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(args ...string) (string, string, error) {
	root, c := newRoot()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	c.close()
	return stdout.String(), stderr.String(), err
}

func TestCommands(t *testing.T) {
	Convey("Given the pilot command", t, func() {
		cfgPath := writeConfig(t)

		Convey("schedule next prints upcoming runs without a config", func() {
			out, _, err := execute("schedule", "next", "0 2 * * *", "-n", "2")
			So(err, ShouldBeNil)

			lines := strings.Split(strings.TrimSpace(out), "\n")
			So(lines, ShouldHaveLength, 2)
			So(lines[0], ShouldContainSubstring, "T02:00:00Z")
			So(lines[1], ShouldContainSubstring, "T02:00:00Z")
			So(lines[0], ShouldNotEqual, lines[1])
		})

		Convey("schedule next rejects invalid expressions", func() {
			_, _, err := execute("schedule", "next", "not a cron")
			So(domain.KindOf(err), ShouldEqual, domain.KindMisconfigured)
		})

		Convey("backup list reports an empty history", func() {
			out, _, err := execute("--config", cfgPath, "backup", "list")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "no backup jobs yet")
		})

		Convey("schedule reconcile shows the seeded schedule", func() {
			out, _, err := execute("--config", cfgPath, "schedule", "reconcile")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "nightly")
			So(out, ShouldContainSubstring, "1 active schedule(s)")
		})

		Convey("destination test probes the local destination", func() {
			out, _, err := execute("--config", cfgPath, "destination", "test", "1")
			So(err, ShouldBeNil)
			So(out, ShouldContainSubstring, "disk")
		})

		Convey("Missing arguments and unknown ids are reported", func() {
			_, _, err := execute("--config", cfgPath, "backup", "run")
			So(err, ShouldNotBeNil)

			_, _, err = execute("--config", cfgPath, "schedule", "trigger", "abc")
			So(err, ShouldNotBeNil)

			_, _, err = execute("--config", cfgPath, "schedule", "trigger", "42")
			So(domain.KindOf(err), ShouldEqual, domain.KindNotFound)
		})

		Convey("A missing config file fails early", func() {
			_, _, err := execute("--config", filepath.Join(t.TempDir(), "nope.yaml"), "backup", "list")
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "load config")
		})
	})

	Convey("Errors are printed with their remediation", t, func() {
		var buf bytes.Buffer
		printError(&buf, domain.NewError(domain.KindToolUnavailable, "mysqldump is not installed").
			WithRemediation("apt-get install mysql-client"))

		So(buf.String(), ShouldContainSubstring, "TOOL_UNAVAILABLE")
		So(buf.String(), ShouldContainSubstring, "Hint:  apt-get install mysql-client")

		buf.Reset()
		printError(&buf, errors.New("plain"))
		So(buf.String(), ShouldEqual, "Error: plain\n")
	})
}
