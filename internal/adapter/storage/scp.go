package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/semmidev/backuppilot/internal/domain"
	"github.com/semmidev/backuppilot/internal/infrastructure/shell"
)

const (
	defaultRemotePath = "/backups"
	scpTimeout        = 10 * time.Minute
	probeTimeout      = 30 * time.Second
)

var (
	authFailureSignals = []string{
		"Permission denied",
		"Authentication failed",
		"Too many authentication failures",
		"Host key verification failed",
	}
	unreachableSignals = []string{
		"Could not resolve hostname",
		"Name or service not known",
		"Connection refused",
		"Connection timed out",
		"Operation timed out",
		"No route to host",
		"Network is unreachable",
		"Connection closed by remote host",
	}
)

// SCPStorage copies artifacts with the system ssh/scp binaries. Password
// authentication goes through sshpass with the password in SSHPASS.
type SCPStorage struct {
	runner  shell.Runner
	cfg     domain.SecureCopyConfig
	tempDir string
	goos    string
}

func NewSCP(runner shell.Runner, cfg *domain.SecureCopyConfig, tempDir string) *SCPStorage {
	c := *cfg
	if c.Port == 0 {
		c.Port = 22
	}
	if c.RemotePath == "" {
		c.RemotePath = defaultRemotePath
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &SCPStorage{runner: runner, cfg: c, tempDir: tempDir, goos: runtime.GOOS}
}

func (s *SCPStorage) Kind() domain.DestinationKind {
	return domain.KindSecureCopy
}

func (s *SCPStorage) LiveProbe() bool {
	return true
}

func (s *SCPStorage) remote() string {
	return fmt.Sprintf("%s@%s", s.cfg.Username, s.cfg.Host)
}

func (s *SCPStorage) sshOptions() []string {
	opts := []string{
		"-o", "StrictHostKeyChecking=accept-new",
		"-o", "ConnectTimeout=10",
	}
	if s.cfg.Password == "" {
		opts = append(opts, "-o", "BatchMode=yes")
	}
	return opts
}

// command wraps tool in sshpass when a password is configured.
func (s *SCPStorage) command(tool string, args []string, timeout time.Duration) shell.Command {
	if s.cfg.Password == "" {
		return shell.Command{Name: tool, Args: args, Timeout: timeout}
	}
	return shell.Command{
		Name:    "sshpass",
		Args:    append([]string{"-e", tool}, args...),
		Env:     []string{"SSHPASS=" + s.cfg.Password},
		Timeout: timeout,
	}
}

// checkTools distinguishes a missing ssh client from a missing sshpass.
func (s *SCPStorage) checkTools(ctx context.Context) error {
	if _, err := s.runner.Run(ctx, shell.Command{Name: "ssh", Args: []string{"-V"}, Timeout: probeTimeout}); errors.Is(err, shell.ErrToolNotFound) {
		return domain.WrapError(domain.KindToolUnavailable, "ssh client is not installed on this system", err).
			WithRemediation(sshInstallHint(s.goos))
	}

	if s.cfg.Password != "" {
		if _, err := s.runner.Run(ctx, shell.Command{Name: "sshpass", Args: []string{"-V"}, Timeout: probeTimeout}); errors.Is(err, shell.ErrToolNotFound) {
			return domain.WrapError(domain.KindToolUnavailable, "sshpass is required for password authentication but is not installed", err).
				WithRemediation(sshpassInstallHint(s.goos))
		}
	}
	return nil
}

func (s *SCPStorage) TestConnection(ctx context.Context) domain.ConnectionResult {
	if err := s.checkTools(ctx); err != nil {
		return domain.ConnectionFailed(err)
	}

	args := append(s.sshOptions(), "-p", strconv.Itoa(s.cfg.Port), s.remote(), "echo", "ok")
	res, err := s.runner.Run(ctx, s.command("ssh", args, probeTimeout))
	if err != nil {
		return domain.ConnectionFailed(s.classify(fmt.Sprintf("cannot connect to %s:%d", s.cfg.Host, s.cfg.Port), res, err))
	}
	return domain.ConnectionOK(fmt.Sprintf("connected to %s:%d as %s", s.cfg.Host, s.cfg.Port, s.cfg.Username))
}

func (s *SCPStorage) Store(ctx context.Context, filename string, data []byte, namespace string) (*domain.StoredArtifact, error) {
	if err := s.checkTools(ctx); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(s.tempDir, 0700); err != nil {
		return nil, domain.WrapError(domain.KindPathNotWritable, "failed to create temp directory", err)
	}
	tmpPath := filepath.Join(s.tempDir, uuid.NewString()+"_"+filename)
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return nil, domain.WrapError(domain.KindPathNotWritable, "failed to write temp file", err)
	}
	defer os.Remove(tmpPath)

	remoteDir := path.Join(s.cfg.RemotePath, namespace)
	mkdirArgs := append(s.sshOptions(), "-p", strconv.Itoa(s.cfg.Port), s.remote(), "mkdir", "-p", shellQuote(remoteDir))
	if res, err := s.runner.Run(ctx, s.command("ssh", mkdirArgs, probeTimeout)); err != nil {
		return nil, s.classify(fmt.Sprintf("failed to create remote directory %s", remoteDir), res, err)
	}

	remoteFile := path.Join(remoteDir, filename)
	scpArgs := append(s.sshOptions(), "-P", strconv.Itoa(s.cfg.Port), tmpPath, fmt.Sprintf("%s:%s", s.remote(), remoteFile))
	if res, err := s.runner.Run(ctx, s.command("scp", scpArgs, scpTimeout)); err != nil {
		return nil, s.classify(fmt.Sprintf("failed to copy %s to %s", filename, s.cfg.Host), res, err)
	}

	return &domain.StoredArtifact{Location: remoteFile, Size: int64(len(data))}, nil
}

func (s *SCPStorage) classify(msg string, res shell.Result, err error) error {
	if errors.Is(err, shell.ErrToolNotFound) {
		return domain.WrapError(domain.KindToolUnavailable, msg, err).WithRemediation(sshInstallHint(s.goos))
	}

	output := shell.Redact(res.Output(), s.cfg.Password)
	detail := output
	if detail == "" {
		detail = err.Error()
	}
	cause := errors.New(detail)

	for _, sig := range authFailureSignals {
		if strings.Contains(output, sig) {
			return domain.WrapError(domain.KindAuthenticationFailed, msg, cause).
				WithRemediation(fmt.Sprintf("Check the username and password for %s, or install an SSH key for %s.", s.cfg.Host, s.remote()))
		}
	}
	for _, sig := range unreachableSignals {
		if strings.Contains(output, sig) {
			return domain.WrapError(domain.KindHostUnreachable, msg, cause).
				WithRemediation(fmt.Sprintf("Check that %s resolves, that port %d is open and that the SSH service is running.", s.cfg.Host, s.cfg.Port))
		}
	}
	if strings.Contains(err.Error(), "timed out") {
		return domain.WrapError(domain.KindHostUnreachable, msg, cause)
	}
	return domain.WrapError(domain.KindStorageFailed, msg, cause)
}

func sshInstallHint(goos string) string {
	switch goos {
	case "darwin":
		return "OpenSSH ships with macOS; make sure /usr/bin/ssh and /usr/bin/scp are on PATH."
	case "windows":
		return "Enable the OpenSSH Client optional feature (Settings > Apps > Optional features) or run `Add-WindowsCapability -Online -Name OpenSSH.Client~~~~0.0.1.0`."
	default:
		return "Install the OpenSSH client: `apt-get install openssh-client` (Debian/Ubuntu), `dnf install openssh-clients` (Fedora/RHEL) or `apk add openssh-client` (Alpine)."
	}
}

func sshpassInstallHint(goos string) string {
	switch goos {
	case "darwin":
		return "Install sshpass with `brew install hudochenkov/sshpass/sshpass`, or configure SSH key authentication and remove the password."
	case "windows":
		return "sshpass is not available on Windows; configure SSH key authentication and remove the password from the destination."
	default:
		return "Install sshpass: `apt-get install sshpass` (Debian/Ubuntu), `dnf install sshpass` (Fedora/RHEL), or configure SSH key authentication and remove the password."
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
