package scanner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"riskscan/internal/domain"
)

const DefaultTimeout = 15 * time.Minute

// profileArgs is the fixed nmap profile: no host discovery so filtered hosts
// are still scanned, service detection and the vuln script category.
var profileArgs = []string{"-Pn", "-sV", "-T4", "--script", "vuln"}

type Config struct {
	Binary  string
	Timeout time.Duration
	TempDir string
}

// Executor runs nmap against a single validated target.
type Executor struct {
	cfg Config
	log logrus.FieldLogger
}

func New(cfg Config, log logrus.FieldLogger) *Executor {
	if cfg.Binary == "" {
		cfg.Binary = "nmap"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Executor{cfg: cfg, log: log.WithField("component", "scanner")}
}

// Args returns the full argument list for a target and output artifact.
func Args(target, outPath string) []string {
	args := append([]string{}, profileArgs...)
	return append(args, "-oX", outPath, target)
}

// Scan validates target, runs the tool and returns the XML it wrote.
// The temporary output artifact is removed on every return path.
func (e *Executor) Scan(ctx context.Context, target string) ([]byte, error) {
	host, err := ValidateTarget(target)
	if err != nil {
		return nil, err
	}

	f, err := os.CreateTemp(e.cfg.TempDir, "scan-*.xml")
	if err != nil {
		return nil, &domain.ExecutionError{Reason: fmt.Sprintf("create output artifact: %v", err), ExitCode: -1}
	}
	outPath := f.Name()
	f.Close()
	defer func() {
		if err := os.Remove(outPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			e.log.WithError(err).WithField("path", outPath).Warn("remove scan artifact")
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, e.cfg.Binary, Args(host, outPath)...)
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	e.log.WithField("target", host).Info("scan started")
	runErr := cmd.Run()
	elapsed := time.Since(start)

	// the caller gave up before the tool's own timeout
	if err := ctx.Err(); err != nil {
		return nil, &domain.ExecutionError{
			Reason:   fmt.Sprintf("interrupted: %v", err),
			ExitCode: -1,
			TimedOut: errors.Is(err, context.DeadlineExceeded),
			Stderr:   stderr.String(),
		}
	}
	if runCtx.Err() == context.DeadlineExceeded {
		return nil, &domain.ExecutionError{
			Reason:   fmt.Sprintf("timed out after %s", e.cfg.Timeout),
			ExitCode: -1,
			TimedOut: true,
			Stderr:   stderr.String(),
		}
	}
	if runErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, &domain.ExecutionError{
			Reason:   fmt.Sprintf("exit status %d: %v", code, runErr),
			ExitCode: code,
			Stderr:   stderr.String(),
		}
	}

	out, err := os.ReadFile(outPath)
	if err != nil || len(bytes.TrimSpace(out)) == 0 {
		return nil, &domain.ExecutionError{Reason: "missing output artifact", Stderr: stderr.String()}
	}
	e.log.WithFields(logrus.Fields{"target": host, "duration": elapsed.String(), "bytes": len(out)}).Info("scan finished")
	return out, nil
}
