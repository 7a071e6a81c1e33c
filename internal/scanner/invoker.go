// Package scanner launches the external vulnerability-scanner binary as a
// child process, enforces a hard timeout with forced termination, and
// classifies exit conditions.
package scanner

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"syscall"
	"time"

	"github.com/scanforge/vulnscan-engine/internal/scanerr"
)

// Invoker wraps the binary path and cache directory every invocation
// needs.
type Invoker struct {
	BinaryPath string
	CacheDir   string
	LogLine    func(line string) // optional; streams stdout/stderr as it arrives
}

func New(binaryPath, cacheDir string) *Invoker {
	return &Invoker{BinaryPath: binaryPath, CacheDir: cacheDir}
}

var (
	reImageNotFound = regexp.MustCompile(`(?i)could not find image|manifest unknown`)
	reUnauthorized  = regexp.MustCompile(`(?i)unauthorized|denied`)
	reRateLimit     = regexp.MustCompile(`(?i)rate limit|too many requests`)
)

const stderrExcerptLimit = 2000

// Invoke runs the scanner against imageReference, writing its JSON report
// to outputPath, bounded by timeout. The caller's context is combined with
// the timeout deadline; on expiry the child is sent SIGTERM, given 5
// seconds to exit, then SIGKILL'd.
func (inv *Invoker) Invoke(ctx context.Context, imageReference, outputPath string, timeout time.Duration) (*TrivyReport, error) {
	return inv.run(ctx, outputPath, timeout, imageReference)
}

// InvokeArchive runs the scanner against a locally staged image archive
// (e.g. a docker-save tarball) via --input instead of pulling a registry
// reference, for the file-upload ingestion path.
func (inv *Invoker) InvokeArchive(ctx context.Context, archivePath, outputPath string, timeout time.Duration) (*TrivyReport, error) {
	return inv.run(ctx, outputPath, timeout, "--input", archivePath)
}

func (inv *Invoker) run(ctx context.Context, outputPath string, timeout time.Duration, target ...string) (*TrivyReport, error) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args := []string{
		"image",
		"--format", "json",
		"--output", outputPath,
		"--timeout", fmt.Sprintf("%ds", int(timeout.Seconds())),
		"--scanners", "vuln",
		"--cache-dir", inv.CacheDir,
		"--quiet",
	}
	args = append(args, target...)

	if inv.LogLine != nil {
		inv.LogLine(fmt.Sprintf("executing: %s %s", inv.BinaryPath, strings.Join(maskCredentials(args), " ")))
	}

	cmd := exec.CommandContext(runCtx, inv.BinaryPath, args...)
	cmd.Env = append(os.Environ(), "NO_COLOR=1", "TRIVY_CACHE_DIR="+inv.CacheDir)
	// On context expiry, send a graceful SIGTERM first; exec.Cmd only
	// escalates to SIGKILL if the process is still alive WaitDelay later.
	// Letting exec.CommandContext's default Cancel (an immediate Kill) fire
	// would race this grace period away entirely.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 5 * time.Second

	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, scanerr.New(scanerr.CodeInternal, "attaching stdout pipe", err)
	}
	stderrPipe, err := cmd.StderrPipe()
	if err != nil {
		return nil, scanerr.New(scanerr.CodeInternal, "attaching stderr pipe", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, scanerr.New(scanerr.CodeInternal, "starting scanner process", err)
	}

	var stderrBuf strings.Builder
	done := make(chan struct{})
	go inv.stream(stdoutPipe, nil, done)
	go inv.stream(stderrPipe, &stderrBuf, done)

	waitErr := cmd.Wait()
	<-done
	<-done

	if runCtx.Err() == context.DeadlineExceeded {
		return nil, scanerr.New(scanerr.CodeTimeout, fmt.Sprintf("scanner exceeded %s timeout", timeout), runCtx.Err())
	}

	if waitErr != nil {
		return nil, classifyExit(waitErr, stderrBuf.String())
	}

	return inv.readReport(outputPath)
}

func (inv *Invoker) stream(r io.Reader, capture *strings.Builder, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if capture != nil {
			capture.WriteString(line)
			capture.WriteString("\n")
		}
		if inv.LogLine != nil {
			inv.LogLine(line)
		}
	}
}

// maskCredentials redacts the values following any credential-bearing flag
// before an argv is written to logs. This core never passes --username or
// --password itself today, but the invoker logs the full argv, and a future
// registry-auth Non-goal reversal must not leak secrets into logs that
// already exist.
func maskCredentials(args []string) []string {
	masked := make([]string, len(args))
	copy(masked, args)
	for i := 0; i < len(masked)-1; i++ {
		switch masked[i] {
		case "--username", "--password", "--registry-token":
			masked[i+1] = "***"
		}
	}
	return masked
}

func classifyExit(waitErr error, stderr string) error {
	switch {
	case reImageNotFound.MatchString(stderr):
		return scanerr.New(scanerr.CodeImageNotFound, "image not found", waitErr)
	case reUnauthorized.MatchString(stderr):
		return scanerr.New(scanerr.CodePullFailed, "authentication failed pulling image", waitErr)
	case reRateLimit.MatchString(stderr):
		return scanerr.New(scanerr.CodePullFailed, "rate limited pulling image", waitErr)
	default:
		excerpt := stderr
		if len(excerpt) > stderrExcerptLimit {
			excerpt = excerpt[:stderrExcerptLimit]
		}
		return scanerr.New(scanerr.CodeTrivyError, fmt.Sprintf("scanner exited non-zero: %v: %s", waitErr, excerpt), waitErr)
	}
}

func (inv *Invoker) readReport(outputPath string) (*TrivyReport, error) {
	data, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, scanerr.New(scanerr.CodeTrivyError, "scanner output file missing", err)
	}
	var report TrivyReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, scanerr.New(scanerr.CodeTrivyError, "scanner output is not valid JSON", err)
	}
	return &report, nil
}
