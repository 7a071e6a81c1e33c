// Package worker drives a claimed scan through the pulling → scanning →
// parsing → completed/failed state machine and hosts the worker pool
// dispatcher that feeds it claimed scan ids.
package worker

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/scanforge/vulnscan-engine/internal/claimer"
	"github.com/scanforge/vulnscan-engine/internal/extract"
	"github.com/scanforge/vulnscan-engine/internal/scanerr"
	"github.com/scanforge/vulnscan-engine/internal/scanmodel"
	"github.com/scanforge/vulnscan-engine/internal/scanner"
	"github.com/scanforge/vulnscan-engine/internal/store"
)

// Driver owns everything one worker goroutine needs to run a scan from
// claim to terminal state: it never holds a database handle across the
// scanner invocation.
type Driver struct {
	Store   *store.Store
	Invoker *scanner.Invoker
	Weights extract.Weights

	ScanTimeout  time.Duration
	TrivyTimeout time.Duration
	MaxRetries   int

	PersistDetails bool

	WorkerID string
}

// Run drives one claimed scan through its full lifecycle. Every exit path
// (success, scanner failure, internal error) removes the scan's temporary
// output directory before returning.
func (d *Driver) Run(ctx context.Context, claimed *claimer.Claimed) error {
	pullStart := time.Now().UTC()

	tmpDir, err := os.MkdirTemp("", fmt.Sprintf("scan-%s-", claimed.ID))
	if err != nil {
		return d.fail(ctx, claimed.ID, pullStart, scanmodel.StatusPulling, scanerr.New(scanerr.CodeInternal, "creating temp dir", err))
	}
	defer os.RemoveAll(tmpDir)

	if err := d.Store.UpdateStatus(ctx, claimed.ID, scanmodel.StatusPulling, scanmodel.StatusScanning, "entering scanning phase", d.WorkerID); err != nil {
		return d.fail(ctx, claimed.ID, pullStart, scanmodel.StatusPulling, scanerr.New(scanerr.CodeDatabase, "transitioning to scanning", err))
	}
	pullEnd := time.Now().UTC()
	scanStart := pullEnd

	outputPath := filepath.Join(tmpDir, "report.json")

	var report *scanner.TrivyReport
	var invokeErr error
	if claimed.ArchivePath != nil && *claimed.ArchivePath != "" {
		report, invokeErr = d.Invoker.InvokeArchive(ctx, *claimed.ArchivePath, outputPath, d.TrivyTimeout)
		defer os.Remove(*claimed.ArchivePath)
	} else {
		imageRef := fmt.Sprintf("%s/%s:%s", claimed.Registry, claimed.ImageName, claimed.ImageTag)
		report, invokeErr = d.Invoker.Invoke(ctx, imageRef, outputPath, d.TrivyTimeout)
	}
	if invokeErr != nil {
		return d.fail(ctx, claimed.ID, pullStart, scanmodel.StatusScanning, invokeErr)
	}
	scanEnd := time.Now().UTC()
	_ = scanEnd // scan-phase wall clock is folded into scan_duration, not persisted on its own

	if err := d.Store.UpdateStatus(ctx, claimed.ID, scanmodel.StatusScanning, scanmodel.StatusParsing, "entering parsing phase", d.WorkerID); err != nil {
		return d.fail(ctx, claimed.ID, pullStart, scanmodel.StatusScanning, scanerr.New(scanerr.CodeDatabase, "transitioning to parsing", err))
	}
	parseStart := time.Now().UTC()

	metrics := extract.Extract(report, d.Weights)
	parseEnd := time.Now().UTC()

	scan, err := d.Store.GetByID(ctx, claimed.ID, false)
	if err != nil {
		return d.fail(ctx, claimed.ID, pullStart, scanmodel.StatusParsing, scanerr.New(scanerr.CodeDatabase, "reloading scan before terminal write", err))
	}

	raw, _ := readRaw(outputPath)

	scan.Status = scanmodel.StatusComplete
	scan.RawReport = raw
	scan.CriticalCount = metrics.Critical
	scan.HighCount = metrics.High
	scan.MediumCount = metrics.Medium
	scan.LowCount = metrics.Low
	scan.UnknownCount = metrics.Unknown
	scan.TotalVulnerabilities = metrics.Total
	scan.FixableCount = metrics.Fixable
	scan.UnfixableCount = metrics.Unfixable
	scan.RiskScore = metrics.RiskScore
	scan.MaxCVSSScore = metrics.MaxCVSS
	scan.AvgCVSSScore = metrics.AvgCVSS
	scan.IsCompliant = metrics.IsCompliant
	scan.ComplianceStatus = metrics.ComplianceStatus
	scan.ImageDigest = metrics.ImageDigest
	scan.TrivyVersion = versionString(report.SchemaVersion)
	scan.CompletedAt = &parseEnd

	pullDuration := pullEnd.Sub(pullStart).Seconds()
	analysisDuration := parseEnd.Sub(parseStart).Seconds()
	totalDuration := parseEnd.Sub(pullStart).Seconds()
	scan.PullDuration = &pullDuration
	scan.AnalysisDuration = &analysisDuration
	scan.ScanDuration = &totalDuration
	_ = scanStart // recorded for clarity; scan_start itself is not a persisted field

	var details []scanmodel.VulnerabilityDetail
	if d.PersistDetails {
		for i := range metrics.Details {
			metrics.Details[i].ScanID = scan.ID
		}
		details = metrics.Details
	}

	if err := d.Store.TerminalWrite(ctx, scan, details, d.WorkerID, scanmodel.StatusParsing); err != nil {
		return fmt.Errorf("writing terminal success state for scan %s: %w", scan.ID, err)
	}
	return nil
}

// fail centralizes the terminal-failure write: classify the error,
// increment retry_count unless the code is permanent, bound the message to
// 500 characters, and set completed_at. Callers are responsible for their
// own temp-dir cleanup.
func (d *Driver) fail(ctx context.Context, id uuid.UUID, pullStart time.Time, previous scanmodel.Status, cause error) error {
	se, ok := scanerr.As(cause)
	if !ok {
		se = scanerr.New(scanerr.CodeInternal, cause.Error(), cause)
	}

	scan, err := d.Store.GetByID(ctx, id, false)
	if err != nil {
		return fmt.Errorf("reloading scan %s to record failure: %w", id, err)
	}

	msg := se.Error()
	if len(msg) > 500 {
		msg = msg[:500]
	}

	now := time.Now().UTC()
	scan.Status = scanmodel.StatusFailed
	scan.ErrorMessage = &msg
	code := string(se.Code)
	scan.ErrorCode = &code
	scan.CompletedAt = &now
	if !se.Permanent {
		scan.RetryCount++
	}
	total := now.Sub(pullStart).Seconds()
	scan.ScanDuration = &total

	if err := d.Store.TerminalWrite(ctx, scan, nil, d.WorkerID, previous); err != nil {
		return fmt.Errorf("writing terminal failure state for scan %s: %w", id, err)
	}
	return cause
}

func readRaw(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func versionString(schemaVersion int) *string {
	v := fmt.Sprintf("schema-v%d", schemaVersion)
	return &v
}
