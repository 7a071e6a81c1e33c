// Package store implements the Scan Store: durable state for every scan
// entity, its audit trail, and the analytical queries that read them.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/scanforge/vulnscan-engine/internal/scanerr"
	"github.com/scanforge/vulnscan-engine/internal/scanmodel"
)

// isUniqueViolation reports whether err is a PostgreSQL unique-constraint
// violation (SQLSTATE 23505), used to turn a raced idempotency-key insert
// into a client-visible conflict rather than a generic 500.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

// Store wraps a gorm handle over the scans/vulnerability_details/audit log
// tables. The raw *sql.DB beneath it is also exposed for the Job Claimer,
// which needs FOR UPDATE SKIP LOCKED semantics gorm's query builder does
// not expose, and for health checks.
type Store struct {
	db *gorm.DB
}

// Open dials the database, configures the connection pool per the
// configuration's pool-size/overflow/timeout/recycle settings, and runs
// AutoMigrate for the three core tables.
func Open(dsn string, poolSize, maxOverflow, poolTimeoutSeconds, poolRecycleSeconds int) (*Store, error) {
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrapping sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(poolSize + maxOverflow)
	sqlDB.SetMaxIdleConns(poolSize)
	sqlDB.SetConnMaxLifetime(time.Duration(poolRecycleSeconds) * time.Second)
	sqlDB.SetConnMaxIdleTime(time.Duration(poolTimeoutSeconds) * time.Second)

	if err := gdb.AutoMigrate(&scanmodel.Scan{}, &scanmodel.VulnerabilityDetail{}, &scanmodel.AuditLog{}); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: gdb}, nil
}

// SQLDB exposes the underlying *sql.DB for components (Job Claimer, health
// checker) that need raw access.
func (s *Store) SQLDB() (*sql.DB, error) {
	return s.db.DB()
}

// Ping verifies connectivity, used by the database health checker.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Create inserts a new scan row plus its initial audit row in one
// transaction.
func (s *Store) Create(ctx context.Context, scan *scanmodel.Scan, actor string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(scan).Error; err != nil {
			if isUniqueViolation(err) {
				return scanerr.New(scanerr.CodeConflict, "a scan with this idempotency key already exists", err)
			}
			return fmt.Errorf("inserting scan: %w", err)
		}
		audit := &scanmodel.AuditLog{
			ScanID:    scan.ID,
			NewStatus: scan.Status,
			Message:   "scan submitted",
			Actor:     actor,
		}
		if err := tx.Create(audit).Error; err != nil {
			return fmt.Errorf("inserting audit row: %w", err)
		}
		return nil
	})
}

// GetByID fetches a single scan; raw_report is included only when
// withReport is true, per the fetch-by-id contract's default exclusion of
// the large payload.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID, withReport bool) (*scanmodel.Scan, error) {
	q := s.db.WithContext(ctx)
	if !withReport {
		q = q.Omit("RawReport")
	}
	var scan scanmodel.Scan
	if err := q.First(&scan, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, scanerr.New(scanerr.CodeScanNotFound, id.String(), err)
		}
		return nil, fmt.Errorf("fetching scan %s: %w", id, err)
	}
	return &scan, nil
}

// FindCachedCompleted returns the most recent completed scan for the
// triple within the TTL window, or nil if none exists.
func (s *Store) FindCachedCompleted(ctx context.Context, registry, name, tag string, since time.Time) (*scanmodel.Scan, error) {
	var scan scanmodel.Scan
	err := s.db.WithContext(ctx).
		Where("registry = ? AND image_name = ? AND image_tag = ? AND status = ? AND created_at >= ?",
			registry, name, tag, scanmodel.StatusComplete, since).
		Order("created_at DESC").
		First(&scan).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding cached scan: %w", err)
	}
	return &scan, nil
}

// FindInProgress returns any scan for the triple in a non-terminal state,
// or nil if none exists.
func (s *Store) FindInProgress(ctx context.Context, registry, name, tag string) (*scanmodel.Scan, error) {
	var scan scanmodel.Scan
	err := s.db.WithContext(ctx).
		Where("registry = ? AND image_name = ? AND image_tag = ? AND status IN ?",
			registry, name, tag, scanmodel.ActiveStatuses).
		Order("created_at DESC").
		First(&scan).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("finding in-progress scan: %w", err)
	}
	return &scan, nil
}

// UpdateStatus performs a dedicated short transaction that writes a new
// status plus updated_at, and appends the corresponding audit row.
func (s *Store) UpdateStatus(ctx context.Context, id uuid.UUID, previous, next scanmodel.Status, message, actor string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&scanmodel.Scan{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":     next,
			"updated_at": time.Now().UTC(),
		})
		if res.Error != nil {
			return fmt.Errorf("updating status: %w", res.Error)
		}
		audit := &scanmodel.AuditLog{
			ScanID:         id,
			PreviousStatus: previous,
			NewStatus:      next,
			Message:        message,
			Actor:          actor,
		}
		return tx.Create(audit).Error
	})
}

// MarkStartedAt records the worker ownership fields (worker_id, started_at)
// on one scan by id. No code path in this repository calls it.
func (s *Store) MarkStartedAt(ctx context.Context, id uuid.UUID, workerID string, startedAt time.Time) error {
	return s.db.WithContext(ctx).Model(&scanmodel.Scan{}).Where("id = ?", id).Updates(map[string]interface{}{
		"worker_id":  workerID,
		"started_at": startedAt,
	}).Error
}

// TerminalWrite performs the single write that transitions a scan to
// completed or failed, including every field named by the terminal-write
// contracts of §4.5.
func (s *Store) TerminalWrite(ctx context.Context, scan *scanmodel.Scan, details []scanmodel.VulnerabilityDetail, actor string, previousStatus scanmodel.Status) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(scan).Error; err != nil {
			return fmt.Errorf("writing terminal scan state: %w", err)
		}
		if len(details) > 0 {
			if err := tx.CreateInBatches(details, 200).Error; err != nil {
				return fmt.Errorf("inserting vulnerability details: %w", err)
			}
		}
		msg := "scan completed"
		if scan.Status == scanmodel.StatusFailed {
			msg = "scan failed"
			if scan.ErrorMessage != nil {
				msg = *scan.ErrorMessage
			}
		}
		audit := &scanmodel.AuditLog{
			ScanID:         scan.ID,
			PreviousStatus: previousStatus,
			NewStatus:      scan.Status,
			Message:        msg,
			Actor:          actor,
		}
		return tx.Create(audit).Error
	})
}

// Delete removes the scan together with its vulnerability details (through
// the Details association) and then deletes its audit rows explicitly.
func (s *Store) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res := s.db.WithContext(ctx).Select("Details").Delete(&scanmodel.Scan{}, "id = ?", id)
	if res.Error != nil {
		return false, fmt.Errorf("deleting scan %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return false, nil
	}
	s.db.WithContext(ctx).Where("scan_id = ?", id).Delete(&scanmodel.AuditLog{})
	return true, nil
}

// ListFilter captures the filter/pagination options for List.
type ListFilter struct {
	Status        *scanmodel.Status
	ImageSubstr   string
	CompliantOnly bool
	Page          int
	PageSize      int
}

// List returns a page of scans matching the filter, ordered by created_at
// descending, along with the total matching row count.
func (s *Store) List(ctx context.Context, f ListFilter) ([]scanmodel.Scan, int64, error) {
	if f.PageSize <= 0 || f.PageSize > 100 {
		f.PageSize = 100
	}
	if f.Page <= 0 {
		f.Page = 1
	}

	q := s.db.WithContext(ctx).Model(&scanmodel.Scan{}).Omit("RawReport")
	if f.Status != nil {
		q = q.Where("status = ?", *f.Status)
	}
	if f.ImageSubstr != "" {
		q = q.Where("image_name ILIKE ?", "%"+strings.ToLower(f.ImageSubstr)+"%")
	}
	if f.CompliantOnly {
		q = q.Where("is_compliant = ?", true)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting scans: %w", err)
	}

	var scans []scanmodel.Scan
	offset := (f.Page - 1) * f.PageSize
	if err := q.Order("created_at DESC").Offset(offset).Limit(f.PageSize).Find(&scans).Error; err != nil {
		return nil, 0, fmt.Errorf("listing scans: %w", err)
	}
	return scans, total, nil
}

// HistoryForImage returns the scan history for one (registry, name, tag)
// triple within the given time window, ordered newest first.
func (s *Store) HistoryForImage(ctx context.Context, registry, name, tag string, since time.Time) ([]scanmodel.Scan, error) {
	var scans []scanmodel.Scan
	err := s.db.WithContext(ctx).Omit("RawReport").
		Where("registry = ? AND image_name = ? AND image_tag = ? AND created_at >= ?", registry, name, tag, since).
		Order("created_at DESC").
		Find(&scans).Error
	if err != nil {
		return nil, fmt.Errorf("fetching history: %w", err)
	}
	return scans, nil
}

// RetryCandidates returns failed scans eligible for retry, per the error
// taxonomy's permanent-code exclusion, in created_at order.
func (s *Store) RetryCandidates(ctx context.Context, maxRetries int) ([]scanmodel.Scan, error) {
	var scans []scanmodel.Scan
	err := s.db.WithContext(ctx).Omit("RawReport").
		Where("status = ? AND retry_count < ? AND (error_code IS NULL OR error_code NOT IN ?)",
			scanmodel.StatusFailed, maxRetries, permanentCodeList()).
		Order("created_at ASC").
		Find(&scans).Error
	if err != nil {
		return nil, fmt.Errorf("fetching retry candidates: %w", err)
	}
	return scans, nil
}

func permanentCodeList() []string {
	codes := make([]string, 0, len(scanmodel.PermanentErrorCodes))
	for c := range scanmodel.PermanentErrorCodes {
		codes = append(codes, c)
	}
	return codes
}

// ComplianceSummary is the result of the GROUP BY compliance_status
// aggregation.
type ComplianceSummary struct {
	ComplianceStatus scanmodel.ComplianceStatus `json:"compliance_status"`
	Count            int64                      `json:"count"`
	AvgRiskScore     float64                    `json:"avg_risk_score"`
}

// ComplianceSummaryReport groups completed scans by compliance_status.
func (s *Store) ComplianceSummaryReport(ctx context.Context) ([]ComplianceSummary, error) {
	var rows []ComplianceSummary
	err := s.db.WithContext(ctx).Model(&scanmodel.Scan{}).
		Select("compliance_status, COUNT(*) AS count, COALESCE(AVG(risk_score), 0) AS avg_risk_score").
		Where("status = ?", scanmodel.StatusComplete).
		Group("compliance_status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregating compliance summary: %w", err)
	}
	return rows, nil
}

// TopVulnerable is one row of the top-N-by-risk-score aggregation: the
// most recent scan for a given image, ranked by risk_score.
type TopVulnerable struct {
	ID        uuid.UUID `json:"id"`
	Registry  string    `json:"registry"`
	ImageName string    `json:"image_name"`
	ImageTag  string    `json:"image_tag"`
	RiskScore int       `json:"risk_score"`
	CreatedAt time.Time `json:"created_at"`
}

// TopVulnerableImages returns, for each distinct image, only its most
// recent scan, ordered by risk_score descending, limited to n.
func (s *Store) TopVulnerableImages(ctx context.Context, n int) ([]TopVulnerable, error) {
	if n <= 0 {
		n = 10
	}
	const query = `
		SELECT id, registry, image_name, image_tag, risk_score, created_at FROM (
			SELECT id, registry, image_name, image_tag, risk_score, created_at,
			       ROW_NUMBER() OVER (PARTITION BY registry, image_name, image_tag ORDER BY created_at DESC) AS rn
			FROM scans
			WHERE status = ?
		) ranked
		WHERE rn = 1
		ORDER BY risk_score DESC
		LIMIT ?`

	var rows []TopVulnerable
	if err := s.db.WithContext(ctx).Raw(query, scanmodel.StatusComplete, n).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("aggregating top vulnerable images: %w", err)
	}
	return rows, nil
}

// CountPending returns the current depth of the pending queue, used by the
// queue-depth gauge.
func (s *Store) CountPending(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&scanmodel.Scan{}).Where("status = ?", scanmodel.StatusPending).Count(&n).Error
	return n, err
}
