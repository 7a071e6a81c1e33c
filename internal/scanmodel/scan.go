// Package scanmodel defines the Scan entity and its lifecycle invariants.
package scanmodel

import (
	"time"

	"github.com/google/uuid"
)

// Status is the state-machine enum driving a scan from admission to a
// terminal outcome.
type Status string

const (
	StatusPending  Status = "pending"
	StatusPulling  Status = "pulling"
	StatusScanning Status = "scanning"
	StatusParsing  Status = "parsing"
	StatusComplete Status = "completed"
	StatusFailed   Status = "failed"
)

// IsTerminal reports whether no further mutation of the scan is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusComplete || s == StatusFailed
}

// ActiveStatuses are the non-terminal states a scan occupies while a worker
// owns it or while it waits to be claimed.
var ActiveStatuses = []Status{StatusPending, StatusPulling, StatusScanning, StatusParsing}

// Progress maps a status to the fixed percentage used by the status-poll
// endpoint.
func (s Status) Progress() int {
	switch s {
	case StatusPending:
		return 0
	case StatusPulling:
		return 20
	case StatusScanning:
		return 50
	case StatusParsing:
		return 80
	case StatusComplete, StatusFailed:
		return 100
	default:
		return 0
	}
}

// ComplianceStatus is the three-valued classification derived from severity
// counts; is_compliant is the stricter boolean cousin of this field.
type ComplianceStatus string

const (
	ComplianceCompliant    ComplianceStatus = "compliant"
	ComplianceNonCompliant ComplianceStatus = "non_compliant"
	CompliancePendingReview ComplianceStatus = "pending_review"
)

// Scan is the central entity: one request to evaluate a single container
// image reference, with a single lifecycle and terminal result.
type Scan struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey"`

	ImageName string `gorm:"size:255;not null;index:idx_scan_image,priority:2"`
	ImageTag  string `gorm:"size:128;not null;index:idx_scan_image,priority:3"`
	Registry  string `gorm:"size:255;not null;index:idx_scan_image,priority:1"`

	ImageDigest *string `gorm:"size:255"`

	// ArchivePath, when set, identifies a locally staged image archive the
	// worker must scan with --input instead of pulling ImageName:ImageTag
	// from Registry. Populated only by the file-upload ingestion path.
	ArchivePath *string `gorm:"size:500"`

	Status Status `gorm:"size:16;not null;index:idx_scan_status"`

	ErrorMessage *string `gorm:"size:500"`
	ErrorCode    *string `gorm:"size:32"`
	RetryCount   int     `gorm:"not null;default:0;check:retry_count >= 0 AND retry_count <= 10"`

	IdempotencyKey *string `gorm:"size:64;uniqueIndex"`

	RawReport []byte `gorm:"type:jsonb"`

	CriticalCount int `gorm:"not null;default:0;check:critical_count >= 0"`
	HighCount     int `gorm:"not null;default:0;check:high_count >= 0"`
	MediumCount   int `gorm:"not null;default:0;check:medium_count >= 0"`
	LowCount      int `gorm:"not null;default:0;check:low_count >= 0"`
	UnknownCount  int `gorm:"not null;default:0;check:unknown_count >= 0"`

	TotalVulnerabilities int `gorm:"not null;default:0"`
	FixableCount         int `gorm:"not null;default:0"`
	UnfixableCount       int `gorm:"not null;default:0"`

	RiskScore int `gorm:"not null;default:0;check:risk_score >= 0"`

	MaxCVSSScore *float64
	AvgCVSSScore *float64

	IsCompliant      bool             `gorm:"not null;default:false;index:idx_scan_compliance,priority:1"`
	ComplianceStatus ComplianceStatus `gorm:"size:16"`

	ScanDuration     *float64
	PullDuration     *float64
	AnalysisDuration *float64

	CreatedAt time.Time `gorm:"not null;autoCreateTime;index:idx_scan_image,priority:4;index:idx_scan_compliance,priority:3"`
	StartedAt   *time.Time
	CompletedAt *time.Time
	UpdatedAt   time.Time `gorm:"not null;autoUpdateTime"`

	WorkerID *string `gorm:"size:64"`

	TrivyVersion *string `gorm:"size:64"`

	Details []VulnerabilityDetail `gorm:"foreignKey:ScanID;constraint:OnDelete:CASCADE"`
}

func (Scan) TableName() string { return "scans" }

// CheckInvariants validates the structural invariants named in the data
// model; it is the defense-in-depth counterpart to the database CHECK
// constraints declared in the struct tags above.
func (s *Scan) CheckInvariants() []string {
	var problems []string

	if s.Status == StatusComplete {
		if s.RawReport == nil {
			problems = append(problems, "completed scan missing raw_report")
		}
		if s.CompletedAt == nil {
			problems = append(problems, "completed scan missing completed_at")
		}
		sum := s.CriticalCount + s.HighCount + s.MediumCount + s.LowCount + s.UnknownCount
		if sum != s.TotalVulnerabilities {
			problems = append(problems, "severity counts do not sum to total_vulnerabilities")
		}
		if s.FixableCount+s.UnfixableCount != s.TotalVulnerabilities {
			problems = append(problems, "fixable+unfixable does not equal total_vulnerabilities")
		}
	}

	if s.Status == StatusFailed {
		if s.ErrorCode == nil {
			problems = append(problems, "failed scan missing error_code")
		}
		if s.CompletedAt == nil {
			problems = append(problems, "failed scan missing completed_at")
		}
	}

	switch s.Status {
	case StatusPulling, StatusScanning, StatusParsing:
		if s.WorkerID == nil {
			problems = append(problems, "active scan missing worker_id")
		}
		if s.StartedAt == nil {
			problems = append(problems, "active scan missing started_at")
		}
	}

	if s.IsCompliant != (s.CriticalCount == 0 && s.HighCount == 0) {
		problems = append(problems, "is_compliant disagrees with critical/high counts")
	}

	return problems
}

// VulnerabilityDetail is a denormalized, per-finding record owned by a scan.
type VulnerabilityDetail struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	ScanID        uuid.UUID `gorm:"type:uuid;not null;index:idx_vulndetail_scan"`
	VulnerabilityID string  `gorm:"size:64;not null;index:idx_vulndetail_cve"`
	PackageName   string    `gorm:"size:255;not null"`
	PackageVersion string   `gorm:"size:128"`
	FixedVersion  string    `gorm:"size:128"`
	Severity      string    `gorm:"size:16"`
	CVSSScore     *float64
	IsFixable     bool
	PublishedDate *time.Time
}

func (VulnerabilityDetail) TableName() string { return "vulnerability_details" }

// AuditLog is an append-only record of a single state transition.
type AuditLog struct {
	ID               uint64    `gorm:"primaryKey;autoIncrement"`
	ScanID           uuid.UUID `gorm:"type:uuid;not null;index:idx_audit_scan"`
	PreviousStatus   Status    `gorm:"size:16"`
	NewStatus        Status    `gorm:"size:16;not null"`
	Message          string    `gorm:"size:1000"`
	StructuredContext []byte   `gorm:"type:jsonb"`
	Actor            string    `gorm:"size:128"`
	Timestamp        time.Time `gorm:"not null;autoCreateTime"`
}

func (AuditLog) TableName() string { return "scan_audit_logs" }

// PermanentErrorCodes are failure classifications that are never retried.
var PermanentErrorCodes = map[string]bool{
	"IMAGE_NOT_FOUND": true,
	"INVALID_IMAGE":   true,
	"AUTH_FAILED":     true,
}

// IsRetryEligible reports whether a failed scan is eligible for retry per
// the retry policy: retry_count below the configured max and the error
// code is not in the permanent set.
func (s *Scan) IsRetryEligible(maxRetries int) bool {
	if s.Status != StatusFailed {
		return false
	}
	if s.RetryCount >= maxRetries {
		return false
	}
	if s.ErrorCode != nil && PermanentErrorCodes[*s.ErrorCode] {
		return false
	}
	return true
}
