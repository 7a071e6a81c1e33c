package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/scanforge/vulnscan-engine/internal/scanmodel"
	"github.com/scanforge/vulnscan-engine/internal/store"
)

// ScanDTO is the nested response shape for a single scan, built from the
// flat storage row by FromScan. raw_report is included only when the
// caller explicitly requested it.
type ScanDTO struct {
	ID        uuid.UUID `json:"id"`
	Registry  string    `json:"registry"`
	ImageName string    `json:"image_name"`
	ImageTag  string    `json:"image_tag"`

	Status     scanmodel.Status `json:"status"`
	IsTerminal bool             `json:"is_terminal"`

	ErrorCode    *string `json:"error_code,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	RetryCount   int     `json:"retry_count"`

	Findings FindingsDTO `json:"findings"`

	RiskScore        int                          `json:"risk_score"`
	MaxCVSSScore     *float64                     `json:"max_cvss_score,omitempty"`
	AvgCVSSScore     *float64                     `json:"avg_cvss_score,omitempty"`
	IsCompliant      bool                         `json:"is_compliant"`
	ComplianceStatus scanmodel.ComplianceStatus   `json:"compliance_status,omitempty"`
	ImageDigest      *string                      `json:"image_digest,omitempty"`

	Timing TimingDTO `json:"timing"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	RawReport []byte `json:"raw_report,omitempty"`
}

// FindingsDTO groups the per-severity counts nested under "findings", per
// the flat-to-nested response shaping design note.
type FindingsDTO struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
	Fixable  int `json:"fixable"`
	Unfixable int `json:"unfixable"`
}

// TimingDTO groups the three duration fields.
type TimingDTO struct {
	ScanDuration     *float64 `json:"scan_duration_seconds,omitempty"`
	PullDuration     *float64 `json:"pull_duration_seconds,omitempty"`
	AnalysisDuration *float64 `json:"analysis_duration_seconds,omitempty"`
}

// FromScan projects a storage row into the nested API response shape.
func FromScan(s *scanmodel.Scan, includeRawReport bool) ScanDTO {
	dto := ScanDTO{
		ID:         s.ID,
		Registry:   s.Registry,
		ImageName:  s.ImageName,
		ImageTag:   s.ImageTag,
		Status:     s.Status,
		IsTerminal: s.Status.IsTerminal(),

		ErrorCode:    s.ErrorCode,
		ErrorMessage: s.ErrorMessage,
		RetryCount:   s.RetryCount,

		Findings: FindingsDTO{
			Critical:  s.CriticalCount,
			High:      s.HighCount,
			Medium:    s.MediumCount,
			Low:       s.LowCount,
			Unknown:   s.UnknownCount,
			Total:     s.TotalVulnerabilities,
			Fixable:   s.FixableCount,
			Unfixable: s.UnfixableCount,
		},

		RiskScore:        s.RiskScore,
		MaxCVSSScore:     s.MaxCVSSScore,
		AvgCVSSScore:     s.AvgCVSSScore,
		IsCompliant:      s.IsCompliant,
		ComplianceStatus: s.ComplianceStatus,
		ImageDigest:      s.ImageDigest,

		Timing: TimingDTO{
			ScanDuration:     s.ScanDuration,
			PullDuration:     s.PullDuration,
			AnalysisDuration: s.AnalysisDuration,
		},

		CreatedAt:   s.CreatedAt,
		StartedAt:   s.StartedAt,
		CompletedAt: s.CompletedAt,
	}
	if includeRawReport {
		dto.RawReport = s.RawReport
	}
	return dto
}

// StatusDTO is the lightweight status-poll response.
type StatusDTO struct {
	ID           uuid.UUID        `json:"id"`
	Status       scanmodel.Status `json:"status"`
	IsTerminal   bool             `json:"is_terminal"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	Progress     int              `json:"progress"`
}

func StatusFromScan(s *scanmodel.Scan) StatusDTO {
	return StatusDTO{
		ID:           s.ID,
		Status:       s.Status,
		IsTerminal:   s.Status.IsTerminal(),
		ErrorMessage: s.ErrorMessage,
		Progress:     s.Status.Progress(),
	}
}

// ListResponseDTO wraps a page of scans with pagination metadata.
type ListResponseDTO struct {
	Scans    []ScanDTO `json:"scans"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}

// DashboardStatsDTO is the compliance-summary + top-vulnerable response.
type DashboardStatsDTO struct {
	Compliance []store.ComplianceSummary `json:"compliance_summary"`
	TopRisk    []store.TopVulnerable     `json:"top_vulnerable_images"`
}

// TrendPointDTO is one sample in a risk-score time series.
type TrendPointDTO struct {
	CreatedAt        time.Time                  `json:"created_at"`
	RiskScore        int                        `json:"risk_score"`
	IsCompliant      bool                       `json:"is_compliant"`
	Status           scanmodel.Status           `json:"status"`
	ComplianceStatus scanmodel.ComplianceStatus `json:"compliance_status"`
}

func TrendFromScans(scans []scanmodel.Scan) []TrendPointDTO {
	points := make([]TrendPointDTO, 0, len(scans))
	for _, s := range scans {
		points = append(points, TrendPointDTO{
			CreatedAt:        s.CreatedAt,
			RiskScore:        s.RiskScore,
			IsCompliant:      s.IsCompliant,
			Status:           s.Status,
			ComplianceStatus: s.ComplianceStatus,
		})
	}
	return points
}
