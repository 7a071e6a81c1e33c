package commands

import "time"

// scanDTO mirrors the gateway's api.ScanDTO wire shape. scanctl only needs
// to read it back, never to construct or validate it server-side.
type scanDTO struct {
	ID        string `json:"id"`
	Registry  string `json:"registry"`
	ImageName string `json:"image_name"`
	ImageTag  string `json:"image_tag"`

	Status     string `json:"status"`
	IsTerminal bool   `json:"is_terminal"`

	ErrorCode    string `json:"error_code,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count"`

	Findings struct {
		Critical  int `json:"critical"`
		High      int `json:"high"`
		Medium    int `json:"medium"`
		Low       int `json:"low"`
		Unknown   int `json:"unknown"`
		Total     int `json:"total"`
		Fixable   int `json:"fixable"`
		Unfixable int `json:"unfixable"`
	} `json:"findings"`

	RiskScore        int     `json:"risk_score"`
	IsCompliant      bool    `json:"is_compliant"`
	ComplianceStatus string  `json:"compliance_status,omitempty"`
	MaxCVSSScore     float64 `json:"max_cvss_score,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type statusDTO struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	IsTerminal   bool   `json:"is_terminal"`
	ErrorMessage string `json:"error_message,omitempty"`
	Progress     int    `json:"progress"`
}

type listResponseDTO struct {
	Scans    []scanDTO `json:"scans"`
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
}
