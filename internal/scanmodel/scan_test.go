package scanmodel

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestStatus_ProgressMapping(t *testing.T) {
	tests := []struct {
		status Status
		want   int
	}{
		{StatusPending, 0},
		{StatusPulling, 20},
		{StatusScanning, 50},
		{StatusParsing, 80},
		{StatusComplete, 100},
		{StatusFailed, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.Progress(), "status %s", tt.status)
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusComplete.IsTerminal())
	assert.True(t, StatusFailed.IsTerminal())
	for _, s := range ActiveStatuses {
		assert.False(t, s.IsTerminal(), "status %s should not be terminal", s)
	}
}

func validCompletedScan() *Scan {
	now := time.Now().UTC()
	return &Scan{
		ID:                   uuid.New(),
		Status:               StatusComplete,
		RawReport:            []byte(`{}`),
		CompletedAt:          &now,
		CriticalCount:        1,
		HighCount:            2,
		MediumCount:          3,
		LowCount:             4,
		UnknownCount:         0,
		TotalVulnerabilities: 10,
		FixableCount:         6,
		UnfixableCount:       4,
		IsCompliant:          false,
	}
}

func TestCheckInvariants_ValidCompletedScan(t *testing.T) {
	assert.Empty(t, validCompletedScan().CheckInvariants())
}

func TestCheckInvariants_CompletedMissingRawReport(t *testing.T) {
	s := validCompletedScan()
	s.RawReport = nil
	assert.Contains(t, s.CheckInvariants(), "completed scan missing raw_report")
}

func TestCheckInvariants_CompletedCountMismatch(t *testing.T) {
	s := validCompletedScan()
	s.TotalVulnerabilities = 99
	assert.Contains(t, s.CheckInvariants(), "severity counts do not sum to total_vulnerabilities")
}

func TestCheckInvariants_CompletedFixableMismatch(t *testing.T) {
	s := validCompletedScan()
	s.FixableCount = 1
	assert.Contains(t, s.CheckInvariants(), "fixable+unfixable does not equal total_vulnerabilities")
}

func TestCheckInvariants_FailedRequiresErrorCodeAndCompletedAt(t *testing.T) {
	s := &Scan{Status: StatusFailed}
	problems := s.CheckInvariants()
	assert.Contains(t, problems, "failed scan missing error_code")
	assert.Contains(t, problems, "failed scan missing completed_at")
}

func TestCheckInvariants_ActiveRequiresWorkerAndStartedAt(t *testing.T) {
	for _, status := range []Status{StatusPulling, StatusScanning, StatusParsing} {
		s := &Scan{Status: status}
		problems := s.CheckInvariants()
		assert.Contains(t, problems, "active scan missing worker_id")
		assert.Contains(t, problems, "active scan missing started_at")
	}
}

func TestCheckInvariants_IsCompliantMustMatchCounts(t *testing.T) {
	s := &Scan{Status: StatusPending, CriticalCount: 1, IsCompliant: true}
	assert.Contains(t, s.CheckInvariants(), "is_compliant disagrees with critical/high counts")
}

func TestIsRetryEligible(t *testing.T) {
	tests := []struct {
		name       string
		scan       Scan
		maxRetries int
		want       bool
	}{
		{
			name:       "transient error under max retries is eligible",
			scan:       Scan{Status: StatusFailed, RetryCount: 1, ErrorCode: strPtr("TIMEOUT")},
			maxRetries: 3,
			want:       true,
		},
		{
			name:       "at max retries is not eligible",
			scan:       Scan{Status: StatusFailed, RetryCount: 3, ErrorCode: strPtr("TIMEOUT")},
			maxRetries: 3,
			want:       false,
		},
		{
			name:       "permanent error code is never eligible",
			scan:       Scan{Status: StatusFailed, RetryCount: 0, ErrorCode: strPtr("IMAGE_NOT_FOUND")},
			maxRetries: 3,
			want:       false,
		},
		{
			name:       "pull failed is transient even when auth-related",
			scan:       Scan{Status: StatusFailed, RetryCount: 0, ErrorCode: strPtr("PULL_FAILED")},
			maxRetries: 3,
			want:       true,
		},
		{
			name:       "non-failed scan is never retry eligible",
			scan:       Scan{Status: StatusComplete, RetryCount: 0, ErrorCode: strPtr("TIMEOUT")},
			maxRetries: 3,
			want:       false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.scan.IsRetryEligible(tt.maxRetries))
		})
	}
}
