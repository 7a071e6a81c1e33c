package api

import (
	"net/http"

	"github.com/scanforge/vulnscan-engine/internal/scanerr"
)

// statusByCode is the single table the propagation policy calls for:
// every *ScanError code maps to exactly one HTTP status here, rather than
// being decided ad hoc inside each handler.
var statusByCode = map[scanerr.Code]int{
	scanerr.CodeValidation:        http.StatusUnprocessableEntity,
	scanerr.CodeScanNotFound:      http.StatusNotFound,
	scanerr.CodeTimeout:           http.StatusGatewayTimeout,
	scanerr.CodeImageNotFound:     http.StatusNotFound,
	scanerr.CodePullFailed:        http.StatusBadGateway,
	scanerr.CodeTrivyError:        http.StatusBadGateway,
	scanerr.CodeInternal:          http.StatusInternalServerError,
	scanerr.CodeDatabase:          http.StatusServiceUnavailable,
	scanerr.CodeDatabaseTxn:       http.StatusServiceUnavailable,
	scanerr.CodeRateLimitExceeded: http.StatusTooManyRequests,
	scanerr.CodeInvalidImage:      http.StatusUnprocessableEntity,
	scanerr.CodeAuthFailed:        http.StatusBadGateway,
	scanerr.CodeConflict:          http.StatusConflict,
}

// errorToStatus maps any error to an HTTP status, preferring the
// *ScanError classification when present and defaulting to 500 for
// anything unclassified (a bug, not an expected failure mode).
func errorToStatus(err error) int {
	if se, ok := scanerr.As(err); ok {
		if status, found := statusByCode[se.Code]; found {
			return status
		}
	}
	return http.StatusInternalServerError
}
