package client

import (
	"context"
	"errors"
	"strings"

	"github.com/kjstillabower/weather-bridge/internal/circuitbreaker"
)

// ErrorCategory is a stable label for error classification in metrics and logs.
type ErrorCategory string

// Error category constants used as metric labels (upstreamErrorsTotal).
const (
	ErrorCategoryTimeout         ErrorCategory = "timeout"
	ErrorCategoryTransport       ErrorCategory = "transport"
	ErrorCategoryInvalidAPIKey   ErrorCategory = "invalid_api_key"
	ErrorCategoryStationNotFound ErrorCategory = "station_not_found"
	ErrorCategoryRateLimited     ErrorCategory = "rate_limited"
	ErrorCategoryUpstream5xx     ErrorCategory = "upstream_5xx"
	ErrorCategoryDomain          ErrorCategory = "upstream_errors"
	ErrorCategoryParsing         ErrorCategory = "parsing"
	ErrorCategoryCircuitOpen     ErrorCategory = "circuit_open"
	ErrorCategoryUnknown         ErrorCategory = "unknown"
)

// CategorizeError maps an error to a stable ErrorCategory.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ErrorCategoryTimeout
	case errors.Is(err, circuitbreaker.ErrOpen):
		return ErrorCategoryCircuitOpen
	case errors.Is(err, ErrInvalidAPIKey):
		return ErrorCategoryInvalidAPIKey
	case errors.Is(err, ErrStationNotFound):
		return ErrorCategoryStationNotFound
	case errors.Is(err, ErrRateLimited):
		return ErrorCategoryRateLimited
	case errors.Is(err, ErrUpstreamFailure):
		return ErrorCategoryUpstream5xx
	case errors.Is(err, ErrUpstreamErrors):
		return ErrorCategoryDomain
	case errors.Is(err, ErrParse):
		return ErrorCategoryParsing
	}

	errStr := err.Error()
	if strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded") {
		return ErrorCategoryTimeout
	}
	if errors.Is(err, ErrTransport) {
		return ErrorCategoryTransport
	}
	return ErrorCategoryUnknown
}
