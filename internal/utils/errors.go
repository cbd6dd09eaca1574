package utils

import "errors"

// Sentinel errors for the failure taxonomy. Wrap with fmt.Errorf("%w: ...")
// and test with errors.Is.
var (
	ErrNotFound          = errors.New("resource not found")
	ErrParse             = errors.New("unexpected response shape")
	ErrUnsupportedKind   = errors.New("unsupported resource kind")
	ErrAuthRequired      = errors.New("access token required")
	ErrAuthInvalid       = errors.New("access token rejected")
	ErrRateLimited       = errors.New("rate limited")
	ErrNetwork           = errors.New("network error")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrFilesystem        = errors.New("filesystem error")
	ErrRangeNotSupported = errors.New("range requests are not supported")
)

// FailureReason maps an error to the short label used when grouping
// failures in the final report.
func FailureReason(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrParse):
		return "parse error"
	case errors.Is(err, ErrUnsupportedKind):
		return "unsupported kind"
	case errors.Is(err, ErrAuthRequired):
		return "auth required"
	case errors.Is(err, ErrAuthInvalid):
		return "auth invalid"
	case errors.Is(err, ErrRateLimited):
		return "rate limited"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum mismatch"
	case errors.Is(err, ErrFilesystem):
		return "filesystem error"
	case errors.Is(err, ErrNetwork):
		return "network error"
	default:
		return "error"
	}
}
