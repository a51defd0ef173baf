package assets

import (
	"fmt"

	"github.com/rohmanhakim/docs-archiver/internal/manifest"
	"github.com/rohmanhakim/docs-archiver/pkg/failure"
)

type AssetErrorCause string

const (
	ErrCauseFetchFailure   AssetErrorCause = "fetch failed"
	ErrCauseForbidden      AssetErrorCause = "forbidden after retry"
	ErrCauseUnexpectedHTTP AssetErrorCause = "unexpected http status"
	ErrCauseStorageFailure AssetErrorCause = "storage failed"
)

type AssetError struct {
	Message   string
	Retryable bool
	Cause     AssetErrorCause
	URL       string
}

func (e *AssetError) Error() string {
	return fmt.Sprintf("asset error (%s): %s", e.URL, e.Cause)
}

func (e *AssetError) Severity() failure.Severity {
	if e.Retryable {
		return failure.SeverityRecoverable
	}
	return failure.SeverityFatal
}

// mapAssetErrorToMetadataCause maps asset-local error semantics to the
// canonical manifest.ErrorCause table. Observational only.
func mapAssetErrorToMetadataCause(err *AssetError) manifest.ErrorCause {
	switch err.Cause {
	case ErrCauseFetchFailure:
		return manifest.CauseNetworkFailure
	case ErrCauseForbidden:
		return manifest.CauseNetworkFailure
	case ErrCauseUnexpectedHTTP:
		return manifest.CauseNetworkFailure
	case ErrCauseStorageFailure:
		return manifest.CauseStorageFailure
	default:
		return manifest.CauseUnknown
	}
}
