// Package apperrors defines the pipeline's error taxonomy: a fixed set of
// kinds the orchestrator and ingestor raise, each carrying enough structured
// detail to populate a data_versions failure note.
package apperrors

import "fmt"

// Kind identifies one of the pipeline's error categories.
type Kind string

const (
	// CatalogueUnavailable: the upstream directory listing failed or was empty.
	CatalogueUnavailable Kind = "catalogue_unavailable"
	// DownloadFailed: a transport error persisted after all retries.
	DownloadFailed Kind = "download_failed"
	// ExtractionFailed: a corrupt archive or I/O error during extraction.
	ExtractionFailed Kind = "extraction_failed"
	// ParseSkip: a row-level parse failure, recovered inline by skipping the row.
	ParseSkip Kind = "parse_skip"
	// CopyFailed: a database error during a COPY batch, aborting the current file.
	CopyFailed Kind = "copy_failed"
	// CheckpointCorruption: a phase is marked done but its staging table is missing.
	CheckpointCorruption Kind = "checkpoint_corruption"
)

// IngestError is the concrete error type carried through the pipeline.
type IngestError struct {
	Kind    Kind
	Message string
	Details string
	Cause   error
}

func (e *IngestError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *IngestError) Unwrap() error { return e.Cause }

func newError(kind Kind, message string, cause error) *IngestError {
	return &IngestError{Kind: kind, Message: message, Cause: cause}
}

// NewCatalogueUnavailable builds a CatalogueUnavailable error.
func NewCatalogueUnavailable(message string, cause error) *IngestError {
	return newError(CatalogueUnavailable, message, cause)
}

// NewDownloadFailed builds a DownloadFailed error.
func NewDownloadFailed(message string, cause error) *IngestError {
	return newError(DownloadFailed, message, cause)
}

// NewExtractionFailed builds an ExtractionFailed error.
func NewExtractionFailed(message string, cause error) *IngestError {
	return newError(ExtractionFailed, message, cause)
}

// NewParseSkip builds a ParseSkip error. Callers log and continue; it never
// propagates past the row loop.
func NewParseSkip(message string, cause error) *IngestError {
	return newError(ParseSkip, message, cause)
}

// NewCopyFailed builds a CopyFailed error, attaching the last few buffered
// raw input lines of the failing batch as Details for postmortem debugging.
func NewCopyFailed(message string, cause error, lastLines []string) *IngestError {
	e := newError(CopyFailed, message, cause)
	e.Details = joinLines(lastLines)
	return e
}

// NewCheckpointCorruption builds a CheckpointCorruption error.
func NewCheckpointCorruption(message string) *IngestError {
	return newError(CheckpointCorruption, message, nil)
}

// IsKind reports whether err is an *IngestError of the given kind.
func IsKind(err error, k Kind) bool {
	var ie *IngestError
	for err != nil {
		if e, ok := err.(*IngestError); ok {
			ie = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ie != nil && ie.Kind == k
}

func joinLines(lines []string) string {
	const maxLines = 5
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += " | "
		}
		out += l
	}
	return out
}
