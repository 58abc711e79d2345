package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsKind(t *testing.T) {
	base := errors.New("boom")
	wrapped := fmt.Errorf("context: %w", NewDownloadFailed("timeout", base))

	if !IsKind(wrapped, DownloadFailed) {
		t.Errorf("expected wrapped error to match kind DownloadFailed")
	}
	if IsKind(wrapped, ExtractionFailed) {
		t.Errorf("expected wrapped error not to match kind ExtractionFailed")
	}
}

func TestNewCopyFailedTruncatesDetails(t *testing.T) {
	lines := []string{"l1", "l2", "l3", "l4", "l5", "l6", "l7"}
	err := NewCopyFailed("bad row", nil, lines)

	want := "l3 | l4 | l5 | l6 | l7"
	if err.Details != want {
		t.Errorf("Details = %q, want %q", err.Details, want)
	}
}

func TestErrorMessageIncludesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NewDownloadFailed("fetch failed", cause)

	got := err.Error()
	if got != "download_failed: fetch failed: connection reset" {
		t.Errorf("Error() = %q", got)
	}
}
