package cti

import (
	"errors"
	"fmt"
)

// Errors surfaced to callers of a scan. ErrMalformedPayload is absorbed by the
// scan client through field defaulting and only appears in debug logs.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrTimeout            = errors.New("analysis timed out")
	ErrUnreachable        = errors.New("lookup service unreachable")
	ErrAnalysisFailed     = errors.New("analysis failed")
	ErrMalformedPayload   = errors.New("malformed payload")
	ErrCollaboratorAbsent = errors.New("collaborator endpoint not available")
)

// AnalysisFailedError is returned when the lookup service answers with a
// declared error status.
type AnalysisFailedError struct {
	StatusCode int
	Message    string
}

func (e *AnalysisFailedError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("analysis failed (status %d): %s", e.StatusCode, e.Message)
	}
	return "analysis failed: " + e.Message
}

// Is lets errors.Is(err, ErrAnalysisFailed) match any AnalysisFailedError.
func (e *AnalysisFailedError) Is(target error) bool {
	return target == ErrAnalysisFailed
}

// UserMessage renders err as the message shown to an end user. The four
// surfaced error kinds each get a distinct message.
func UserMessage(err error) string {
	var failed *AnalysisFailedError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "Please enter an IP address, domain, or URL"
	case errors.Is(err, ErrTimeout):
		return "Analysis timed out. Please try again."
	case errors.Is(err, ErrUnreachable):
		return "Cannot connect to server. Please check your connection."
	case errors.As(err, &failed):
		return failed.Message
	default:
		return "Analysis failed"
	}
}
