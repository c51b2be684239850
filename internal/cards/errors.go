package cards

import (
	"errors"
	"fmt"
)

// Configuration errors. They are reported before any planning or capture starts.
var (
	ErrMissingQuery     = errors.New("content query is required")
	ErrMissingExtractor = errors.New("page extractor is required")
	ErrMissingComponent = errors.New("render component is required")
)

// ErrPlanning marks a failure that aborted the planning phase.
var ErrPlanning = errors.New("planning failed")

// Stage identifies where in the capture a failure happened.
type Stage string

// Capture stages.
const (
	StageLaunch   Stage = "launch"
	StageNavigate Stage = "navigate"
	StageCapture  Stage = "capture"
	StageWrite    Stage = "write"
)

// CaptureError is returned by a Capturer for any failed job.
type CaptureError struct {
	URL         string
	Destination string
	Stage       Stage
	Err         error
}

// NewCaptureError wraps err for the given request and stage.
func NewCaptureError(req CaptureRequest, stage Stage, err error) *CaptureError {
	return &CaptureError{URL: req.URL, Destination: req.Destination, Stage: stage, Err: err}
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture %s (%s): %v", e.URL, e.Stage, e.Err)
}

func (e *CaptureError) Unwrap() error {
	return e.Err
}
