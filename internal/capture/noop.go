package capture

import (
	"context"
	"errors"

	"github.com/JakeFAU/socialcards/internal/cards"
)

// ErrBrowserDisabled is returned by Noop for every capture.
var ErrBrowserDisabled = errors.New("browser capture not configured")

// Noop implements cards.Capturer but fails every job, so a run without a
// browser still reports each card as failed instead of silently succeeding.
type Noop struct{}

// NewNoop creates a new Noop capturer.
func NewNoop() *Noop {
	return &Noop{}
}

// Capture always returns a launch-stage CaptureError.
func (Noop) Capture(_ context.Context, req cards.CaptureRequest) error {
	return cards.NewCaptureError(req, cards.StageLaunch, ErrBrowserDisabled)
}
