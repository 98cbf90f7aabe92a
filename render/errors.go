package render

import (
	"errors"
	"fmt"
)

var (
	ErrSwapchainStale = errors.New("render: swapchain out of date")
	ErrDeviceLost     = errors.New("render: device lost")
	ErrTimeout        = errors.New("render: timed out waiting for the GPU")
	ErrClosed         = errors.New("render: context closed")
)

// InitError reports a failed construction step.
type InitError struct {
	Stage string
	Err   error
}

func (e *InitError) Error() string { return fmt.Sprintf("init %s: %v", e.Stage, e.Err) }
func (e *InitError) Unwrap() error { return e.Err }

// MeshError reports a mesh whose resources could not be created. Other
// meshes and the frame loop are unaffected.
type MeshError struct {
	Path  string
	Stage string
	Err   error
}

func (e *MeshError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("mesh %s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("mesh %s (%s): %v", e.Stage, e.Path, e.Err)
}

func (e *MeshError) Unwrap() error { return e.Err }

// FrameError reports a failed frame. Retryable frames were skipped and the
// next Update may succeed; anything else requires rebuilding the context.
type FrameError struct {
	Stage     string
	Retryable bool
	Err       error
}

func (e *FrameError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("frame %s (%s): %v", e.Stage, kind, e.Err)
}

func (e *FrameError) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var fe *FrameError
	return errors.As(err, &fe) && fe.Retryable
}

func classify(stage string, err error) *FrameError {
	retry := errors.Is(err, ErrSwapchainStale) || errors.Is(err, ErrTimeout)
	return &FrameError{Stage: stage, Retryable: retry, Err: err}
}
