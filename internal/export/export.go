// Package export produces PDF and PNG artifacts from documents, locally
// through a headless browser or the primitive painter, or remotely through
// the pdf-server.
package export

import (
	"context"
	"errors"
	"fmt"

	"github.com/drfirst/go-rxpad/internal/document"
	"github.com/drfirst/go-rxpad/internal/render"
	"github.com/drfirst/go-rxpad/pkg/circuitbreaker"
	"github.com/drfirst/go-rxpad/pkg/workerpool"
)

// Exporter renders documents into binary artifacts
type Exporter interface {
	PDF(ctx context.Context, doc document.Document) ([]byte, error)
	PNG(ctx context.Context, doc document.Document) ([]byte, error)
}

// Cause classifies a render failure
type Cause string

const (
	// CauseUnavailable means no renderer could be started or admitted
	CauseUnavailable Cause = "unavailable"
	// CauseCrashed means the renderer started but failed or produced nothing
	CauseCrashed Cause = "crashed"
	// CauseTimeout means the deadline passed before output was ready
	CauseTimeout Cause = "timeout"
	// CauseUnreachable means the remote export service could not be contacted
	CauseUnreachable Cause = "unreachable"
)

// RenderFailure is returned for every failed export. No partial output
// accompanies it.
type RenderFailure struct {
	Cause   Cause
	Message string
	Err     error
}

func (e *RenderFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("render %s: %s: %v", e.Cause, e.Message, e.Err)
	}
	return fmt.Sprintf("render %s: %s", e.Cause, e.Message)
}

func (e *RenderFailure) Unwrap() error { return e.Err }

// AsRenderFailure extracts a *RenderFailure from err
func AsRenderFailure(err error) (*RenderFailure, bool) {
	var rf *RenderFailure
	ok := errors.As(err, &rf)
	return rf, ok
}

var errEmptyOutput = errors.New("renderer returned no bytes")

// classify maps an error from the local render path to a RenderFailure
func classify(err error) *RenderFailure {
	if rf, ok := AsRenderFailure(err); ok {
		return rf
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &RenderFailure{Cause: CauseTimeout, Message: "render timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &RenderFailure{Cause: CauseTimeout, Message: "render cancelled", Err: err}
	case errors.Is(err, circuitbreaker.ErrOpen):
		return &RenderFailure{Cause: CauseUnavailable, Message: "renderer paused after repeated failures", Err: err}
	case errors.Is(err, render.ErrBrowserUnavailable):
		return &RenderFailure{Cause: CauseUnavailable, Message: "headless browser could not be started", Err: err}
	case errors.Is(err, workerpool.ErrQueueFull), errors.Is(err, workerpool.ErrPoolClosed):
		return &RenderFailure{Cause: CauseUnavailable, Message: "renderer is at capacity", Err: err}
	case errors.Is(err, errEmptyOutput):
		return &RenderFailure{Cause: CauseCrashed, Message: "renderer produced an empty document", Err: err}
	default:
		return &RenderFailure{Cause: CauseCrashed, Message: "renderer failed", Err: err}
	}
}
