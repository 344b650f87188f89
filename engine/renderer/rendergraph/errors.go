package rendergraph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDuplicatePass       = errors.New("duplicate pass name")
	ErrPassAlreadyBuilt    = errors.New("pass declared twice without being marked dirty")
	ErrDuplicateOutput     = errors.New("pass writes the same resource twice")
	ErrCycle               = errors.New("cycle detected")
	ErrUnwrittenResource   = errors.New("pass reads a resource nothing writes")
	ErrUnknownResource     = errors.New("unknown resource")
	ErrUnrealizedResource  = errors.New("resource is not realized")
	ErrUnknownPass         = errors.New("unknown pass")
	ErrInvalidAttachment   = errors.New("invalid attachment")
	ErrResourceKindChanged = errors.New("resource used as a different kind")
)

// GraphError wraps a structural failure of the graph. Kind is one of the
// sentinels above.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func graphErrorf(kind error, format string, args ...any) error {
	return &GraphError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func cycleError(path []string) error {
	return &GraphError{Kind: ErrCycle, Msg: strings.Join(path, " -> ")}
}
