package graph

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/cfgmigrate/internal/model"
)

// GraphErrorCode categorizes graph errors.
type GraphErrorCode string

const (
	// ErrCodeCycle indicates the selected objects depend on each other in a loop.
	ErrCodeCycle GraphErrorCode = "CYCLE"
)

// GraphError is a fatal error found while building the dependency graph.
// No destination call is made once a GraphError is returned.
type GraphError struct {
	Code    GraphErrorCode
	Message string

	// Path is the cycle, first key repeated at the end.
	Path []model.Key
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	if len(e.Path) == 0 {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	parts := make([]string, len(e.Path))
	for i, k := range e.Path {
		parts[i] = k.String()
	}
	return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, strings.Join(parts, " -> "))
}

// IsCycleError reports whether err is a cycle GraphError.
func IsCycleError(err error) bool {
	var ge *GraphError
	if errors.As(err, &ge) {
		return ge.Code == ErrCodeCycle
	}
	return false
}
