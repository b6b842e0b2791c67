package errorsx

import (
	"fmt"
	"strings"
)

// UnknownToolError is returned when a tool name is not in the registry.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("unknown tool: %s", e.Name)
}

func (e *UnknownToolError) ReasonCode() ReasonCode { return ReasonUnknownTool }

// ValidationError describes arguments or declarations that violate a schema.
type ValidationError struct {
	Tool    string
	Field   string
	Problem string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("invalid arguments")
	if e.Tool != "" {
		b.WriteString(" for ")
		b.WriteString(e.Tool)
	}
	if e.Field != "" {
		b.WriteString(": ")
		b.WriteString(e.Field)
	}
	if e.Problem != "" {
		b.WriteString(": ")
		b.WriteString(e.Problem)
	}
	return b.String()
}

func (e *ValidationError) ReasonCode() ReasonCode { return ReasonValidation }

// HandlerFault is a handler failure caught at the dispatch boundary,
// either a returned error or a recovered panic.
type HandlerFault struct {
	Tool  string
	Fault any
}

func (e *HandlerFault) Error() string {
	switch f := e.Fault.(type) {
	case nil:
		return fmt.Sprintf("tool %s failed", e.Tool)
	case error:
		return fmt.Sprintf("tool %s failed: %v", e.Tool, f)
	default:
		return fmt.Sprintf("tool %s panicked: %v", e.Tool, f)
	}
}

func (e *HandlerFault) Unwrap() error {
	err, _ := e.Fault.(error)
	return err
}

func (e *HandlerFault) ReasonCode() ReasonCode { return ReasonHandlerFault }

// DuplicateToolError is returned when a name is registered twice.
type DuplicateToolError struct {
	Name string
}

func (e *DuplicateToolError) Error() string {
	return fmt.Sprintf("tool already registered: %s", e.Name)
}

func (e *DuplicateToolError) ReasonCode() ReasonCode { return ReasonDuplicateTool }

// LoadError records a plugin that failed while registering itself.
type LoadError struct {
	Location string
	Err      error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load plugin %s", e.Location)
	}
	return fmt.Sprintf("load plugin %s: %v", e.Location, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func (e *LoadError) ReasonCode() ReasonCode { return ReasonPluginLoad }
