package schema

import "fmt"

// CorruptionError reports a static schema resource with missing or invalid
// required fields. It is fatal for the scenario: loaders never return a
// partial tree alongside it.
type CorruptionError struct {
	Resource string
	Detail   string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("schema corruption in %s: %s", e.Resource, e.Detail)
}

func corrupt(resource, format string, args ...interface{}) *CorruptionError {
	return &CorruptionError{Resource: resource, Detail: fmt.Sprintf(format, args...)}
}
