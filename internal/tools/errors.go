package tools

import "fmt"

// ErrToolNotFound is returned by Registry.Execute when the model asks for
// a tool that was never registered.
type ErrToolNotFound struct {
	Name string
}

func (e *ErrToolNotFound) Error() string {
	return fmt.Sprintf("tool %q not found", e.Name)
}
