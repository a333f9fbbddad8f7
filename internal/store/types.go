package store

import "github.com/Zombieliu/gear/internal/ir"

// Run is one engine execution.
type Run struct {
	ID    string            `json:"id"`
	Title string            `json:"title"`
	Meta  map[string]string `json:"meta,omitempty"`
}

// Dispatch records one message taken off the engine queue.
type Dispatch struct {
	Message ir.Message `json:"message"`
	State   string     `json:"state"`
	Error   string     `json:"error,omitempty"`
}

// Dispatch states. All but StateLogged are msg.TaskState names.
const (
	StateCompleted = "completed"
	StateSuspended = "suspended"
	StateFaulted   = "faulted"

	// StateLogged marks a message whose destination is not a program.
	StateLogged = "logged"
)
