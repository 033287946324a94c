package messages

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// CORE INTERFACES
// =============================================================================

// Message represents any message in the system
type Message interface {
	Subject() string
	Validate() error
}

// Command represents an input that requests something to happen
type Command interface {
	Message
	IsCommand()
}

// Event represents something that has happened
type Event interface {
	Message
	IsEvent()
	Timestamp() time.Time
}

// =============================================================================
// SUBJECT CONSTANTS - Single source of truth for all subjects
// =============================================================================

const (
	// Playground domain - Commands
	PlaygroundCommandSubjectPattern = "command.playground.>"
	SelectFileSubjectPattern        = "command.playground.*.select" // * = playground id
	EditFileSubjectPattern          = "command.playground.*.edit"
	PatchFilesSubjectPattern        = "command.playground.*.patch"
	ResetSubjectPattern             = "command.playground.*.reset"
	ReloadSubjectPattern            = "command.playground.*.reload"

	// Playground domain - Events
	PlaygroundEventSubjectPattern = "event.playground.*.>"
	StateChangedSubjectPattern    = "event.playground.*.state"
	PreviewReadySubjectPattern    = "event.playground.*.preview"
	ActiveFileSubjectPattern      = "event.playground.*.active"
	OutputSubjectPattern          = "event.playground.*.output"
	FileSyncedSubjectPattern      = "event.playground.*.synced"

	// Sandbox domain - shared by every playground on the runtime
	ServerReadySubject        = "event.sandbox.server.ready"
	ProcessExitSubjectPattern = "event.sandbox.process.*.exit" // * = process id
)

// PlaygroundEventsSubject returns the wildcard covering every event of one playground.
func PlaygroundEventsSubject(id string) string {
	return fmt.Sprintf("event.playground.%s.>", id)
}

// =============================================================================
// PLAYGROUND DOMAIN - COMMANDS
// =============================================================================

// SelectFileCommand makes a document the active one
type SelectFileCommand struct {
	PlaygroundID string `json:"-"` // Derived from subject
	Path         string `json:"path"`
}

func (c SelectFileCommand) Subject() string {
	return fmt.Sprintf("command.playground.%s.select", c.PlaygroundID)
}
func (c SelectFileCommand) IsCommand() {}
func (c SelectFileCommand) Validate() error {
	if err := validatePlaygroundID(c.PlaygroundID); err != nil {
		return err
	}
	return validatePath(c.Path)
}

// EditFileCommand replaces the text of one document
type EditFileCommand struct {
	PlaygroundID string `json:"-"`
	Path         string `json:"path"`
	Text         string `json:"text"`
}

func (c EditFileCommand) Subject() string {
	return fmt.Sprintf("command.playground.%s.edit", c.PlaygroundID)
}
func (c EditFileCommand) IsCommand() {}
func (c EditFileCommand) Validate() error {
	if err := validatePlaygroundID(c.PlaygroundID); err != nil {
		return err
	}
	return validatePath(c.Path)
}

// PatchFilesCommand applies a JSON merge patch over path -> text
type PatchFilesCommand struct {
	PlaygroundID string          `json:"-"`
	Patch        json.RawMessage `json:"patch"`
}

func (c PatchFilesCommand) Subject() string {
	return fmt.Sprintf("command.playground.%s.patch", c.PlaygroundID)
}
func (c PatchFilesCommand) IsCommand() {}
func (c PatchFilesCommand) Validate() error {
	if err := validatePlaygroundID(c.PlaygroundID); err != nil {
		return err
	}
	if len(c.Patch) == 0 {
		return fmt.Errorf("patch is required")
	}
	return nil
}

// ResetCommand restores every document to its initial content
type ResetCommand struct {
	PlaygroundID string `json:"-"`
}

func (c ResetCommand) Subject() string {
	return fmt.Sprintf("command.playground.%s.reset", c.PlaygroundID)
}
func (c ResetCommand) IsCommand()      {}
func (c ResetCommand) Validate() error { return validatePlaygroundID(c.PlaygroundID) }

// ReloadCommand re-requests the current preview URL
type ReloadCommand struct {
	PlaygroundID string `json:"-"`
}

func (c ReloadCommand) Subject() string {
	return fmt.Sprintf("command.playground.%s.reload", c.PlaygroundID)
}
func (c ReloadCommand) IsCommand()      {}
func (c ReloadCommand) Validate() error { return validatePlaygroundID(c.PlaygroundID) }

// =============================================================================
// PLAYGROUND DOMAIN - EVENTS
// =============================================================================

// StateChangedEvent reports a session controller transition
type StateChangedEvent struct {
	PlaygroundID string    `json:"-"`
	State        string    `json:"state"`
	Error        string    `json:"error,omitempty"`
	ChangedAt    time.Time `json:"changed_at"`
}

func (e StateChangedEvent) Subject() string {
	return fmt.Sprintf("event.playground.%s.state", e.PlaygroundID)
}
func (e StateChangedEvent) IsEvent()             {}
func (e StateChangedEvent) Timestamp() time.Time { return e.ChangedAt }
func (e StateChangedEvent) Validate() error      { return validatePlaygroundID(e.PlaygroundID) }

// PreviewReadyEvent carries the preview URL, re-sent on every reload
type PreviewReadyEvent struct {
	PlaygroundID string    `json:"-"`
	URL          string    `json:"url"`
	Reloads      int       `json:"reloads"`
	ReadyAt      time.Time `json:"ready_at"`
}

func (e PreviewReadyEvent) Subject() string {
	return fmt.Sprintf("event.playground.%s.preview", e.PlaygroundID)
}
func (e PreviewReadyEvent) IsEvent()             {}
func (e PreviewReadyEvent) Timestamp() time.Time { return e.ReadyAt }
func (e PreviewReadyEvent) Validate() error {
	if e.URL == "" {
		return fmt.Errorf("url is required")
	}
	return validatePlaygroundID(e.PlaygroundID)
}

// ActiveFileEvent reports the active document
type ActiveFileEvent struct {
	PlaygroundID string    `json:"-"`
	Path         string    `json:"path"`
	ChangedAt    time.Time `json:"changed_at"`
}

func (e ActiveFileEvent) Subject() string {
	return fmt.Sprintf("event.playground.%s.active", e.PlaygroundID)
}
func (e ActiveFileEvent) IsEvent()             {}
func (e ActiveFileEvent) Timestamp() time.Time { return e.ChangedAt }
func (e ActiveFileEvent) Validate() error      { return validatePlaygroundID(e.PlaygroundID) }

// OutputEvent is one line printed by the playground's dev server
type OutputEvent struct {
	PlaygroundID string    `json:"-"`
	Line         string    `json:"line"`
	EmittedAt    time.Time `json:"emitted_at"`
}

func (e OutputEvent) Subject() string {
	return fmt.Sprintf("event.playground.%s.output", e.PlaygroundID)
}
func (e OutputEvent) IsEvent()             {}
func (e OutputEvent) Timestamp() time.Time { return e.EmittedAt }
func (e OutputEvent) Validate() error      { return validatePlaygroundID(e.PlaygroundID) }

// FileSyncedEvent reports a debounced write into the sandbox
type FileSyncedEvent struct {
	PlaygroundID string    `json:"-"`
	Path         string    `json:"path"`
	Error        string    `json:"error,omitempty"`
	SyncedAt     time.Time `json:"synced_at"`
}

func (e FileSyncedEvent) Subject() string {
	return fmt.Sprintf("event.playground.%s.synced", e.PlaygroundID)
}
func (e FileSyncedEvent) IsEvent()             {}
func (e FileSyncedEvent) Timestamp() time.Time { return e.SyncedAt }
func (e FileSyncedEvent) Validate() error      { return validatePlaygroundID(e.PlaygroundID) }

// =============================================================================
// SANDBOX DOMAIN
// =============================================================================

// ServerReadyEvent is emitted whenever a process in the sandbox binds a port
type ServerReadyEvent struct {
	Port      int       `json:"port"`
	URL       string    `json:"url"`
	ProcessID string    `json:"process_id,omitempty"`
	ReadyAt   time.Time `json:"ready_at"`
}

func (e ServerReadyEvent) Subject() string      { return ServerReadySubject }
func (e ServerReadyEvent) IsEvent()             {}
func (e ServerReadyEvent) Timestamp() time.Time { return e.ReadyAt }
func (e ServerReadyEvent) Validate() error {
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("port %d out of range", e.Port)
	}
	if e.URL == "" {
		return fmt.Errorf("url is required")
	}
	return nil
}

// ProcessExitEvent indicates a sandboxed process has terminated
type ProcessExitEvent struct {
	ProcessID string    `json:"-"`
	Command   string    `json:"command"`
	ExitCode  int       `json:"exit_code"`
	Error     string    `json:"error,omitempty"`
	ExitedAt  time.Time `json:"exited_at"`
}

func (e ProcessExitEvent) Subject() string {
	return fmt.Sprintf("event.sandbox.process.%s.exit", e.ProcessID)
}
func (e ProcessExitEvent) IsEvent()             {}
func (e ProcessExitEvent) Timestamp() time.Time { return e.ExitedAt }
func (e ProcessExitEvent) Validate() error      { return nil }
