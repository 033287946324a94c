package messages

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// =============================================================================
// CONSTRUCTORS - Easy message creation
// =============================================================================

// NewSelectFileCommand creates a file selection command
func NewSelectFileCommand(playgroundID, path string) *SelectFileCommand {
	return &SelectFileCommand{PlaygroundID: playgroundID, Path: path}
}

// NewEditFileCommand creates a content edit command
func NewEditFileCommand(playgroundID, path, text string) *EditFileCommand {
	return &EditFileCommand{PlaygroundID: playgroundID, Path: path, Text: text}
}

// NewPatchFilesCommand creates a merge patch command
func NewPatchFilesCommand(playgroundID string, patch []byte) *PatchFilesCommand {
	return &PatchFilesCommand{PlaygroundID: playgroundID, Patch: patch}
}

// NewResetCommand creates a reset command
func NewResetCommand(playgroundID string) *ResetCommand {
	return &ResetCommand{PlaygroundID: playgroundID}
}

// NewReloadCommand creates a reload command
func NewReloadCommand(playgroundID string) *ReloadCommand {
	return &ReloadCommand{PlaygroundID: playgroundID}
}

// NewStateChangedEvent creates a state transition event
func NewStateChangedEvent(playgroundID, state string) *StateChangedEvent {
	return &StateChangedEvent{
		PlaygroundID: playgroundID,
		State:        state,
		ChangedAt:    time.Now(),
	}
}

// WithError adds an error message to a state transition event
func (e *StateChangedEvent) WithError(err string) *StateChangedEvent {
	e.Error = err
	return e
}

// NewPreviewReadyEvent creates a preview event
func NewPreviewReadyEvent(playgroundID, url string, reloads int) *PreviewReadyEvent {
	return &PreviewReadyEvent{
		PlaygroundID: playgroundID,
		URL:          url,
		Reloads:      reloads,
		ReadyAt:      time.Now(),
	}
}

// NewActiveFileEvent creates an active document event
func NewActiveFileEvent(playgroundID, path string) *ActiveFileEvent {
	return &ActiveFileEvent{PlaygroundID: playgroundID, Path: path, ChangedAt: time.Now()}
}

// NewOutputEvent creates a dev server output event
func NewOutputEvent(playgroundID, line string) *OutputEvent {
	return &OutputEvent{PlaygroundID: playgroundID, Line: line, EmittedAt: time.Now()}
}

// NewFileSyncedEvent creates a sync result event
func NewFileSyncedEvent(playgroundID, path string) *FileSyncedEvent {
	return &FileSyncedEvent{PlaygroundID: playgroundID, Path: path, SyncedAt: time.Now()}
}

// WithError adds an error message to a sync result event
func (e *FileSyncedEvent) WithError(err string) *FileSyncedEvent {
	e.Error = err
	return e
}

// NewServerReadyEvent creates a server-ready event
func NewServerReadyEvent(port int, url string) *ServerReadyEvent {
	return &ServerReadyEvent{Port: port, URL: url, ReadyAt: time.Now()}
}

// WithProcess tags a server-ready event with the process that bound the port
func (e *ServerReadyEvent) WithProcess(id string) *ServerReadyEvent {
	e.ProcessID = id
	return e
}

// NewProcessExitEvent creates a process exit event
func NewProcessExitEvent(processID, command string, exitCode int) *ProcessExitEvent {
	return &ProcessExitEvent{
		ProcessID: processID,
		Command:   command,
		ExitCode:  exitCode,
		ExitedAt:  time.Now(),
	}
}

// WithError adds an error message to a process exit event
func (e *ProcessExitEvent) WithError(err string) *ProcessExitEvent {
	e.Error = err
	return e
}

// =============================================================================
// VALIDATION
// =============================================================================

var playgroundIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func validatePlaygroundID(id string) error {
	if id == "" {
		return fmt.Errorf("playground id is required")
	}
	if !playgroundIDRegex.MatchString(id) {
		return fmt.Errorf("playground id must contain only alphanumeric characters, hyphens, and underscores")
	}
	return nil
}

func validatePath(p string) error {
	if !strings.HasPrefix(p, "/") || len(p) < 2 {
		return fmt.Errorf("path must be absolute, got %q", p)
	}
	return nil
}

// =============================================================================
// PUBLISHER - Type-safe message publishing
// =============================================================================

type publishFunc func(ctx context.Context, subject string, data []byte) error

// Publisher provides type-safe message publishing
type Publisher struct {
	publish publishFunc
}

// NewPublisher creates a publisher that writes through JetStream, so messages
// land in the COMMAND and EVENT streams.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{publish: func(ctx context.Context, subject string, data []byte) error {
		_, err := js.Publish(ctx, subject, data)
		return err
	}}
}

// NewCorePublisher creates a publisher on plain NATS subjects (no persistence).
func NewCorePublisher(nc *nats.Conn) *Publisher {
	return &Publisher{publish: func(_ context.Context, subject string, data []byte) error {
		return nc.Publish(subject, data)
	}}
}

// PublishCommand publishes a command with validation
func (p *Publisher) PublishCommand(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("command validation failed: %w", err)
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	if err := p.publish(ctx, cmd.Subject(), data); err != nil {
		return fmt.Errorf("publish command: %w", err)
	}

	return nil
}

// PublishEvent publishes an event with validation
func (p *Publisher) PublishEvent(ctx context.Context, evt Event) error {
	if err := evt.Validate(); err != nil {
		return fmt.Errorf("event validation failed: %w", err)
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.publish(ctx, evt.Subject(), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

// =============================================================================
// UTILITIES - Helper functions for common operations
// =============================================================================

// SubjectPatterns returns all known subject patterns for renderer registration
func SubjectPatterns() map[string]string {
	return map[string]string{
		"playground.select":  SelectFileSubjectPattern,
		"playground.edit":    EditFileSubjectPattern,
		"playground.patch":   PatchFilesSubjectPattern,
		"playground.reset":   ResetSubjectPattern,
		"playground.reload":  ReloadSubjectPattern,
		"playground.state":   StateChangedSubjectPattern,
		"playground.preview": PreviewReadySubjectPattern,
		"playground.active":  ActiveFileSubjectPattern,
		"playground.output":  OutputSubjectPattern,
		"playground.synced":  FileSyncedSubjectPattern,
		"sandbox.ready":      ServerReadySubject,
		"sandbox.exit":       ProcessExitSubjectPattern,
	}
}

// ParseCommandSubject splits command.playground.<id>.<verb> into its id and verb.
func ParseCommandSubject(subj string) (id, verb string, ok bool) {
	parts := strings.Split(subj, ".")
	if len(parts) != 4 || parts[0] != "command" || parts[1] != "playground" {
		return "", "", false
	}
	return parts[2], parts[3], true
}

// DecodeCommand builds the typed command carried by a message on subj.
func DecodeCommand(subj string, data []byte) (Command, error) {
	id, verb, ok := ParseCommandSubject(subj)
	if !ok {
		return nil, fmt.Errorf("not a playground command subject: %s", subj)
	}

	var cmd Command
	switch verb {
	case "select":
		c := &SelectFileCommand{}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("decode select: %w", err)
		}
		c.PlaygroundID = id
		cmd = c
	case "edit":
		c := &EditFileCommand{}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("decode edit: %w", err)
		}
		c.PlaygroundID = id
		cmd = c
	case "patch":
		c := &PatchFilesCommand{}
		if err := json.Unmarshal(data, c); err != nil {
			return nil, fmt.Errorf("decode patch: %w", err)
		}
		c.PlaygroundID = id
		cmd = c
	case "reset":
		cmd = NewResetCommand(id)
	case "reload":
		cmd = NewReloadCommand(id)
	default:
		return nil, fmt.Errorf("unknown command type: %s", verb)
	}

	if err := cmd.Validate(); err != nil {
		return nil, fmt.Errorf("command validation failed: %w", err)
	}
	return cmd, nil
}
