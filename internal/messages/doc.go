// Package messages provides a centralized schema for all NATS messaging contracts.
//
// This package consolidates all message types, subject patterns, and validation logic
// into a single source of truth, providing:
//
//   - Typed commands and events with a Validate method each
//   - Fluent builders for ergonomic message creation
//   - Centralized subject constants to eliminate hardcoded strings
//   - A publisher that validates before it writes
//
// # Message Types
//
//   - Commands: requests issued by the browser for one playground
//     (SelectFileCommand, EditFileCommand, PatchFilesCommand, ResetCommand, ReloadCommand)
//   - Events: facts reported by a playground or by the shared sandbox runtime
//     (StateChangedEvent, PreviewReadyEvent, OutputEvent, ServerReadyEvent, ...)
//
// # Subject Patterns
//
// Pattern constants are used by consumers; each message computes its own
// concrete subject:
//
//	command.playground.<id>.select|edit|patch|reset|reload
//	event.playground.<id>.state|preview|active|output|synced
//	event.sandbox.server.ready
//	event.sandbox.process.<pid>.exit
//
// The server-ready subject carries no playground id: every process on the
// sandbox runtime reports there, and each playground picks out its own port.
//
// # Usage Example
//
//	publisher := messages.NewPublisher(js)
//	cmd := messages.NewEditFileCommand("project-0", "/src/pages/index.astro", text)
//	if err := publisher.PublishCommand(ctx, cmd); err != nil {
//	    return err
//	}
package messages
