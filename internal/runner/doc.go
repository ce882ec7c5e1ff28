// Package runner coordinates generation sessions against an engine bridge.
// It is structured into small files by concern:
//
//   - runner.go: Runner type, LoadModel, IsLoaded, Unload.
//   - config.go: Config and NewWithConfig defaults.
//   - types.go: Handle and session state types, Callbacks.
//   - errors.go: error taxonomy and helpers (IsNotLoaded, IsConcurrentGeneration, ...).
//   - generate.go: Generate and Wait; the single-flight generation protocol.
//   - session.go: per-session event handling and exactly-once teardown.
//   - subscriptions.go: session id -> event subscriptions, removed as a unit.
//   - lifecycle.go: lifecycle events published to an EventPublisher.
//   - metrics.go: Prometheus collectors.
//   - status.go: Status/Snapshot reporting helpers.
//
// A Runner owns per-handle state; the bridge's event channel is shared by
// all of its handles. At most one generation session is active per Runner,
// so events are never attributed to the wrong session. A second concurrent
// Generate, on the same handle or another, is rejected, never queued.
package runner
