// Package notification implements the deduplicated notification dispatcher.
// Each fan-out (internal operations, organization members) is guarded by an
// atomic per-lead lock in the lead store, so redelivered events notify at
// most once. Channel sends inside a claimed fan-out are best-effort: a
// failed recipient is logged and counted, never retried through the queue.
package notification
