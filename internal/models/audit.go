package models

import "time"

// AuditStatus is the state of a step as seen by the audit trail.
type AuditStatus string

const (
	AuditStatusPending AuditStatus = "PENDING"
	AuditStatusSuccess AuditStatus = "SUCCESS"
	AuditStatusFailed  AuditStatus = "FAILED"
	AuditStatusBlocked AuditStatus = "BLOCKED"
)

// AuditActor tags every event emitted by this service.
const AuditActor = "payment-engine"

// AuditEvent is one append-only entry in the compliance trail. Two events
// bracket every step (PENDING before the call, SUCCESS/FAILED/BLOCKED after)
// and events of one run are emitted in strict step order.
type AuditEvent struct {
	RunID      string      `json:"run_id"`
	Variant    Variant     `json:"variant"`
	Step       Step        `json:"step"`
	Status     AuditStatus `json:"status"`
	DurationMs int64       `json:"duration_ms"`
	Detail     string      `json:"detail,omitempty"`
	Actor      string      `json:"actor"`
	Timestamp  time.Time   `json:"timestamp"`
}
