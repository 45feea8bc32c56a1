// Package audit records who did what at which gate. Scan denials are
// security-relevant and are kept alongside lifecycle events.
package audit

import (
	"time"

	id "passage/pkg/domain"
)

// Category groups events for querying.
type Category string

const (
	CategoryLifecycle Category = "lifecycle"
	CategoryScan      Category = "scan"
	CategorySecurity  Category = "security"
	CategoryAdmin     Category = "admin"
)

// Action names for the events the core emits.
const (
	ActionVisitCreated   = "visit_created"
	ActionVisitCancelled = "visit_cancelled"
	ActionVisitExpired   = "visit_expired"
	ActionCodeReissued   = "code_reissued"
	ActionEntryRecorded  = "entry_recorded"
	ActionExitRecorded   = "exit_recorded"
	ActionScanDenied     = "scan_denied"
	ActionBanCreated     = "ban_created"
	ActionBanLifted      = "ban_lifted"
	ActionUserOnboarded  = "user_onboarded"
	ActionUserOffboarded = "user_offboarded"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Category   Category          `json:"category"`
	Action     string            `json:"action"`
	ActorID    string            `json:"actor_id,omitempty"`
	VisitID    *id.VisitID       `json:"visit_id,omitempty"`
	BuildingID *id.BuildingID    `json:"building_id,omitempty"`
	Gate       string            `json:"gate,omitempty"`
	Device     string            `json:"device,omitempty"`
	ClientIP   string            `json:"client_ip,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
}
