// Package scan implements the gate-scan processor: the single entry point
// through which a presented QR code becomes a committed entry or exit
// transition.
package scan

import (
	"time"

	"passage/internal/visit/models"
	id "passage/pkg/domain"
)

// Kind is the scan direction requested by the gate client.
type Kind string

const (
	KindAuto  Kind = "auto"
	KindEntry Kind = "entry"
	KindExit  Kind = "exit"
)

// Outcome is the typed result of a scan. Rejections are first-class values
// handed back to the officer's device, never errors used for control flow;
// the officer decides whether to admit manually.
type Outcome string

const (
	OutcomeAdmitted         Outcome = "admitted"
	OutcomeReleased         Outcome = "released"
	OutcomeCodeNotFound     Outcome = "code_not_found"
	OutcomeCodeExpired      Outcome = "code_expired"
	OutcomeNotActionable    Outcome = "visit_not_actionable"
	OutcomeAlreadyEntered   Outcome = "already_entered"
	OutcomeAlreadyCompleted Outcome = "already_completed"
	OutcomeExitWithoutEntry Outcome = "exit_without_entry"
	OutcomeVisitorBanned    Outcome = "visitor_banned"
	OutcomeTryAgain         Outcome = "try_again"
)

// Transitioned reports whether the scan committed a state change.
func (o Outcome) Transitioned() bool {
	return o == OutcomeAdmitted || o == OutcomeReleased
}

// Idempotent reports whether the outcome is a duplicate-scan no-op rather
// than a failure.
func (o Outcome) Idempotent() bool {
	return o == OutcomeAlreadyEntered || o == OutcomeAlreadyCompleted
}

// Action tells the gate client what the scan actually did.
type Action string

const (
	ActionEntryRecorded Action = "entry_recorded"
	ActionExitRecorded  Action = "exit_recorded"
	ActionNone          Action = "none"
)

func resultingAction(o Outcome) Action {
	switch o {
	case OutcomeAdmitted:
		return ActionEntryRecorded
	case OutcomeReleased:
		return ActionExitRecorded
	}
	return ActionNone
}

// Request is what the gate client submits.
type Request struct {
	Code         string `json:"code"`
	Kind         Kind   `json:"scan_kind"`
	OfficerID    id.OfficerID `json:"officer_id"`
	Gate         string `json:"gate_label"`
	LocationHint string `json:"location_hint,omitempty"`
}

// actorID renders the officer for audit events, empty when unknown.
func (r Request) actorID() string {
	if r.OfficerID.IsZero() {
		return ""
	}
	return r.OfficerID.String()
}

// Result is what the gate client receives: whether to open the door, a
// message for the officer, and the visit snapshot for display.
type Result struct {
	Success   bool          `json:"success"`
	Outcome   Outcome       `json:"outcome"`
	Action    Action        `json:"resulting_action"`
	Message   string        `json:"message"`
	Visit     *models.Visit `json:"visit,omitempty"`
	ScannedAt time.Time     `json:"scanned_at"`
}

func message(o Outcome) string {
	switch o {
	case OutcomeAdmitted:
		return "entry recorded, admit visitor"
	case OutcomeReleased:
		return "exit recorded, visit completed"
	case OutcomeCodeNotFound:
		return "code not recognized, request re-issuance or manual override"
	case OutcomeCodeExpired:
		return "code expired, request re-issuance"
	case OutcomeNotActionable:
		return "visit is no longer actionable"
	case OutcomeAlreadyEntered:
		return "entry was already recorded"
	case OutcomeAlreadyCompleted:
		return "visit is already completed"
	case OutcomeExitWithoutEntry:
		return "no entry on record, use manual judgment"
	case OutcomeVisitorBanned:
		return "a visitor on this pass is banned, do not admit"
	case OutcomeTryAgain:
		return "busy, scan again"
	}
	return string(o)
}
