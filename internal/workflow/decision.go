// Package workflow implements the review lifecycle of time entries and time
// sheets: who may drive each transition, and which field writes a transition
// produces. Every check is a pure function over a freshly read snapshot;
// denial is an ordinary outcome carrying a display-ready reason, never an
// error. Callers persist the resulting changes and are responsible for
// serializing concurrent transitions per entity.
package workflow

// Decision is the outcome of a permission or workflow check. Callers branch
// on Allowed only; Reason is for display.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// EntryStatus is the review state of a single time entry.
type EntryStatus string

const (
	EntryPending    EntryStatus = "pending"
	EntryQuestioned EntryStatus = "questioned"
	EntryApproved   EntryStatus = "approved"
)

// SheetStatus is the submission lifecycle state of a time sheet.
type SheetStatus string

const (
	SheetDraft     SheetStatus = "draft"
	SheetSubmitted SheetStatus = "submitted"
	SheetApproved  SheetStatus = "approved"
	SheetRejected  SheetStatus = "rejected"
)
