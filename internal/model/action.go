package model

import (
	"fmt"
	"time"
)

type ActionType string

const (
	ActionTodo        ActionType = "TODO"
	ActionReplyDraft  ActionType = "REPLY_DRAFT"
	ActionCalendar    ActionType = "CALENDAR_INTENT"
	ActionNegotiation ActionType = "NEGOTIATION"
)

type ProposalStatus string

const (
	ProposalPending   ProposalStatus = "PENDING"
	ProposalApproved  ProposalStatus = "APPROVED"
	ProposalSnoozed   ProposalStatus = "SNOOZED"
	ProposalDismissed ProposalStatus = "DISMISSED"
	// ProposalSuperseded marks a pending proposal replaced by a newer
	// proposal run for the same thread.
	ProposalSuperseded ProposalStatus = "SUPERSEDED"
)

type TodoUrgency string

const (
	TodoToday    TodoUrgency = "TODAY"
	TodoTomorrow TodoUrgency = "TOMORROW"
	TodoSoon     TodoUrgency = "SOON"
)

type ReplyTone string

const (
	ToneFormal   ReplyTone = "formal"
	ToneFriendly ReplyTone = "friendly"
	ToneUrgent   ReplyTone = "urgent"
	ToneNeutral  ReplyTone = "neutral"
)

type CalendarIntent string

const (
	IntentAccept  CalendarIntent = "accept"
	IntentPropose CalendarIntent = "propose"
	IntentSuggest CalendarIntent = "suggest"
)

type NegotiationMove string

const (
	MoveCounter  NegotiationMove = "counter"
	MoveFallback NegotiationMove = "fallback"
	MoveHold     NegotiationMove = "hold"
)

type TodoPayload struct {
	TargetID    string      `json:"target_id"`
	Description string      `json:"description"`
	Urgency     TodoUrgency `json:"urgency"`
}

type ReplyDraftPayload struct {
	TargetID  string    `json:"target_id"`
	DraftText string    `json:"draft_text"`
	Tone      ReplyTone `json:"tone"`
}

type CalendarIntentPayload struct {
	TargetID        string         `json:"target_id"`
	Intent          CalendarIntent `json:"intent"`
	ProposedTime    *time.Time     `json:"proposed_time,omitempty"`
	DurationMinutes int            `json:"duration_minutes,omitempty"`
}

type NegotiationPayload struct {
	TargetID   string          `json:"target_id"`
	Suggestion NegotiationMove `json:"suggestion"`
	Details    string          `json:"details"`
}

// ActionPayload is the tagged union of per-type payloads. Exactly one
// branch is set, matching the Type field of the owning candidate.
type ActionPayload struct {
	Todo        *TodoPayload           `json:"todo,omitempty"`
	ReplyDraft  *ReplyDraftPayload     `json:"reply_draft,omitempty"`
	Calendar    *CalendarIntentPayload `json:"calendar,omitempty"`
	Negotiation *NegotiationPayload    `json:"negotiation,omitempty"`
}

// TargetID returns the target entity of whichever branch is set, or ""
// when no branch carries a resolvable target.
func (p ActionPayload) TargetID() string {
	switch {
	case p.Todo != nil:
		return p.Todo.TargetID
	case p.ReplyDraft != nil:
		return p.ReplyDraft.TargetID
	case p.Calendar != nil:
		return p.Calendar.TargetID
	case p.Negotiation != nil:
		return p.Negotiation.TargetID
	}
	return ""
}

// Validate checks the payload branch matches the declared type and
// carries its required fields. Candidates are validated at
// construction, before scoring.
func (p ActionPayload) Validate(t ActionType) error {
	switch t {
	case ActionTodo:
		if p.Todo == nil || p.Todo.Description == "" {
			return fmt.Errorf("todo payload requires a description")
		}
	case ActionReplyDraft:
		if p.ReplyDraft == nil || p.ReplyDraft.DraftText == "" {
			return fmt.Errorf("reply draft payload requires draft text")
		}
	case ActionCalendar:
		if p.Calendar == nil || p.Calendar.Intent == "" {
			return fmt.Errorf("calendar payload requires an intent")
		}
	case ActionNegotiation:
		if p.Negotiation == nil || p.Negotiation.Suggestion == "" {
			return fmt.Errorf("negotiation payload requires a suggestion")
		}
	default:
		return fmt.Errorf("unknown action type %q", t)
	}
	return nil
}

// ScoreFacts are the extracted inputs to the priority formula. Urgency
// and Pain are clamped to 0..10; DollarValue is non-negative;
// Immovable adds a flat bonus that dominates the multiplicative terms.
type ScoreFacts struct {
	DollarValue float64 `json:"dollar_value"`
	Urgency     float64 `json:"urgency"`
	PainFactor  float64 `json:"pain_factor"`
	DaysIgnored int     `json:"days_ignored"`
	Immovable   bool    `json:"immovable"`
}

// ScoreBreakdown records the components alongside the final score so
// rankings are reproducible from stored rows.
type ScoreBreakdown struct {
	Priority float64 `json:"priority"`
	Impact   float64 `json:"impact"`
	Personal float64 `json:"personal"`
	Bonus    float64 `json:"bonus"`
}

// ActionProposal is one scored, ranked candidate follow-up.
type ActionProposal struct {
	ID           int64          `json:"id"`
	ThreadID     int64          `json:"thread_id"`
	Type         ActionType     `json:"type"`
	Payload      ActionPayload  `json:"payload"`
	Rationale    string         `json:"rationale"`
	Score        ScoreBreakdown `json:"score"`
	Status       ProposalStatus `json:"status"`
	SnoozedUntil *time.Time     `json:"snoozed_until,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Visible reports whether the proposal should appear in a ranked list
// at the given instant: dismissed, approved, and superseded rows are
// excluded, snoozed rows return once their snooze has elapsed.
func (p ActionProposal) Visible(now time.Time) bool {
	switch p.Status {
	case ProposalDismissed, ProposalApproved, ProposalSuperseded:
		return false
	case ProposalSnoozed:
		return p.SnoozedUntil == nil || !now.Before(*p.SnoozedUntil)
	}
	return true
}
