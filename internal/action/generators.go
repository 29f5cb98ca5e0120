package action

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"threadline.app/agent/internal/model"
)

// Candidate is one un-scored proposal produced by a generator.
type Candidate struct {
	Type      model.ActionType
	Payload   model.ActionPayload
	Rationale string
}

// Generator derives candidates from an assembled context. Generators
// are pure: they read the context and return candidates, nothing else.
// A generator that cannot apply returns an empty slice.
type Generator func(cc *ConversationContext) []Candidate

// DefaultGenerators is the production rule set, order-independent.
func DefaultGenerators() []Generator {
	return []Generator{
		GenerateReplyDraft,
		GenerateTodo,
		GenerateCalendarIntent,
		GenerateNegotiation,
	}
}

var questionRe = regexp.MustCompile(`\?`)

// GenerateReplyDraft proposes answering when the counterparty spoke
// last and is waiting on us.
func GenerateReplyDraft(cc *ConversationContext) []Candidate {
	latest := cc.Latest()
	if latest == nil || latest.Direction != model.DirectionInbound {
		return nil
	}

	tone := model.ToneNeutral
	if cc.DaysIgnored() >= 2 {
		tone = model.ToneUrgent
	}

	rationale := fmt.Sprintf("%s is waiting on a reply", latest.From)
	if questionRe.MatchString(latest.CleanedText) {
		rationale = fmt.Sprintf("%s asked a direct question that has not been answered", latest.From)
	}

	return []Candidate{{
		Type: model.ActionReplyDraft,
		Payload: model.ActionPayload{ReplyDraft: &model.ReplyDraftPayload{
			TargetID:  latest.ExternalID,
			DraftText: draftOpening(latest),
			Tone:      tone,
		}},
		Rationale: rationale,
	}}
}

// GenerateTodo proposes a task when the latest inbound message carries
// an explicit request.
func GenerateTodo(cc *ConversationContext) []Candidate {
	latest := cc.Latest()
	if latest == nil || latest.Direction != model.DirectionInbound {
		return nil
	}

	request, ok := detectRequest(latest.CleanedText)
	if !ok {
		return nil
	}

	urgency := model.TodoSoon
	switch {
	case cc.DaysIgnored() >= 2:
		urgency = model.TodoToday
	case cc.DaysIgnored() >= 1:
		urgency = model.TodoTomorrow
	}

	return []Candidate{{
		Type: model.ActionTodo,
		Payload: model.ActionPayload{Todo: &model.TodoPayload{
			TargetID:    latest.ExternalID,
			Description: request,
			Urgency:     urgency,
		}},
		Rationale: fmt.Sprintf("%s asked for something concrete", latest.From),
	}}
}

var timeHintRe = regexp.MustCompile(`(?i)\b(meet|meeting|call|schedule|calendar|appointment|monday|tuesday|wednesday|thursday|friday|tomorrow|next week|\d{1,2}(:\d{2})?\s?(am|pm))\b`)

// GenerateCalendarIntent proposes scheduling when the conversation
// mentions meeting or time coordination.
func GenerateCalendarIntent(cc *ConversationContext) []Candidate {
	latest := cc.Latest()
	if latest == nil || latest.Direction != model.DirectionInbound {
		return nil
	}
	if !timeHintRe.MatchString(latest.CleanedText) {
		return nil
	}

	intent := model.IntentSuggest
	if strings.Contains(strings.ToLower(latest.CleanedText), "does") ||
		questionRe.MatchString(latest.CleanedText) {
		intent = model.IntentPropose
	}

	return []Candidate{{
		Type: model.ActionCalendar,
		Payload: model.ActionPayload{Calendar: &model.CalendarIntentPayload{
			TargetID:        latest.ExternalID,
			Intent:          intent,
			DurationMinutes: 30,
		}},
		Rationale: "the conversation is trying to coordinate a time",
	}}
}

var negotiationRe = regexp.MustCompile(`(?i)\b(price|quote|offer|discount|rate|budget|invoice|contract|terms|counter)\b`)

// GenerateNegotiation proposes a negotiation move when the thread is
// in a negotiation state or money terms are on the table.
func GenerateNegotiation(cc *ConversationContext) []Candidate {
	latest := cc.Latest()
	if latest == nil || latest.Direction != model.DirectionInbound {
		return nil
	}
	inNegotiation := cc.Thread.State == model.ThreadStateNegotiation ||
		negotiationRe.MatchString(latest.CleanedText)
	if !inNegotiation {
		return nil
	}

	move := model.MoveHold
	lower := strings.ToLower(latest.CleanedText)
	switch {
	case strings.Contains(lower, "final") || strings.Contains(lower, "last offer"):
		move = model.MoveFallback
	case negotiationRe.MatchString(latest.CleanedText):
		move = model.MoveCounter
	}

	return []Candidate{{
		Type: model.ActionNegotiation,
		Payload: model.ActionPayload{Negotiation: &model.NegotiationPayload{
			TargetID:   latest.ExternalID,
			Suggestion: move,
			Details:    "terms are in play in the latest message",
		}},
		Rationale: "money or contract terms are being negotiated",
	}}
}

var requestRe = regexp.MustCompile(`(?im)^.*\b(can you|could you|please|would you|need you to|send me|let me know)\b.*$`)

// detectRequest pulls the first request-like line out of a body.
func detectRequest(body string) (string, bool) {
	line := strings.TrimSpace(requestRe.FindString(body))
	if line == "" {
		return "", false
	}
	if len(line) > 200 {
		line = line[:200]
	}
	return line, true
}

func draftOpening(latest *model.Message) string {
	name := latest.From
	if at := strings.IndexByte(name, '@'); at > 0 {
		name = name[:at]
	}
	return fmt.Sprintf("Hi %s,\n\nThanks for your message. ", name)
}

// runGenerators executes every generator with panic isolation so one
// failing rule never blocks the others.
func runGenerators(cc *ConversationContext, generators []Generator) []Candidate {
	var out []Candidate
	for _, g := range generators {
		out = append(out, runOne(cc, g)...)
	}
	return out
}

func runOne(cc *ConversationContext, g Generator) (candidates []Candidate) {
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("generator panicked, skipping its candidates",
				"thread_id", cc.Thread.ID, "panic", r)
			candidates = nil
		}
	}()
	return g(cc)
}
