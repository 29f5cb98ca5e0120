package action

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"threadline.app/agent/common/llm"
	"threadline.app/agent/common/retry"
	"threadline.app/agent/internal/model"
)

const factsSystemPrompt = `You extract prioritization facts from a business email conversation.
Given the conversation and a proposed follow-up action, estimate:
- dollar_value: money at stake in this conversation, in whole currency units; 0 when none is mentioned or implied
- urgency: 0-10, how time-sensitive the follow-up is (10 = must happen today)
- pain_factor: 0-10, how much friction or damage grows while this sits unanswered
- immovable: true only for fixed, non-negotiable dates such as a contract deadline or a scheduled event
Base estimates strictly on the conversation. Do not inflate.`

type factsOutput struct {
	DollarValue float64 `json:"dollar_value" jsonschema_description:"Money at stake, 0 when none"`
	Urgency     float64 `json:"urgency" jsonschema_description:"Time sensitivity 0-10"`
	PainFactor  float64 `json:"pain_factor" jsonschema_description:"Cost of inaction 0-10"`
	Immovable   bool    `json:"immovable" jsonschema_description:"True for fixed non-negotiable dates"`
}

var factsSchema = llm.GenerateSchema[factsOutput]()

// neutralFacts is the fallback when extraction fails: mid-scale
// urgency and pain, no monetary term, no bonus. The candidate still
// competes on days-ignored rather than being dropped or maximally
// boosted.
func neutralFacts(daysIgnored int) model.ScoreFacts {
	return model.ScoreFacts{
		DollarValue: 0,
		Urgency:     5,
		PainFactor:  5,
		DaysIgnored: daysIgnored,
		Immovable:   false,
	}
}

// FactExtractor asks the model for scoring facts per candidate.
type FactExtractor struct {
	client llm.Client
}

func NewFactExtractor(client llm.Client) *FactExtractor {
	return &FactExtractor{client: client}
}

// Extract returns scoring facts for one candidate. Extraction failures
// degrade to neutral defaults with a logged diagnostic; they never
// fail the proposal run.
func (e *FactExtractor) Extract(ctx context.Context, cc *ConversationContext, candidate Candidate) model.ScoreFacts {
	days := cc.DaysIgnored()

	var out factsOutput
	_, err := retry.Do(ctx, "llm.extract_facts", func(ctx context.Context) (*llm.Response, error) {
		return e.client.Chat(ctx, llm.Request{
			SystemPrompt: factsSystemPrompt,
			UserPrompt:   factsPrompt(cc, candidate),
			SchemaName:   "scoring_facts",
			Schema:       factsSchema,
			MaxTokens:    256,
			Temperature:  llm.Temp(0),
		}, &out)
	})
	if err != nil {
		slog.WarnContext(ctx, "fact extraction failed, using neutral defaults",
			"thread_id", cc.Thread.ID, "action_type", candidate.Type, "error", err)
		return neutralFacts(days)
	}

	return model.ScoreFacts{
		DollarValue: out.DollarValue,
		Urgency:     out.Urgency,
		PainFactor:  out.PainFactor,
		DaysIgnored: days,
		Immovable:   out.Immovable,
	}
}

func factsPrompt(cc *ConversationContext, candidate Candidate) string {
	var b strings.Builder
	if cc.Thread.Summary != nil {
		fmt.Fprintf(&b, "Conversation summary: %s\nCurrent state: %s\n\n",
			cc.Thread.Summary.Context, cc.Thread.Summary.CurrentState)
	}
	b.WriteString("Recent messages:\n")
	for _, m := range cc.Messages {
		speaker := m.From
		if m.Direction == model.DirectionOutbound {
			speaker = "me"
		}
		fmt.Fprintf(&b, "%s: %s\n", speaker, m.CleanedText)
	}
	fmt.Fprintf(&b, "\nProposed follow-up (%s): %s\n", candidate.Type, candidate.Rationale)
	return b.String()
}
