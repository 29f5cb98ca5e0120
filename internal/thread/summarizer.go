package thread

import (
	"context"
	"fmt"
	"strings"

	"threadline.app/agent/common/llm"
	"threadline.app/agent/common/retry"
	"threadline.app/agent/core/config"
	"threadline.app/agent/internal/model"
	"threadline.app/agent/internal/store"
)

const summarySystemPrompt = `You summarize business email conversations for a busy operator.
Given the recent messages of one conversation thread, produce a compact digest:
- context: one or two sentences on what this conversation is about
- current_state: where things stand right now
- next_steps: concrete actions that are expected or pending, if any
- risks: anything that could go wrong or is already slipping, if any
- last_touch: who spoke last and what they said, in one sentence
Be factual. Never invent commitments that are not in the messages.`

type summaryOutput struct {
	Context      string   `json:"context" jsonschema_description:"What the conversation is about"`
	CurrentState string   `json:"current_state" jsonschema_description:"Where things stand now"`
	NextSteps    []string `json:"next_steps" jsonschema_description:"Expected or pending actions"`
	Risks        []string `json:"risks" jsonschema_description:"Things going wrong or slipping"`
	LastTouch    string   `json:"last_touch" jsonschema_description:"Who spoke last and what they said"`
}

var summarySchema = llm.GenerateSchema[summaryOutput]()

// LLMSummarizer regenerates a thread's rolling summary from its most
// recent messages.
type LLMSummarizer struct {
	cfg    config.IngestConfig
	client llm.Client
	stores store.Provider
}

func NewLLMSummarizer(cfg config.IngestConfig, client llm.Client, stores store.Provider) *LLMSummarizer {
	return &LLMSummarizer{cfg: cfg, client: client, stores: stores}
}

// Refresh rebuilds and persists the summary for one thread.
func (s *LLMSummarizer) Refresh(ctx context.Context, userID, threadID int64) error {
	messages, err := s.stores.Messages().ListByThread(ctx, threadID, int32(s.cfg.SummaryWindow))
	if err != nil {
		return fmt.Errorf("list thread messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	var out summaryOutput
	_, err = retry.Do(ctx, "llm.summarize", func(ctx context.Context) (*llm.Response, error) {
		return s.client.Chat(ctx, llm.Request{
			SystemPrompt: summarySystemPrompt,
			UserPrompt:   renderTranscript(messages),
			SchemaName:   "thread_summary",
			Schema:       summarySchema,
			MaxTokens:    1024,
			Temperature:  llm.Temp(0.2),
		}, &out)
	})
	if err != nil {
		return fmt.Errorf("summarize thread: %w", err)
	}

	summary := &model.ThreadSummary{
		Context:      out.Context,
		CurrentState: out.CurrentState,
		NextSteps:    out.NextSteps,
		Risks:        out.Risks,
		LastTouch:    out.LastTouch,
	}
	if err := s.stores.Threads().SetSummary(ctx, threadID, summary); err != nil {
		return fmt.Errorf("persist summary: %w", err)
	}
	return nil
}

// renderTranscript lays the window out oldest first so the model reads
// the conversation in order. Messages arrive newest first from the
// store.
func renderTranscript(messages []model.Message) string {
	var b strings.Builder
	if subj := messages[len(messages)-1].Subject; subj != "" {
		fmt.Fprintf(&b, "Subject: %s\n\n", subj)
	}
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		speaker := m.From
		if m.Direction == model.DirectionOutbound {
			speaker = "me"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", m.OccurredAt.Format("2006-01-02 15:04"), speaker, m.CleanedText)
	}
	return strings.TrimSpace(b.String())
}
