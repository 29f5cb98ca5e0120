package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"threadline.app/agent/core/config"
)

// GmailTransport implements Transport against the Gmail API for one
// user's mailbox.
type GmailTransport struct {
	svc *gmail.Service
}

// NewGmailTransport builds a transport from the user's stored OAuth
// token. The token is refreshed transparently by the oauth2 client.
func NewGmailTransport(ctx context.Context, cfg config.GmailConfig, tokenJSON []byte) (*GmailTransport, error) {
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("parsing oauth token: %w", err)
	}

	oauthCfg := &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  "https://accounts.google.com/o/oauth2/auth",
			TokenURL: "https://oauth2.googleapis.com/token",
		},
		Scopes: []string{gmail.GmailModifyScope},
	}

	svc, err := gmail.NewService(ctx, option.WithTokenSource(oauthCfg.TokenSource(ctx, &token)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &GmailTransport{svc: svc}, nil
}

func (t *GmailTransport) ListUnread(ctx context.Context, pageSize int32) ([]string, string, error) {
	resp, err := t.svc.Users.Messages.List("me").
		LabelIds("INBOX").
		Q("in:inbox is:unread").
		MaxResults(int64(pageSize)).
		Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("listing unread messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}

	profile, err := t.svc.Users.GetProfile("me").Context(ctx).Do()
	if err != nil {
		return nil, "", fmt.Errorf("fetching profile: %w", err)
	}

	return ids, strconv.FormatUint(profile.HistoryId, 10), nil
}

func (t *GmailTransport) ListHistory(ctx context.Context, cursor string) ([]HistoryEvent, error) {
	start, err := strconv.ParseUint(cursor, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parsing cursor %q: %w", cursor, err)
	}

	var (
		events    []HistoryEvent
		pageToken string
	)
	for {
		call := t.svc.Users.History.List("me").
			StartHistoryId(start).
			HistoryTypes("messageAdded").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("listing history: %w", err)
		}

		for _, h := range resp.History {
			for _, added := range h.MessagesAdded {
				if added.Message == nil {
					continue
				}
				events = append(events, HistoryEvent{
					EntryID:   h.Id,
					MessageID: added.Message.Id,
				})
			}
		}

		if resp.NextPageToken == "" {
			return events, nil
		}
		pageToken = resp.NextPageToken
	}
}

func (t *GmailTransport) ListSent(ctx context.Context, pageSize int32) ([]string, error) {
	resp, err := t.svc.Users.Messages.List("me").
		LabelIds("SENT").
		MaxResults(int64(pageSize)).
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("listing sent messages: %w", err)
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func (t *GmailTransport) Get(ctx context.Context, msgID string) (*ProviderMessage, error) {
	msg, err := t.svc.Users.Messages.Get("me", msgID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", msgID, err)
	}

	out := &ProviderMessage{
		ID:           msg.Id,
		ThreadID:     msg.ThreadId,
		InternalDate: msg.InternalDate,
	}

	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			out.Headers = append(out.Headers, Header{Name: h.Name, Value: h.Value})
		}
		collectParts(msg.Payload, out)
	}

	return out, nil
}

func (t *GmailTransport) MarkConsumed(ctx context.Context, msgID string) error {
	_, err := t.svc.Users.Messages.Modify("me", msgID, &gmail.ModifyMessageRequest{
		RemoveLabelIds: []string{"UNREAD"},
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("clearing unread flag on %s: %w", msgID, err)
	}
	return nil
}

// collectParts flattens the MIME tree, decoding body data as it goes.
func collectParts(part *gmail.MessagePart, out *ProviderMessage) {
	if part == nil {
		return
	}
	if part.Body != nil && part.Body.Data != "" {
		// Gmail emits unpadded URL-safe base64; tolerate padded too.
		data, err := base64.RawURLEncoding.DecodeString(part.Body.Data)
		if err != nil {
			data, err = base64.URLEncoding.DecodeString(part.Body.Data)
		}
		if err == nil {
			out.Parts = append(out.Parts, BodyPart{MimeType: part.MimeType, Data: data})
		}
	}
	for _, child := range part.Parts {
		collectParts(child, out)
	}
}
