package ingest

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"threadline.app/agent/common/retry"
	"threadline.app/agent/internal/mail"
)

var (
	htmlTagRe    = regexp.MustCompile(`(?s)<(script|style)[^>]*>.*?</(script|style)>`)
	htmlStripRe  = regexp.MustCompile(`<[^>]+>`)
	whitespaceRe = regexp.MustCompile(`[ \t]+`)
	blankLinesRe = regexp.MustCompile(`\n{3,}`)
	quotedLineRe = regexp.MustCompile(`(?m)^>.*$`)
	replyMarkRe  = regexp.MustCompile(`(?mi)^On .{5,100} wrote:\s*$`)
	addrRe       = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
)

// NormalizedMessage is the provider-independent shape the rest of the
// pipeline consumes.
type NormalizedMessage struct {
	ExternalID       string
	ExternalThreadID string
	UniversalID      *string
	From             string
	To               []string
	Subject          string
	RawText          string
	CleanedText      string
	OccurredAt       time.Time
	Headers          []mail.Header
}

// Normalizer fetches full messages and reduces them to normalized form.
type Normalizer struct {
	transport mail.Transport
}

func NewNormalizer(transport mail.Transport) *Normalizer {
	return &Normalizer{transport: transport}
}

// Normalize fetches one message by provider id and normalizes it.
func (n *Normalizer) Normalize(ctx context.Context, externalID string) (*NormalizedMessage, error) {
	pm, err := retry.Do(ctx, "mail.get", func(ctx context.Context) (*mail.ProviderMessage, error) {
		return n.transport.Get(ctx, externalID)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch message %s: %w", externalID, err)
	}

	raw := extractText(pm.Parts)

	msg := &NormalizedMessage{
		ExternalID:       pm.ID,
		ExternalThreadID: pm.ThreadID,
		From:             normalizeAddr(firstAddress(pm.Header("From"))),
		To:               allAddresses(pm.Header("To")),
		Subject:          strings.TrimSpace(pm.Header("Subject")),
		RawText:          raw,
		CleanedText:      cleanBody(raw),
		OccurredAt:       occurredAt(pm),
		Headers:          pm.Headers,
	}

	if mid := strings.TrimSpace(pm.Header("Message-Id")); mid != "" {
		uid := mail.ProviderGmail + ":" + mid
		msg.UniversalID = &uid
	}

	return msg, nil
}

// extractText prefers text/plain parts and falls back to tag-stripped
// text/html when no plain part carries content.
func extractText(parts []mail.BodyPart) string {
	var plain, html strings.Builder
	for _, p := range parts {
		switch {
		case strings.HasPrefix(p.MimeType, "text/plain"):
			plain.Write(p.Data)
		case strings.HasPrefix(p.MimeType, "text/html"):
			html.Write(p.Data)
		}
	}
	if s := strings.TrimSpace(plain.String()); s != "" {
		return s
	}
	return strings.TrimSpace(stripHTML(html.String()))
}

func stripHTML(s string) string {
	s = htmlTagRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "<br>", "\n")
	s = strings.ReplaceAll(s, "<br/>", "\n")
	s = strings.ReplaceAll(s, "</p>", "\n")
	s = htmlStripRe.ReplaceAllString(s, " ")
	s = strings.ReplaceAll(s, "&nbsp;", " ")
	s = strings.ReplaceAll(s, "&amp;", "&")
	s = strings.ReplaceAll(s, "&lt;", "<")
	s = strings.ReplaceAll(s, "&gt;", ">")
	s = strings.ReplaceAll(s, "&quot;", `"`)
	s = strings.ReplaceAll(s, "&#39;", "'")
	return s
}

// cleanBody strips quoted reply chains and signatures so embeddings
// and prompts see only the new content of the message.
func cleanBody(raw string) string {
	s := raw
	if loc := replyMarkRe.FindStringIndex(s); loc != nil {
		s = s[:loc[0]]
	}
	s = quotedLineRe.ReplaceAllString(s, "")
	if idx := strings.Index(s, "\n-- \n"); idx >= 0 {
		s = s[:idx]
	}
	s = whitespaceRe.ReplaceAllString(s, " ")
	s = blankLinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// occurredAt prefers the provider's internal receive time and falls
// back to the Date header.
func occurredAt(pm *mail.ProviderMessage) time.Time {
	if pm.InternalDate > 0 {
		return time.UnixMilli(pm.InternalDate).UTC()
	}
	if d := pm.Header("Date"); d != "" {
		for _, layout := range []string{time.RFC1123Z, time.RFC1123, time.RFC822Z} {
			if t, err := time.Parse(layout, d); err == nil {
				return t.UTC()
			}
		}
	}
	return time.Now().UTC()
}

func firstAddress(header string) string {
	if m := addrRe.FindString(header); m != "" {
		return m
	}
	return strings.TrimSpace(header)
}

func allAddresses(header string) []string {
	matches := addrRe.FindAllString(header, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, normalizeAddr(m))
	}
	return out
}

// normalizeAddr lowercases an address so counterparty identity is
// case-insensitive.
func normalizeAddr(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
