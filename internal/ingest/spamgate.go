package ingest

import "strings"

const minBodyLength = 20

// automatedSenderPrefixes mark sender local-parts that never expect a
// human reply.
var automatedSenderPrefixes = []string{
	"no-reply",
	"noreply",
	"do-not-reply",
	"donotreply",
	"notifications",
	"mailer-daemon",
	"bounce",
}

// IsAutomated reports whether a normalized message is machine-generated
// or too thin to act on. Such messages are skipped before any model
// call is spent on them.
func IsAutomated(msg *NormalizedMessage) (bool, string) {
	for _, h := range msg.Headers {
		switch strings.ToLower(h.Name) {
		case "auto-submitted":
			if !strings.EqualFold(strings.TrimSpace(h.Value), "no") {
				return true, "auto-submitted header"
			}
		case "list-unsubscribe":
			return true, "list-unsubscribe header"
		case "precedence":
			v := strings.ToLower(strings.TrimSpace(h.Value))
			if v == "bulk" || v == "list" || v == "junk" {
				return true, "bulk precedence"
			}
		}
	}

	local := msg.From
	if at := strings.IndexByte(local, '@'); at > 0 {
		local = local[:at]
	}
	for _, prefix := range automatedSenderPrefixes {
		if strings.HasPrefix(strings.ToLower(local), prefix) {
			return true, "automated sender address"
		}
	}

	if len(strings.TrimSpace(msg.CleanedText)) < minBodyLength {
		return true, "body below minimum length"
	}

	return false, ""
}
