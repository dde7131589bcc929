package webhook

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// externalIDPattern matches the platform's external message id format.
var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.\-=]{1,255}$`)

// Payload is the inbound webhook envelope: one or more entries, each with
// one or more changes carrying either messages or status updates.
type Payload struct {
	Entry []struct {
		Changes []struct {
			Value struct {
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Statuses []struct {
					Timestamp string `json:"timestamp"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// InboundMessage is the single text message extracted from a Payload, or
// the reason it was ignored.
type InboundMessage struct {
	From            string
	ExternalID      string
	Text            string
	Timestamp       time.Time
	NonTextIgnored  bool
	StatusOnly      bool
}

// extractMessage pulls the first message (or status) out of the payload's
// nested entry/changes/value structure, applying the spec's in-scope-only
// filtering: only type == "text" messages are processed further.
func extractMessage(p Payload) (InboundMessage, error) {
	for _, entry := range p.Entry {
		for _, change := range entry.Changes {
			if len(change.Value.Messages) > 0 {
				msg := change.Value.Messages[0]
				ts, err := parseTimestamp(msg.Timestamp)
				if err != nil {
					return InboundMessage{}, fmt.Errorf("parse message timestamp: %w", err)
				}
				if msg.Type != "text" {
					return InboundMessage{NonTextIgnored: true, Timestamp: ts}, nil
				}
				if !externalIDPattern.MatchString(msg.ID) {
					return InboundMessage{}, fmt.Errorf("invalid external message id")
				}
				return InboundMessage{
					From:       normalizeE164(msg.From),
					ExternalID: msg.ID,
					Text:       msg.Text.Body,
					Timestamp:  ts,
				}, nil
			}
			if len(change.Value.Statuses) > 0 {
				ts, err := parseTimestamp(change.Value.Statuses[0].Timestamp)
				if err != nil {
					return InboundMessage{}, fmt.Errorf("parse status timestamp: %w", err)
				}
				return InboundMessage{StatusOnly: true, Timestamp: ts}, nil
			}
		}
	}
	return InboundMessage{}, fmt.Errorf("payload carries no message or status entry")
}

func parseTimestamp(raw string) (time.Time, error) {
	seconds, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, 0), nil
}

// nonDigit matches anything that isn't a decimal digit, for stripping
// formatting characters out of the platform's bare-digits phone numbers.
var nonDigit = regexp.MustCompile(`[^0-9]`)

// normalizeE164 turns the platform's bare-digits "from" field (e.g.
// "15551234567") into E.164 form ("+15551234567"). Already-prefixed values
// pass through unchanged.
func normalizeE164(raw string) string {
	if raw == "" || raw[0] == '+' {
		return raw
	}
	digits := nonDigit.ReplaceAllString(raw, "")
	if digits == "" {
		return raw
	}
	return "+" + digits
}
