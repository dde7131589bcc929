package webhook

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPayload(t *testing.T, msgType, externalID, body string, ts time.Time) Payload {
	t.Helper()
	raw := fmt.Sprintf(`{
		"entry": [{"changes": [{"value": {"messages": [{
			"from": "+15551234567",
			"id": %q,
			"timestamp": "%d",
			"type": %q,
			"text": {"body": %q}
		}]}}]}]
	}`, externalID, ts.Unix(), msgType, body)

	var p Payload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	return p
}

func TestExtractMessage_ParsesTextMessage(t *testing.T) {
	p := buildPayload(t, "text", "wamid.abc123", "hello there", time.Now())
	msg, err := extractMessage(p)
	require.NoError(t, err)
	assert.Equal(t, "+15551234567", msg.From)
	assert.Equal(t, "wamid.abc123", msg.ExternalID)
	assert.Equal(t, "hello there", msg.Text)
	assert.False(t, msg.NonTextIgnored)
}

func TestExtractMessage_FlagsNonTextAsIgnored(t *testing.T) {
	p := buildPayload(t, "image", "wamid.abc124", "", time.Now())
	msg, err := extractMessage(p)
	require.NoError(t, err)
	assert.True(t, msg.NonTextIgnored)
}

func TestExtractMessage_RejectsInvalidExternalID(t *testing.T) {
	p := buildPayload(t, "text", "has a space!", "hi", time.Now())
	_, err := extractMessage(p)
	assert.Error(t, err)
}

func TestExtractMessage_ErrorsOnEmptyEntry(t *testing.T) {
	_, err := extractMessage(Payload{})
	assert.Error(t, err)
}

func TestNormalizeE164_PrependsPlusToBareDigits(t *testing.T) {
	assert.Equal(t, "+15551234567", normalizeE164("15551234567"))
}

func TestNormalizeE164_PassesThroughAlreadyPrefixed(t *testing.T) {
	assert.Equal(t, "+15551234567", normalizeE164("+15551234567"))
}
