package bridge

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeModelEventRecognizesKind(t *testing.T) {
	kind, err := decodeModelEvent([]byte(`{"type":"response.created"}`))
	require.NoError(t, err)
	assert.Equal(t, eventResponseCreated, kind)
}

func TestDecodeModelEventUnrecognizedTypePassesThrough(t *testing.T) {
	kind, err := decodeModelEvent([]byte(`{"type":"some.future.event"}`))
	require.NoError(t, err)
	assert.Equal(t, modelEventKind("some.future.event"), kind)
}

func TestDecodeModelEventRejectsMalformedJSON(t *testing.T) {
	_, err := decodeModelEvent([]byte(`not json`))
	assert.Error(t, err)
}

func TestOutputItemPayloadUnmarshalsItemID(t *testing.T) {
	var p outputItemPayload
	err := json.Unmarshal([]byte(`{"item":{"id":"it_42","type":"message"}}`), &p)
	require.NoError(t, err)
	assert.Equal(t, "it_42", p.Item.ID)
}

func TestAudioDeltaPayloadUnmarshalsDelta(t *testing.T) {
	var p audioDeltaPayload
	err := json.Unmarshal([]byte(`{"delta":"base64audio"}`), &p)
	require.NoError(t, err)
	assert.Equal(t, "base64audio", p.Delta)
}

func TestDecodeModelEventAcceptsLegacyEventNameAliases(t *testing.T) {
	cases := []struct {
		raw  string
		want modelEventKind
	}{
		{`{"type":"response.audio.done"}`, eventResponseAudioDoneLegacy},
		{`{"type":"response.audio_transcript.delta"}`, eventResponseAudioTranscriptDeltaLegacy},
		{`{"type":"response.audio_transcript.done"}`, eventResponseAudioTranscriptDoneLegacy},
		{`{"type":"response.text.delta"}`, eventResponseTextDeltaLegacy},
		{`{"type":"response.text.done"}`, eventResponseTextDoneLegacy},
	}
	for _, tc := range cases {
		kind, err := decodeModelEvent([]byte(tc.raw))
		require.NoError(t, err)
		assert.Equal(t, tc.want, kind)
	}
}

func TestModelErrorPayloadUnmarshalsNestedError(t *testing.T) {
	var p modelErrorPayload
	err := json.Unmarshal([]byte(`{"error":{"type":"invalid_request_error","code":"bad","message":"oops"}}`), &p)
	require.NoError(t, err)
	assert.Equal(t, "oops", p.Error.Message)
}
