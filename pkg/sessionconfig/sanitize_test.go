package sessionconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeForCredentialSubsetProperty(t *testing.T) {
	raw := map[string]any{
		"type":         "realtime",
		"model":        "gpt-realtime",
		"instructions": "be nice",
		"voice":        "alloy",                        // must be stripped
		"temperature":  0.7,                             // must be stripped
		"tools":        []any{"x"},                      // must be stripped
		"arbitrary":    map[string]any{"nested": true},  // must be stripped
	}

	out := SanitizeForCredential(raw)

	for k := range out {
		assert.Truef(t, credentialAllowedFields[k], "unexpected field %q survived sanitization", k)
	}
	assert.Equal(t, "realtime", out["type"])
	assert.Equal(t, "gpt-realtime", out["model"])
	assert.Equal(t, "be nice", out["instructions"])
	_, present := out["voice"]
	assert.False(t, present, "voice should have been stripped")
}

func TestSanitizeForCredentialPromptVersionCoercion(t *testing.T) {
	raw := map[string]any{
		"prompt": map[string]any{
			"id":      "pr_123",
			"version": float64(4),
		},
	}

	out := SanitizeForCredential(raw)
	prompt, ok := out["prompt"].(map[string]any)
	require.True(t, ok, "expected prompt to remain a map, got %T", out["prompt"])
	assert.Equal(t, "4", prompt["version"])
}

func TestFilterCarrierOverridesAllowList(t *testing.T) {
	raw := map[string]any{
		"voice":        "verse",
		"malicious_db": "drop table",
		"temperature":  0.5,
	}
	out := FilterCarrierOverrides(raw)
	_, present := out["malicious_db"]
	assert.False(t, present, "unknown field must not survive filtering")
	assert.Equal(t, "verse", out["voice"])
	assert.Equal(t, 0.5, out["temperature"])
}

func TestValidateExactlyOneOfInstructionsOrPrompt(t *testing.T) {
	neither := &Session{}
	assert.Error(t, Validate(neither), "expected error when neither instructions nor prompt set")

	both := &Session{Instructions: "hi", Prompt: &PromptRef{ID: "pr_1"}}
	assert.Error(t, Validate(both), "expected error when both instructions and prompt set")

	onlyInstructions := &Session{Instructions: "hi"}
	assert.NoError(t, Validate(onlyInstructions))
}

func TestValidateTemperatureRange(t *testing.T) {
	tooHigh := 2.5
	s := &Session{Instructions: "hi", Temperature: &tooHigh}
	assert.Error(t, Validate(s), "expected out-of-range temperature to fail")
}

func TestValidateTurnDetectionBounds(t *testing.T) {
	badThreshold := 5.0
	s := &Session{Instructions: "hi", TurnDetection: &TurnDetection{Type: "server_vad", Threshold: &badThreshold}}
	assert.Error(t, Validate(s), "expected out-of-range VAD threshold to fail")

	badPrefix := 5000
	s = &Session{Instructions: "hi", TurnDetection: &TurnDetection{Type: "server_vad", PrefixPaddingMs: &badPrefix}}
	assert.Error(t, Validate(s), "expected out-of-range prefix padding to fail")

	badSilence := 10
	s = &Session{Instructions: "hi", TurnDetection: &TurnDetection{Type: "server_vad", SilenceDurationMs: &badSilence}}
	assert.Error(t, Validate(s), "expected out-of-range silence duration to fail")

	goodThreshold, goodPrefix, goodSilence := 0.5, 300, 500
	s = &Session{Instructions: "hi", TurnDetection: &TurnDetection{
		Type:              "server_vad",
		Threshold:         &goodThreshold,
		PrefixPaddingMs:   &goodPrefix,
		SilenceDurationMs: &goodSilence,
	}}
	assert.NoError(t, Validate(s))
}

func TestForceTelephonyCodec(t *testing.T) {
	s := &Session{InputAudioFormat: "pcm16", OutputAudioFormat: "pcm16"}
	ForceTelephonyCodec(s)
	assert.Equal(t, CodecTelephony, s.InputAudioFormat)
	assert.Equal(t, CodecTelephony, s.OutputAudioFormat)
}
