package controlplane

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birddigital/voicebridge/internal/config"
	"github.com/birddigital/voicebridge/pkg/sessionconfig"
)

func baseConfig() *config.Config {
	return &config.Config{
		Voice:                "alloy",
		Modalities:           "audio,text",
		Temperature:          0.8,
		MaxOutputTokens:      "unbounded",
		TurnDetectionMode:    "server_vad",
		VADThreshold:         0.5,
		VADPrefixPaddingMs:   300,
		VADSilenceDurationMs: 500,
		VADCreateResponse:    true,
		VADInterruptResponse: true,
		InputSampleRate:      8000,
		DefaultInstructions:  "be helpful",
		DefaultModel:         "gpt-realtime",
	}
}

func TestNewFromConfigBuildsValidDefaults(t *testing.T) {
	st, err := NewFromConfig(baseConfig())
	require.NoError(t, err)

	got := st.Get()
	assert.Equal(t, "gpt-realtime", got.Model)
	assert.Equal(t, "be helpful", got.Instructions)
	assert.Equal(t, sessionconfig.CodecTelephony, got.InputAudioFormat)
	assert.Equal(t, sessionconfig.CodecTelephony, got.OutputAudioFormat)
	assert.False(t, st.HasOverride(), "fresh state must not report an override")
}

func TestSetOverrideTakesPrecedenceOverDefaults(t *testing.T) {
	st, err := NewFromConfig(baseConfig())
	require.NoError(t, err)

	override := sessionconfig.Session{Instructions: "override instructions", Model: "gpt-realtime-mini"}
	require.NoError(t, st.SetOverride(override))
	assert.True(t, st.HasOverride())

	got := st.Get()
	assert.Equal(t, "override instructions", got.Instructions)
	assert.Equal(t, "gpt-realtime-mini", got.Model)

	st.ClearOverride()
	assert.False(t, st.HasOverride())

	got = st.Get()
	assert.Equal(t, "be helpful", got.Instructions)
}

func TestSetOverrideRejectsInvalidSession(t *testing.T) {
	st, err := NewFromConfig(baseConfig())
	require.NoError(t, err)

	assert.Error(t, st.SetOverride(sessionconfig.Session{}), "expected invalid override to be rejected")
	assert.False(t, st.HasOverride(), "rejected override must not be installed")
}

func TestGetReturnsIndependentCopies(t *testing.T) {
	st, err := NewFromConfig(baseConfig())
	require.NoError(t, err)

	first := st.Get()
	first.Instructions = "mutated locally"

	second := st.Get()
	assert.Equal(t, "be helpful", second.Instructions, "mutating a returned copy must not affect internal state")
}
