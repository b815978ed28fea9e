package bridge

import (
	"encoding/base64"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birddigital/voicebridge/pkg/sessionconfig"
)

func TestBuildSessionUpdateForcesTelephonyCodecRegardlessOfOverrides(t *testing.T) {
	defaults := sessionconfig.Session{
		Instructions:      "be helpful",
		InputAudioFormat:  "pcm16",
		OutputAudioFormat: "pcm16",
	}
	override := CarrierOverride{
		Fields: map[string]any{
			"input_audio_format":  "opus",
			"output_audio_format": "opus",
			"voice":               "verse",
		},
	}

	merged := BuildSessionUpdate(defaults, override)

	assert.Equal(t, sessionconfig.CodecTelephony, merged["input_audio_format"])
	assert.Equal(t, sessionconfig.CodecTelephony, merged["output_audio_format"])
	assert.Equal(t, "verse", merged["voice"])
}

func TestBuildSessionUpdateCarrierOverrideTakesPrecedenceOverDefaults(t *testing.T) {
	defaults := sessionconfig.Session{
		Instructions: "default instructions",
	}
	override := CarrierOverride{
		Fields: map[string]any{
			"instructions": "carrier instructions",
		},
	}

	merged := BuildSessionUpdate(defaults, override)

	assert.Equal(t, "carrier instructions", merged["instructions"])
}

func TestBuildSessionUpdateFillsFromDefaultsWhenNoOverride(t *testing.T) {
	defaults := sessionconfig.Session{
		Instructions: "default instructions",
		Voice:        "alloy",
	}

	merged := BuildSessionUpdate(defaults, CarrierOverride{})

	assert.Equal(t, "default instructions", merged["instructions"])
	assert.Equal(t, "alloy", merged["voice"])
	assert.Equal(t, "realtime", merged["type"])
}

func TestDecodeCarrierOverrideFiltersDisallowedFields(t *testing.T) {
	raw := map[string]any{
		"voice":        "verse",
		"instructions": "hello",
		"model":        "should-be-dropped",
	}
	b, err := json.Marshal(raw)
	require.NoError(t, err)
	encoded := base64.StdEncoding.EncodeToString(b)

	override, err := DecodeCarrierOverride(encoded)
	require.NoError(t, err)

	assert.Equal(t, "verse", override.Voice)
	assert.Equal(t, "hello", override.Fields["instructions"])
	_, present := override.Fields["model"]
	assert.False(t, present, "model is not in the carrier-override allow-list")
}

func TestDecodeCarrierOverrideEmptyStringIsZeroValue(t *testing.T) {
	override, err := DecodeCarrierOverride("")
	require.NoError(t, err)
	assert.Nil(t, override.Fields)
	assert.Equal(t, "", override.Voice)
}
