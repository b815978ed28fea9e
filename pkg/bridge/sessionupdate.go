package bridge

import (
	"encoding/base64"
	"encoding/json"

	"github.com/birddigital/voicebridge/pkg/sessionconfig"
)

// CarrierOverride additionally remembers voice and output-audio-format for
// per-turn response.create overrides (spec.md §4.7 "Carrier-provided
// overrides").
type CarrierOverride struct {
	Fields            map[string]any
	Voice             string
	OutputAudioFormat string
}

// DecodeCarrierOverride decodes the base64-JSON custom-parameter blob the
// call-control document may attach to the carrier's "start" frame, and
// filters it to the allowed field set.
func DecodeCarrierOverride(raw string) (CarrierOverride, error) {
	if raw == "" {
		return CarrierOverride{}, nil
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return CarrierOverride{}, err
	}

	var generic map[string]any
	if err := json.Unmarshal(decoded, &generic); err != nil {
		return CarrierOverride{}, err
	}

	filtered := sessionconfig.FilterCarrierOverrides(generic)

	out := CarrierOverride{Fields: filtered}
	if v, ok := filtered["voice"].(string); ok {
		out.Voice = v
	}
	if v, ok := filtered["output_audio_format"].(string); ok {
		out.OutputAudioFormat = v
	}
	return out, nil
}

// BuildSessionUpdate implements the four-step construction spec.md §4.7
// names: start from {type: "realtime"}, layer carrier overrides, fall back
// to control-plane defaults for anything still unset, then force the
// telephony codec unconditionally (testable property 6).
func BuildSessionUpdate(defaults sessionconfig.Session, override CarrierOverride) map[string]any {
	merged := map[string]any{"type": "realtime"}

	defaultsJSON := sessionToMap(defaults)
	for k, v := range defaultsJSON {
		merged[k] = v
	}
	for k, v := range override.Fields {
		merged[k] = v
	}

	merged["input_audio_format"] = sessionconfig.CodecTelephony
	merged["output_audio_format"] = sessionconfig.CodecTelephony

	return merged
}

func sessionToMap(s sessionconfig.Session) map[string]any {
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}
