package sessionconfig

import "strconv"

// credentialAllowedFields are the only fields the model's credential
// endpoint accepts (§4.4). Everything else must be stripped before the
// token-mint request goes out.
var credentialAllowedFields = map[string]bool{
	"type":         true,
	"model":        true,
	"instructions": true,
	"prompt":       true,
}

// SanitizeForCredential restricts an arbitrary session payload to the
// fields the credential endpoint accepts, and coerces a numeric
// prompt.version to a string. The input may carry any fields at all —
// everything outside the allow-list is dropped (§4.4, testable property 2).
func SanitizeForCredential(raw map[string]any) map[string]any {
	out := make(map[string]any, len(credentialAllowedFields))
	for k, v := range raw {
		if !credentialAllowedFields[k] {
			continue
		}
		if k == "prompt" {
			out[k] = sanitizePrompt(v)
			continue
		}
		out[k] = v
	}
	return out
}

func sanitizePrompt(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}
	sanitized := make(map[string]any, len(m))
	for k, val := range m {
		if k == "version" {
			sanitized[k] = coerceToString(val)
			continue
		}
		sanitized[k] = val
	}
	return sanitized
}

func coerceToString(v any) any {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		return v
	}
}

// carrierOverrideAllowedFields is the allow-list the bridge applies to the
// base64-JSON overrides blob the call-control document attaches to the
// carrier's "start" frame (§4.7 "Carrier-provided overrides").
var carrierOverrideAllowedFields = map[string]bool{
	"instructions":              true,
	"prompt":                    true,
	"input_audio_transcription": true,
	"turn_detection":            true,
	"tools":                     true,
	"tool_choice":               true,
	"temperature":               true,
	"max_response_output_tokens": true,
	"voice":                     true,
	"input_audio_format":        true,
	"output_audio_format":       true,
	"modalities":                true,
}

// FilterCarrierOverrides drops any key outside the allow-list. Carrier
// input is untrusted: the upstream model rejects unknown session fields,
// and an unfiltered override would let a compromised carrier side-channel
// arbitrary session state into the model connection.
func FilterCarrierOverrides(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if carrierOverrideAllowedFields[k] {
			out[k] = v
		}
	}
	return out
}
