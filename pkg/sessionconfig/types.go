// Package sessionconfig defines the realtime-session configuration data
// model (spec.md §3) shared by the control plane (C), the token minter
// (D), the call-control document builder (E), and the bridge (G).
package sessionconfig

import "fmt"

// PromptRef references a stored prompt by id and optional version. Version
// is always carried as a string: the sanitizer (D) coerces a numeric
// version to string before it ever reaches an outbound request.
type PromptRef struct {
	ID      string `json:"id"`
	Version string `json:"version,omitempty"`
}

// TurnDetection is the tagged-variant turn-detection config. Type "off"
// means no fields beyond Type are meaningful; Type "server_vad" uses the
// remaining fields.
type TurnDetection struct {
	Type               string   `json:"type"`
	Threshold          *float64 `json:"threshold,omitempty"`
	PrefixPaddingMs    *int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs  *int     `json:"silence_duration_ms,omitempty"`
	CreateResponse     *bool    `json:"create_response,omitempty"`
	InterruptResponse  *bool    `json:"interrupt_response,omitempty"`
}

// InputTranscription configures background transcription of the caller's
// audio.
type InputTranscription struct {
	Model    string `json:"model"`
	Language string `json:"language,omitempty"`
	Prompt   string `json:"prompt,omitempty"`
}

// NoiseReduction is "off" (field absent/empty) or "near_field".
type NoiseReduction struct {
	Type string `json:"type"`
}

// Tool describes one function the model may call.
type Tool struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// Session is the realtime-session configuration record, spec.md §3.
type Session struct {
	Type                    string               `json:"type,omitempty"`
	Model                   string               `json:"model,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Prompt                  *PromptRef           `json:"prompt,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	Modalities              []string             `json:"modalities,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioSampleRate    int                  `json:"input_audio_sample_rate,omitempty"`
	ToolChoice              any                  `json:"tool_choice,omitempty"`
	Tools                   []Tool               `json:"tools,omitempty"`
	Temperature             *float64             `json:"temperature,omitempty"`
	MaxResponseOutputTokens any                  `json:"max_response_output_tokens,omitempty"`
	TurnDetection           *TurnDetection       `json:"turn_detection,omitempty"`
	InputAudioTranscription *InputTranscription  `json:"input_audio_transcription,omitempty"`
	InputAudioNoiseReduction *NoiseReduction     `json:"input_audio_noise_reduction,omitempty"`
}

// CodecTelephony is the only codec/sample-rate pair the carrier speaks.
const CodecTelephony = "g711_ulaw"

// Validate checks the data-model invariants from spec.md §3.
func Validate(s *Session) error {
	hasInstructions := s.Instructions != ""
	hasPrompt := s.Prompt != nil && s.Prompt.ID != ""
	if hasInstructions == hasPrompt {
		return fmt.Errorf("exactly one of instructions or prompt must be populated")
	}
	if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > 2) {
		return fmt.Errorf("temperature %v out of range [0,2]", *s.Temperature)
	}
	if s.TurnDetection != nil {
		if t := s.TurnDetection.Threshold; t != nil && (*t < 0 || *t > 1) {
			return fmt.Errorf("turn_detection.threshold %v out of range [0,1]", *t)
		}
		if p := s.TurnDetection.PrefixPaddingMs; p != nil && (*p < 0 || *p > 2000) {
			return fmt.Errorf("turn_detection.prefix_padding_ms %d out of range [0,2000]", *p)
		}
		if d := s.TurnDetection.SilenceDurationMs; d != nil && (*d < 50 || *d > 5000) {
			return fmt.Errorf("turn_detection.silence_duration_ms %d out of range [50,5000]", *d)
		}
	}
	switch v := s.MaxResponseOutputTokens.(type) {
	case nil:
	case string:
		if v != "unbounded" {
			return fmt.Errorf("max_response_output_tokens string must be \"unbounded\", got %q", v)
		}
	case int:
		if v <= 0 {
			return fmt.Errorf("max_response_output_tokens must be positive, got %d", v)
		}
	case float64:
		if v <= 0 {
			return fmt.Errorf("max_response_output_tokens must be positive, got %v", v)
		}
	default:
		return fmt.Errorf("max_response_output_tokens has unsupported type %T", v)
	}
	return nil
}

// ForceTelephonyCodec overrides both audio-format directions to μ-law
// 8kHz regardless of any user override (§4.7 step 4) — the carrier cannot
// speak anything else.
func ForceTelephonyCodec(s *Session) {
	s.InputAudioFormat = CodecTelephony
	s.OutputAudioFormat = CodecTelephony
}
