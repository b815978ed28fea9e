package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// modelHandshakeTimeout bounds the dial against the model endpoint
// (spec.md §4.7).
const modelHandshakeTimeout = 15 * time.Second

// modelEvent is the minimal envelope every server event shares; Type
// discriminates, and the full payload is kept as RawMessage so handlers
// decode only the fields they need.
type modelEvent struct {
	Type  string          `json:"type"`
	Event json.RawMessage `json:"-"`
}

// dialModel opens the model WebSocket connection, preferring bearer auth
// and falling back to subprotocol-embedded auth when the endpoint requires
// it (spec.md §4.7 "Model connection"). No per-message compression is
// negotiated.
func dialModel(ctx context.Context, wsURL, apiKey string) (*websocket.Conn, *http.Response, error) {
	dialer := &websocket.Dialer{
		HandshakeTimeout: modelHandshakeTimeout,
		EnableCompression: false,
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+apiKey)

	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err == nil {
		return conn, resp, nil
	}

	fallbackDialer := &websocket.Dialer{
		HandshakeTimeout:  modelHandshakeTimeout,
		EnableCompression: false,
		Subprotocols:      []string{"realtime", "openai-insecure-api-key." + apiKey},
	}
	conn, resp, fallbackErr := fallbackDialer.DialContext(ctx, wsURL, http.Header{})
	if fallbackErr != nil {
		return nil, resp, fmt.Errorf("dial model (bearer: %v, subprotocol fallback: %w)", err, fallbackErr)
	}
	return conn, resp, nil
}

// modelEventKind is the closed set of server event types the bridge
// dispatches on (spec.md §4.7). Unrecognized types are logged and
// ignored rather than treated as fatal.
type modelEventKind string

// The model protocol underwent a rename (response.audio.* ->
// response.output_audio.*, etc.); both forms are accepted (spec.md §9).
const (
	eventSessionCreated              modelEventKind = "session.created"
	eventSessionUpdated              modelEventKind = "session.updated"
	eventResponseCreated             modelEventKind = "response.created"
	eventResponseOutputItemAdded     modelEventKind = "response.output_item.added"
	eventResponseOutputItemDone      modelEventKind = "response.output_item.done"
	eventResponseOutputAudioDelta    modelEventKind = "response.output_audio.delta"
	eventResponseAudioDeltaLegacy    modelEventKind = "response.audio.delta"
	eventResponseOutputAudioDone     modelEventKind = "response.output_audio.done"
	eventResponseAudioDoneLegacy     modelEventKind = "response.audio.done"
	eventResponseOutputAudioTranscriptDelta modelEventKind = "response.output_audio_transcript.delta"
	eventResponseAudioTranscriptDeltaLegacy modelEventKind = "response.audio_transcript.delta"
	eventResponseOutputAudioTranscriptDone  modelEventKind = "response.output_audio_transcript.done"
	eventResponseAudioTranscriptDoneLegacy  modelEventKind = "response.audio_transcript.done"
	eventResponseOutputTextDelta     modelEventKind = "response.output_text.delta"
	eventResponseTextDeltaLegacy     modelEventKind = "response.text.delta"
	eventResponseOutputTextDone      modelEventKind = "response.output_text.done"
	eventResponseTextDoneLegacy      modelEventKind = "response.text.done"
	eventResponseDone                modelEventKind = "response.done"
	eventResponseCancelled           modelEventKind = "response.cancelled"
	eventInputAudioBufferSpeechStarted   modelEventKind = "input_audio_buffer.speech_started"
	eventInputAudioBufferSpeechStopped   modelEventKind = "input_audio_buffer.speech_stopped"
	eventInputAudioBufferCommitted       modelEventKind = "input_audio_buffer.committed"
	eventInputAudioBufferCleared         modelEventKind = "input_audio_buffer.cleared"
	eventTranscriptionCompleted modelEventKind = "conversation.item.input_audio_transcription.completed"
	eventTranscriptionFailed    modelEventKind = "conversation.item.input_audio_transcription.failed"
	eventRateLimitsUpdated      modelEventKind = "rate_limits.updated"
	eventError                  modelEventKind = "error"
)

// outputItemPayload is the subset of response.output_item.{added,done}
// fields the bridge needs to track the assistant item id for truncation.
type outputItemPayload struct {
	Item struct {
		ID string `json:"id"`
	} `json:"item"`
}

// audioDeltaPayload carries one base64 chunk of model-generated audio.
type audioDeltaPayload struct {
	Delta string `json:"delta"`
}

// transcriptDeltaPayload carries one incremental transcript fragment,
// for either the caller's or the assistant's speech.
type transcriptDeltaPayload struct {
	Delta      string `json:"delta"`
	Transcript string `json:"transcript"`
}

// modelErrorPayload is the error event's body.
type modelErrorPayload struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeModelEvent(raw []byte) (modelEventKind, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", fmt.Errorf("decode model event: %w", err)
	}
	return modelEventKind(probe.Type), nil
}
