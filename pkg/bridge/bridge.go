package bridge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/internal/bridgeerr"
	"github.com/birddigital/voicebridge/internal/metrics"
	"github.com/birddigital/voicebridge/pkg/controlplane"
	"github.com/birddigital/voicebridge/pkg/framebuffer"
	"github.com/birddigital/voicebridge/pkg/transcript"
)

// heartbeatInterval is the ping cadence on both sockets (spec.md §4.7).
const heartbeatInterval = 25 * time.Second

// Config bundles everything a Bridge needs to run one call.
type Config struct {
	Log           zerolog.Logger
	ControlPlane  *controlplane.State
	Transcripts   *transcript.Store
	ModelWSHost   string
	ModelAPIKey   string
	Model         string
}

// Bridge owns one call's two WebSocket connections (carrier and model),
// the outbound frame buffer (A), and the per-turn barge-in state (turn.go).
// It is the system's core (spec.md §4.7). Closing either socket tears the
// whole bridge down: the pacer stops, the heartbeats stop, and the other
// socket is closed too.
type Bridge struct {
	cfg Config

	callKey   string
	streamSID string

	carrierConn *websocket.Conn
	modelConn   *websocket.Conn

	frames *framebuffer.Buffer
	turn   TurnState

	// pendingUpdate carries the session.update built from the carrier's
	// "start" frame until the model's session.created confirms it is safe
	// to send (spec.md §4.7 FSM: AwaitingSessionCreated -> Active).
	pendingUpdate chan map[string]any

	state   State
	stateMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// New constructs a Bridge in AwaitingStart. ServeHTTP drives it for one
// carrier connection.
func New(cfg Config) *Bridge {
	b := &Bridge{
		cfg:           cfg,
		state:         AwaitingStart,
		closed:        make(chan struct{}),
		pendingUpdate: make(chan map[string]any, 1),
	}
	b.frames = framebuffer.New(cfg.Log, func(n int) { metrics.FramesDropped.Add(float64(n)) })
	return b
}

func (b *Bridge) setState(s State) {
	b.stateMu.Lock()
	b.state = s
	b.stateMu.Unlock()
}

// State reports the bridge's current lifecycle state.
func (b *Bridge) State() State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// ServeHTTP upgrades the carrier's request and runs the bridge until
// either side disconnects. Credential extraction and handshake failures
// close with the codes spec.md §7 requires.
func (b *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	credential := extractCredential(r)

	conn, err := upgradeCarrierConnection(w, r, b.cfg.Log)
	if err != nil {
		b.cfg.Log.Error().Err(err).Msg("carrier upgrade failed")
		return
	}
	b.carrierConn = conn
	metrics.ActiveBridges.Inc()
	defer metrics.ActiveBridges.Dec()

	if credential == "" {
		b.cfg.Log.Warn().Msg("carrier request missing credential")
		b.closeCarrier(websocket.ClosePolicyViolation, "missing credential")
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	b.setState(Connecting)
	if err := b.connectModel(ctx, credential); err != nil {
		b.cfg.Log.Error().Err(err).Msg("model connection failed")
		b.closeCarrier(websocket.CloseInternalServerErr, "model connection failed")
		return
	}
	b.setState(AwaitingSessionCreated)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); b.pumpCarrierReads(ctx) }()
	go func() { defer wg.Done(); b.pumpModelReads(ctx) }()
	go func() { defer wg.Done(); b.pumpOutboundFrames(ctx) }()

	go b.heartbeat(ctx, b.carrierConn)
	go b.heartbeat(ctx, b.modelConn)

	wg.Wait()
}

func (b *Bridge) connectModel(ctx context.Context, credential string) error {
	wsURL := fmt.Sprintf("wss://%s/v1/realtime?model=%s", b.cfg.ModelWSHost, b.cfg.Model)
	conn, _, err := dialModel(ctx, wsURL, credential)
	if err != nil {
		return bridgeerr.New(bridgeerr.KindModelHandshakeFailed, err)
	}
	b.modelConn = conn
	return nil
}

// pumpCarrierReads decodes frames from the carrier and drives state
// transitions and model-bound audio.
func (b *Bridge) pumpCarrierReads(ctx context.Context) {
	defer b.shutdown()

	for {
		_, raw, err := b.carrierConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				b.cfg.Log.Warn().Err(err).Msg("carrier read error")
			}
			return
		}

		name, val, err := decodeCarrierEvent(raw)
		if err != nil {
			b.cfg.Log.Warn().Err(err).Msg("malformed carrier frame")
			continue
		}

		switch name {
		case "start":
			f := val.(carrierStartFrame)
			b.streamSID = f.Start.StreamSID
			b.callKey = f.Start.CallSID
			b.handleStart(f)
		case "media":
			f := val.(carrierMediaFrame)
			b.handleCarrierMedia(f)
		case "mark":
			f := val.(carrierMarkFrame)
			if f.Mark.Name == "commit" {
				b.handleCommitMark()
			}
		case "stop":
			b.cfg.Log.Info().Str("call", b.callKey).Msg("carrier sent stop")
			return
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (b *Bridge) handleStart(f carrierStartFrame) {
	var override CarrierOverride
	if blob, ok := f.Start.CustomParameters["overrides"]; ok {
		decoded, err := DecodeCarrierOverride(blob)
		if err != nil {
			b.cfg.Log.Warn().Err(err).Msg("could not decode carrier overrides, using defaults only")
		} else {
			override = decoded
		}
	}

	defaults := b.cfg.ControlPlane.Get()
	update := BuildSessionUpdate(defaults, override)
	select {
	case b.pendingUpdate <- update:
	default:
		b.cfg.Log.Warn().Msg("dropping session.update: a previous one was never sent")
	}
}

// handleCommitMark implements spec.md §4.7's ingress path: a carrier mark
// named "commit" finalizes the caller's buffered audio and asks the model
// to produce a response.
func (b *Bridge) handleCommitMark() {
	if b.modelConn == nil {
		return
	}
	if err := b.modelConn.WriteJSON(map[string]any{"type": "input_audio_buffer.commit"}); err != nil {
		b.cfg.Log.Error().Err(err).Msg("failed to send input_audio_buffer.commit")
		return
	}
	if err := b.modelConn.WriteJSON(map[string]any{"type": "response.create"}); err != nil {
		b.cfg.Log.Error().Err(err).Msg("failed to send response.create")
	}
}

func (b *Bridge) handleCarrierMedia(f carrierMediaFrame) {
	ts := mediaTimestampMs(f.Media.Timestamp)
	b.turn.OnMediaFrame(ts)

	audio, err := base64.StdEncoding.DecodeString(f.Media.Payload)
	if err != nil {
		b.cfg.Log.Warn().Err(err).Msg("malformed media payload")
		return
	}

	if b.modelConn == nil {
		return
	}
	appendEvent := map[string]any{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(audio),
	}
	_ = b.modelConn.WriteJSON(appendEvent)
}

// pumpModelReads decodes events from the model and drives transcript
// appends, outbound audio, and barge-in.
func (b *Bridge) pumpModelReads(ctx context.Context) {
	defer b.shutdown()

	for {
		_, raw, err := b.modelConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				b.cfg.Log.Warn().Err(err).Msg("model read error")
			}
			return
		}

		kind, err := decodeModelEvent(raw)
		if err != nil {
			b.cfg.Log.Warn().Err(err).Msg("malformed model event")
			continue
		}

		b.dispatchModelEvent(ctx, kind, raw)

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

func (b *Bridge) dispatchModelEvent(ctx context.Context, kind modelEventKind, raw []byte) {
	switch kind {
	case eventSessionCreated:
		select {
		case update := <-b.pendingUpdate:
			event := map[string]any{"type": "session.update", "session": update}
			if err := b.modelConn.WriteJSON(event); err != nil {
				b.cfg.Log.Error().Err(err).Msg("failed to send session.update")
			}
		default:
			b.cfg.Log.Warn().Msg("session.created received before any session.update was queued")
		}
		b.setState(Active)

	case eventResponseCreated:
		b.turn.OnResponseCreated()
		b.setState(ResponseActive)

	case eventResponseOutputItemAdded, eventResponseOutputItemDone:
		var p outputItemPayload
		if unmarshalLenient(raw, &p) {
			b.turn.OnOutputItemID(p.Item.ID)
		}

	case eventResponseOutputAudioDelta, eventResponseAudioDeltaLegacy:
		var p audioDeltaPayload
		if unmarshalLenient(raw, &p) && p.Delta != "" {
			b.turn.OnFirstAudioDelta()
			if audio, err := base64.StdEncoding.DecodeString(p.Delta); err == nil {
				b.frames.Enqueue(audio)
			}
		}

	case eventResponseOutputAudioTranscriptDelta, eventResponseAudioTranscriptDeltaLegacy,
		eventResponseOutputTextDelta, eventResponseTextDeltaLegacy:
		var p transcriptDeltaPayload
		if unmarshalLenient(raw, &p) && p.Delta != "" {
			b.appendTranscript(ctx, "assistant", p.Delta, false)
		}

	case eventResponseDone, eventResponseCancelled:
		b.turn.OnResponseEnded()
		b.setState(Active)

	case eventResponseOutputAudioDone, eventResponseAudioDoneLegacy,
		eventResponseOutputAudioTranscriptDone, eventResponseAudioTranscriptDoneLegacy:
		b.turn.OnResponseEnded()

	case eventInputAudioBufferSpeechStarted:
		b.handleBargeIn(ctx)

	case eventTranscriptionCompleted:
		var p transcriptDeltaPayload
		if unmarshalLenient(raw, &p) && p.Transcript != "" {
			b.appendTranscript(ctx, "caller", p.Transcript, true)
		}

	case eventTranscriptionFailed:
		b.cfg.Log.Warn().Msg("caller transcription failed")

	case eventError:
		var p modelErrorPayload
		if unmarshalLenient(raw, &p) {
			b.cfg.Log.Error().Str("code", p.Error.Code).Str("message", p.Error.Message).Msg("model error event")
		}

	case eventRateLimitsUpdated, eventSessionUpdated, eventInputAudioBufferSpeechStopped,
		eventInputAudioBufferCommitted, eventInputAudioBufferCleared,
		eventResponseOutputTextDone, eventResponseTextDoneLegacy:
		// Informational only; no bridge-side action required.

	default:
		b.cfg.Log.Debug().Str("type", string(kind)).Msg("unhandled model event type")
	}
}

// handleBargeIn implements spec.md §4.7's barge-in protocol: clear the
// carrier's playback buffer and the local frame buffer immediately, and
// truncate the model's in-flight response item if one is active.
func (b *Bridge) handleBargeIn(ctx context.Context) {
	b.frames.Clear()
	if b.streamSID != "" {
		if clearFrame, err := encodeOutboundClear(b.streamSID); err == nil {
			_ = b.carrierConn.WriteMessage(websocket.TextMessage, clearFrame)
		}
	}

	result := b.turn.EvaluateBargeIn()
	if !result.ShouldTruncate {
		return
	}

	truncate := map[string]any{
		"type":          "conversation.item.truncate",
		"item_id":       result.ItemID,
		"content_index": 0,
		"audio_end_ms":  result.AudioEndMs,
	}
	if err := b.modelConn.WriteJSON(truncate); err != nil {
		b.cfg.Log.Error().Err(err).Msg("failed to send conversation.item.truncate")
		return
	}
	metrics.BargeIns.Inc()
}

func (b *Bridge) appendTranscript(ctx context.Context, role, text string, final bool) {
	if b.cfg.Transcripts == nil || b.callKey == "" {
		return
	}
	entry := transcript.Entry{Role: role, Text: text, Final: final, Timestamp: time.Now()}
	if err := b.cfg.Transcripts.Append(ctx, b.callKey, entry); err != nil {
		b.cfg.Log.Warn().Err(err).Msg("transcript append failed")
	}
}

// pumpOutboundFrames relays the frame buffer's paced output to the carrier
// as outbound media frames.
func (b *Bridge) pumpOutboundFrames(ctx context.Context) {
	defer b.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closed:
			return
		case frame, ok := <-b.frames.Frames():
			if !ok {
				return
			}
			encoded, err := encodeOutboundMedia(b.streamSID, frame)
			if err != nil {
				continue
			}
			if err := b.carrierConn.WriteMessage(websocket.TextMessage, encoded); err != nil {
				b.cfg.Log.Warn().Err(err).Msg("carrier write failed")
				return
			}
		}
	}
}

func (b *Bridge) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.closed:
			return
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// shutdown tears the whole bridge down exactly once: stop the pacer, close
// both sockets, signal heartbeats to stop.
func (b *Bridge) shutdown() {
	b.closeOnce.Do(func() {
		b.setState(Closing)
		close(b.closed)
		b.frames.Shutdown()
		if b.carrierConn != nil {
			_ = b.carrierConn.Close()
		}
		if b.modelConn != nil {
			_ = b.modelConn.Close()
		}
	})
}

func (b *Bridge) closeCarrier(code int, reason string) {
	if b.carrierConn == nil {
		return
	}
	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(time.Second)
	_ = b.carrierConn.WriteControl(websocket.CloseMessage, msg, deadline)
	_ = b.carrierConn.Close()
}

func unmarshalLenient(raw []byte, v any) bool {
	return json.Unmarshal(raw, v) == nil
}
