package bridge

// TurnState tracks the per-response bookkeeping the Bridge needs to decide
// whether a caller's "speech_started" event should trigger a
// conversation.item.truncate (spec.md §4.7 "Barge-in protocol").
//
// Not safe for concurrent use; the Bridge serializes all model-event
// handling onto a single goroutine per call.
type TurnState struct {
	responseActive         bool
	interruptedThisTurn    bool
	lastAssistantItemID    string
	responseStartTimestampMs int64
	responseStartSet        bool
	latestMediaTimestampMs  int64
}

// OnMediaFrame records the carrier media frame's timestamp, used as the
// clock that barge-in math is computed against.
func (t *TurnState) OnMediaFrame(timestampMs int64) {
	t.latestMediaTimestampMs = timestampMs
}

// OnResponseCreated enters ResponseActive and clears the per-turn
// interruption guard for the new response.
func (t *TurnState) OnResponseCreated() {
	t.responseActive = true
	t.interruptedThisTurn = false
}

// OnOutputItemID records the assistant item id truncation targets.
func (t *TurnState) OnOutputItemID(itemID string) {
	if itemID != "" {
		t.lastAssistantItemID = itemID
	}
}

// OnFirstAudioDelta latches the response-start timestamp the first time
// audio is emitted for the current response.
func (t *TurnState) OnFirstAudioDelta() {
	if !t.responseStartSet {
		t.responseStartTimestampMs = t.latestMediaTimestampMs
		t.responseStartSet = true
	}
}

// OnResponseEnded resets per-response state on response.done/cancelled or
// the audio/transcript done events.
func (t *TurnState) OnResponseEnded() {
	t.responseActive = false
	t.responseStartSet = false
	t.responseStartTimestampMs = 0
}

// ResponseActive reports whether a response is currently in flight.
func (t *TurnState) ResponseActive() bool {
	return t.responseActive
}

// BargeIn is the result of evaluating a caller's speech_started event
// against the current turn state.
type BargeIn struct {
	ShouldTruncate bool
	ItemID         string
	AudioEndMs     int64
}

// EvaluateBargeIn implements spec.md §4.7's barge-in decision and
// truncation-math, and clears per-turn interruption state exactly once
// per response (testable property 5).
func (t *TurnState) EvaluateBargeIn() BargeIn {
	result := BargeIn{}

	if t.responseActive && t.lastAssistantItemID != "" && !t.interruptedThisTurn {
		audioEndMs := t.latestMediaTimestampMs - t.responseStartTimestampMs
		if audioEndMs < 0 {
			audioEndMs = 0
		}
		result = BargeIn{ShouldTruncate: true, ItemID: t.lastAssistantItemID, AudioEndMs: audioEndMs}
		t.interruptedThisTurn = true
	}

	t.lastAssistantItemID = ""
	t.responseStartSet = false
	t.responseStartTimestampMs = 0

	return result
}
