package bridge

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEvaluateBargeInComputesAudioEndMs(t *testing.T) {
	var turn TurnState
	turn.OnResponseCreated()
	turn.OnOutputItemID("it_9")
	turn.OnMediaFrame(1000)
	turn.OnFirstAudioDelta() // latches response-start = 1000
	turn.OnMediaFrame(1620)

	result := turn.EvaluateBargeIn()
	assert.True(t, result.ShouldTruncate)
	assert.Equal(t, "it_9", result.ItemID)
	assert.Equal(t, int64(620), result.AudioEndMs)
}

func TestEvaluateBargeInSecondCallInSameResponseDoesNotTruncateAgain(t *testing.T) {
	var turn TurnState
	turn.OnResponseCreated()
	turn.OnOutputItemID("it_9")
	turn.OnMediaFrame(1000)
	turn.OnFirstAudioDelta()
	turn.OnMediaFrame(1620)

	first := turn.EvaluateBargeIn()
	assert.True(t, first.ShouldTruncate)

	second := turn.EvaluateBargeIn()
	assert.False(t, second.ShouldTruncate, "a second speech_started in the same response must not truncate again")
}

func TestEvaluateBargeInWithNoActiveResponseDoesNothing(t *testing.T) {
	var turn TurnState
	result := turn.EvaluateBargeIn()
	assert.False(t, result.ShouldTruncate)
}

func TestEvaluateBargeInClampsNegativeAudioEndToZero(t *testing.T) {
	var turn TurnState
	turn.OnResponseCreated()
	turn.OnOutputItemID("it_1")
	turn.OnMediaFrame(500)
	turn.OnFirstAudioDelta() // response-start = 500
	turn.OnMediaFrame(200)   // caller timestamp somehow precedes response start

	result := turn.EvaluateBargeIn()
	assert.Equal(t, int64(0), result.AudioEndMs)
}

func TestResponseActiveTracksLifecycle(t *testing.T) {
	var turn TurnState
	assert.False(t, turn.ResponseActive())
	turn.OnResponseCreated()
	assert.True(t, turn.ResponseActive())
	turn.OnResponseEnded()
	assert.False(t, turn.ResponseActive())
}
