// Package framebuffer implements component A: the outbound audio queue
// that paces assistant audio back to the carrier at 160 bytes every 20ms,
// regardless of how the model delivers it (spec.md §4.1).
package framebuffer

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// FrameBytes is one 20ms frame of 8kHz 8-bit G.711 μ-law audio.
	FrameBytes = 160

	// FrameInterval is the carrier's fixed pacing cadence.
	FrameInterval = 20 * time.Millisecond

	// MaxQueuedFrames is the queue length beyond which Enqueue drops the
	// oldest MaxQueuedFrames/2 frames (§4.1 overflow policy).
	MaxQueuedFrames = 100

	// ulawSilence is the μ-law encoding of analog zero, used to pad a
	// trailing partial frame out to FrameBytes.
	ulawSilence = 0xFF
)

// Buffer accepts arbitrarily-sized audio chunks, splits them into
// FrameBytes frames, and emits them at FrameInterval via Frames(). It is
// safe for one producer (Enqueue/Clear) and one consumer (Frames) used
// concurrently; Enqueue and Clear themselves are safe from multiple
// goroutines.
type Buffer struct {
	log zerolog.Logger

	mu    sync.Mutex
	queue [][]byte

	onDrop func(n int)

	out    chan []byte
	ticker *time.Ticker
	done   chan struct{}
	once   sync.Once
}

// New starts a Buffer's pacing loop. onDrop, if non-nil, is called with the
// number of frames discarded whenever the queue overflows (used to drive
// internal/metrics.FramesDropped without coupling this package to the
// metrics package directly).
func New(log zerolog.Logger, onDrop func(n int)) *Buffer {
	b := &Buffer{
		log:    log,
		onDrop: onDrop,
		out:    make(chan []byte, MaxQueuedFrames),
		ticker: time.NewTicker(FrameInterval),
		done:   make(chan struct{}),
	}
	go b.pace()
	return b
}

// Enqueue splits raw into FrameBytes frames; any trailing partial frame is
// padded with μ-law silence to full frame size and enqueued (§4.1 testable
// property 4). If, after appending, the queue holds more than
// MaxQueuedFrames, the oldest MaxQueuedFrames/2 frames are dropped.
func (b *Buffer) Enqueue(raw []byte) {
	if len(raw) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	i := 0
	for ; i+FrameBytes <= len(raw); i += FrameBytes {
		frame := make([]byte, FrameBytes)
		copy(frame, raw[i:i+FrameBytes])
		b.queue = append(b.queue, frame)
	}
	if i < len(raw) {
		frame := make([]byte, FrameBytes)
		copy(frame, raw[i:])
		for j := len(raw) - i; j < FrameBytes; j++ {
			frame[j] = ulawSilence
		}
		b.queue = append(b.queue, frame)
	}

	if len(b.queue) > MaxQueuedFrames {
		dropN := MaxQueuedFrames / 2
		b.queue = append([][]byte{}, b.queue[dropN:]...)
		b.log.Warn().Int("dropped_frames", dropN).Msg("frame buffer overflow, dropping oldest frames")
		if b.onDrop != nil {
			b.onDrop(dropN)
		}
	}
}

// Clear discards all queued audio immediately. Used on barge-in, alongside
// the "clear" frame the Bridge sends the carrier to stop assistant playback.
func (b *Buffer) Clear() {
	b.mu.Lock()
	b.queue = nil
	b.mu.Unlock()

	// Drain anything already handed to the pacing loop's output channel so
	// a stale frame doesn't get sent after a barge-in clear.
	for {
		select {
		case <-b.out:
		default:
			return
		}
	}
}

// Frames returns the channel of paced frames ready to send to the carrier.
func (b *Buffer) Frames() <-chan []byte {
	return b.out
}

func (b *Buffer) pace() {
	for {
		select {
		case <-b.done:
			return
		case <-b.ticker.C:
			b.mu.Lock()
			var frame []byte
			if len(b.queue) > 0 {
				frame = b.queue[0]
				b.queue = b.queue[1:]
			}
			b.mu.Unlock()

			if frame == nil {
				continue
			}
			select {
			case b.out <- frame:
			case <-b.done:
				return
			}
		}
	}
}

// Shutdown stops the pacing loop. Safe to call more than once.
func (b *Buffer) Shutdown() {
	b.once.Do(func() {
		b.ticker.Stop()
		close(b.done)
	})
}
