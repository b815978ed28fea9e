// Package metrics exposes process-wide Prometheus collectors. Metrics are
// observability only: nothing in the bridge reads them back to make
// decisions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ActiveBridges tracks the number of carrier calls currently bridged.
	ActiveBridges = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "voicebridge",
		Name:      "active_bridges",
		Help:      "Number of carrier calls currently bridged to the model.",
	})

	// FramesDropped counts egress audio frames discarded by the frame
	// buffer's overflow policy (§4.1).
	FramesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "voicebridge",
		Name:      "frames_dropped_total",
		Help:      "Egress audio frames dropped due to frame-buffer overflow.",
	})

	// TranscriptStoreFallbacks counts switches from the external transcript
	// backend to the in-process fallback (§7 External-store-unavailable).
	TranscriptStoreFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "voicebridge",
		Name:      "transcript_store_fallbacks_total",
		Help:      "Times the transcript store fell back to in-process memory.",
	})

	// CredentialMints counts ephemeral-credential mint attempts by result.
	CredentialMints = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "voicebridge",
		Name:      "credential_mints_total",
		Help:      "Ephemeral credential mint attempts, partitioned by result.",
	}, []string{"result"})

	// BargeIns counts barge-in truncations sent to the model (§4.7).
	BargeIns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "voicebridge",
		Name:      "barge_ins_total",
		Help:      "conversation.item.truncate events sent due to caller barge-in.",
	})
)
