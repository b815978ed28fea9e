// Package controlplane implements component C: process-wide realtime
// session configuration with a startup-defaults layer and a runtime
// overrides layer (spec.md §4.3).
package controlplane

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/birddigital/voicebridge/internal/config"
	"github.com/birddigital/voicebridge/pkg/sessionconfig"
)

// State holds the two configuration layers. Writes (SetOverride,
// ClearOverride) are serialized by mu; Get takes a read lock and returns an
// independent copy so callers never observe a torn write.
type State struct {
	mu        sync.RWMutex
	defaults  sessionconfig.Session
	override  *sessionconfig.Session
}

// NewFromConfig builds the defaults layer from environment-derived
// configuration, exactly as loaded once at startup.
func NewFromConfig(cfg *config.Config) (*State, error) {
	modalities := splitModalities(cfg.Modalities)

	temp := cfg.Temperature
	td := &sessionconfig.TurnDetection{Type: cfg.TurnDetectionMode}
	if cfg.TurnDetectionMode != "off" {
		threshold := cfg.VADThreshold
		prefix := cfg.VADPrefixPaddingMs
		silence := cfg.VADSilenceDurationMs
		create := cfg.VADCreateResponse
		interrupt := cfg.VADInterruptResponse
		td.Threshold = &threshold
		td.PrefixPaddingMs = &prefix
		td.SilenceDurationMs = &silence
		td.CreateResponse = &create
		td.InterruptResponse = &interrupt
	}

	defaults := sessionconfig.Session{
		Type:                 "realtime",
		Model:                cfg.DefaultModel,
		Instructions:         cfg.DefaultInstructions,
		Voice:                cfg.Voice,
		Modalities:           modalities,
		InputAudioFormat:     sessionconfig.CodecTelephony,
		OutputAudioFormat:    sessionconfig.CodecTelephony,
		InputAudioSampleRate: cfg.InputSampleRate,
		Temperature:          &temp,
		TurnDetection:        td,
	}

	if cfg.DefaultInstructions == "" && cfg.DefaultPromptID != "" {
		defaults.Instructions = ""
		defaults.Prompt = &sessionconfig.PromptRef{ID: cfg.DefaultPromptID, Version: cfg.DefaultPromptVersion}
	} else if cfg.DefaultInstructions == "" {
		// Neither configured: fall back to a generic instructions string so
		// the record still validates (one of the two must be populated).
		defaults.Instructions = "You are a helpful phone assistant."
	}

	if cfg.MaxOutputTokens != "" {
		if cfg.MaxOutputTokens == "unbounded" {
			defaults.MaxResponseOutputTokens = "unbounded"
		} else {
			defaults.MaxResponseOutputTokens = cfg.MaxOutputTokens
		}
	}

	if cfg.TranscriptionEnabled {
		defaults.InputAudioTranscription = &sessionconfig.InputTranscription{
			Model:    cfg.TranscriptionModel,
			Language: cfg.TranscriptionLanguage,
			Prompt:   cfg.TranscriptionPrompt,
		}
	}

	if cfg.NoiseReduction != "" && cfg.NoiseReduction != "off" {
		defaults.InputAudioNoiseReduction = &sessionconfig.NoiseReduction{Type: cfg.NoiseReduction}
	}

	if err := sessionconfig.Validate(&defaults); err != nil {
		return nil, fmt.Errorf("invalid default session configuration: %w", err)
	}

	return &State{defaults: defaults}, nil
}

func splitModalities(raw string) []string {
	if raw == "" {
		return []string{"audio", "text"}
	}
	var out []string
	cur := ""
	for _, r := range raw {
		if r == ',' {
			if cur != "" {
				out = append(out, cur)
				cur = ""
			}
			continue
		}
		cur += string(r)
	}
	if cur != "" {
		out = append(out, cur)
	}
	return out
}

// Get returns the current effective session configuration: the override if
// one is set, otherwise the defaults. The result is an independent copy.
func (s *State) Get() sessionconfig.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.override != nil {
		return deepCopy(*s.override)
	}
	return deepCopy(s.defaults)
}

// SetOverride validates and installs a new runtime override, replacing any
// prior one. Overrides persist for the process's lifetime.
func (s *State) SetOverride(sess sessionconfig.Session) error {
	if err := sessionconfig.Validate(&sess); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cp := deepCopy(sess)
	s.override = &cp
	return nil
}

// ClearOverride reverts to the defaults layer.
func (s *State) ClearOverride() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.override = nil
}

// HasOverride reports whether a runtime override is currently active.
func (s *State) HasOverride() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.override != nil
}

func deepCopy(s sessionconfig.Session) sessionconfig.Session {
	// A JSON round-trip is simple and correct for a small, infrequently
	// written configuration record, and keeps this package from having to
	// hand-write a deep-copy for every nested pointer field.
	b, err := json.Marshal(s)
	if err != nil {
		return s
	}
	var cp sessionconfig.Session
	if err := json.Unmarshal(b, &cp); err != nil {
		return s
	}
	return cp
}
