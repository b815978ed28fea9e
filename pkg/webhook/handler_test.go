package webhook

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birddigital/voicebridge/internal/config"
	"github.com/birddigital/voicebridge/pkg/auth"
	"github.com/birddigital/voicebridge/pkg/controlplane"
	"github.com/birddigital/voicebridge/pkg/sessionconfig"
)

func testControlPlane(t *testing.T) *controlplane.State {
	cp, err := controlplane.NewFromConfig(&config.Config{
		Voice: "alloy", Modalities: "audio,text", Temperature: 0.8, MaxOutputTokens: "unbounded",
		TurnDetectionMode: "server_vad", VADThreshold: 0.5, VADPrefixPaddingMs: 300,
		VADSilenceDurationMs: 500, VADCreateResponse: true, VADInterruptResponse: true,
		InputSampleRate: 8000, DefaultInstructions: "be helpful", DefaultModel: "gpt-realtime",
	})
	require.NoError(t, err)
	return cp
}

func TestServeControlGetReturnsSessionUpdateEvent(t *testing.T) {
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: testControlPlane(t)})

	req := httptest.NewRequest(http.MethodGet, "/control", nil)
	rec := httptest.NewRecorder()
	h.ServeControl(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp controlResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, "session.update", resp.Events[0]["type"])
}

func TestServeControlPostAcceptsBearer(t *testing.T) {
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: testControlPlane(t), HMACSecret: "shared-secret"})

	req := httptest.NewRequest(http.MethodPost, "/control", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer shared-secret")
	rec := httptest.NewRecorder()
	h.ServeControl(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeControlPostRejectsBadBearer(t *testing.T) {
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: testControlPlane(t), HMACSecret: "shared-secret"})

	req := httptest.NewRequest(http.MethodPost, "/control", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer wrong")
	rec := httptest.NewRecorder()
	h.ServeControl(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeControlPostAcceptsValidHMAC(t *testing.T) {
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: testControlPlane(t), HMACSecret: "shared-secret"})

	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig := auth.SignPayload("shared-secret", ts, body)

	req := httptest.NewRequest(http.MethodPost, "/control", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Timestamp", ts)
	req.Header.Set("X-Webhook-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeControl(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServeControlPostRejectsStaleTimestamp(t *testing.T) {
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: testControlPlane(t), HMACSecret: "shared-secret"})

	body := []byte(`{}`)
	ts := strconv.FormatInt(time.Now().Add(-1*time.Hour).Unix(), 10)
	sig := auth.SignPayload("shared-secret", ts, body)

	req := httptest.NewRequest(http.MethodPost, "/control", bytes.NewReader(body))
	req.Header.Set("X-Webhook-Timestamp", ts)
	req.Header.Set("X-Webhook-Signature", sig)
	rec := httptest.NewRecorder()
	h.ServeControl(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeSettingsRequiresAdminBearer(t *testing.T) {
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: testControlPlane(t), AdminSecret: "this-is-a-32-character-long-secret!"})

	req := httptest.NewRequest(http.MethodGet, "/control/settings", nil)
	rec := httptest.NewRecorder()
	h.ServeSettings(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeSettingsRejectsShortAdminSecret(t *testing.T) {
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: testControlPlane(t), AdminSecret: "too-short"})

	req := httptest.NewRequest(http.MethodGet, "/control/settings", nil)
	req.Header.Set("Authorization", "Bearer too-short")
	rec := httptest.NewRecorder()
	h.ServeSettings(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServeSettingsPostSetsOverride(t *testing.T) {
	admin := "this-is-a-32-character-long-secret!"
	cp := testControlPlane(t)
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: cp, AdminSecret: admin})

	override := sessionconfig.Session{Instructions: "overridden instructions"}
	body, err := json.Marshal(override)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/control/settings", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	h.ServeSettings(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, cp.HasOverride())
	assert.Equal(t, "overridden instructions", cp.Get().Instructions)
}

func TestServeSettingsPostEmptyBodyClearsOverride(t *testing.T) {
	admin := "this-is-a-32-character-long-secret!"
	cp := testControlPlane(t)
	require.NoError(t, cp.SetOverride(sessionconfig.Session{Instructions: "temporary"}))
	h := NewHandler(Config{Log: zerolog.Nop(), ControlPlane: cp, AdminSecret: admin})

	req := httptest.NewRequest(http.MethodPost, "/control/settings", bytes.NewReader(nil))
	req.Header.Set("Authorization", "Bearer "+admin)
	rec := httptest.NewRecorder()
	h.ServeSettings(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, cp.HasOverride())
}
