package bridge

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCredentialPrefersURLPathSegment(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/stream/tok%20en?secret=fromquery", nil)
	assert.Equal(t, "tok en", extractCredential(r))
}

func TestExtractCredentialFallsBackToQueryParam(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/stream/?secret=fromquery", nil)
	assert.Equal(t, "fromquery", extractCredential(r))
}

func TestExtractCredentialFallsBackToFormBody(t *testing.T) {
	form := url.Values{"secret": {"fromform"}}
	r := httptest.NewRequest(http.MethodPost, "/stream/", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	assert.Equal(t, "fromform", extractCredential(r))
}

func TestExtractCredentialReturnsEmptyWhenAbsent(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/stream/", nil)
	assert.Equal(t, "", extractCredential(r))
}

func TestMediaTimestampMsParsesDecimalString(t *testing.T) {
	assert.Equal(t, int64(1620), mediaTimestampMs("1620"))
}

func TestMediaTimestampMsDefaultsToZeroOnMalformedInput(t *testing.T) {
	assert.Equal(t, int64(0), mediaTimestampMs("not-a-number"))
	assert.Equal(t, int64(0), mediaTimestampMs(""))
}

func TestDecodeCarrierEventStartFrame(t *testing.T) {
	raw := []byte(`{"event":"start","start":{"streamSid":"MZ1","callSid":"CA1","customParameters":{"x":"y"}}}`)
	name, val, err := decodeCarrierEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "start", name)

	f, ok := val.(carrierStartFrame)
	require.True(t, ok)
	assert.Equal(t, "MZ1", f.Start.StreamSID)
	assert.Equal(t, "y", f.Start.CustomParameters["x"])
}

func TestDecodeCarrierEventMediaFrame(t *testing.T) {
	raw := []byte(`{"event":"media","media":{"payload":"abcd","timestamp":"1000"}}`)
	name, val, err := decodeCarrierEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "media", name)

	f, ok := val.(carrierMediaFrame)
	require.True(t, ok)
	assert.Equal(t, "abcd", f.Media.Payload)
	assert.Equal(t, int64(1000), mediaTimestampMs(f.Media.Timestamp))
}

func TestDecodeCarrierEventStopFrame(t *testing.T) {
	raw := []byte(`{"event":"stop"}`)
	name, val, err := decodeCarrierEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "stop", name)
	assert.Nil(t, val)
}

func TestDecodeCarrierEventMarkFrameCarriesName(t *testing.T) {
	raw := []byte(`{"event":"mark","mark":{"name":"commit"}}`)
	name, val, err := decodeCarrierEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "mark", name)

	f, ok := val.(carrierMarkFrame)
	require.True(t, ok)
	assert.Equal(t, "commit", f.Mark.Name)
}

func TestEncodeOutboundMediaRoundTrips(t *testing.T) {
	raw, err := encodeOutboundMedia("MZ1", []byte{0x01, 0x02})
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"media"`)
	assert.Contains(t, string(raw), `"streamSid":"MZ1"`)
}

func TestEncodeOutboundClearRoundTrips(t *testing.T) {
	raw, err := encodeOutboundClear("MZ1")
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"event":"clear"`)
}
