package dispatcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/birddigital/voicebridge/internal/bridgeerr"
)

func TestPlaceRejectsInvalidToNumber(t *testing.T) {
	d := New("ACxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", "authtoken", nil)

	_, err := d.Place(context.Background(), "555-123", "+15551231234", "https://example.com/twiml", false, "")
	require.Error(t, err)
	be, ok := bridgeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bridgeerr.KindInputInvalid, be.Kind)
}

func TestPlaceRejectsInvalidFromNumber(t *testing.T) {
	d := New("ACxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxxx", "authtoken", nil)

	_, err := d.Place(context.Background(), "+15551231234", "not-e164", "https://example.com/twiml", false, "")
	require.Error(t, err)
	be, ok := bridgeerr.As(err)
	require.True(t, ok)
	assert.Equal(t, bridgeerr.KindInputInvalid, be.Kind)
}
