package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestE164(t *testing.T) {
	accept := []string{"+15551231234", "+447911123456", "+12345678901234"}
	reject := []string{"555-123", "15551231234", "+0123456789", "+1", "++15551231234", "+123456789012345678", ""}

	for _, s := range accept {
		assert.Truef(t, E164(s), "expected %q to be accepted", s)
	}
	for _, s := range reject {
		assert.Falsef(t, E164(s), "expected %q to be rejected", s)
	}
}
