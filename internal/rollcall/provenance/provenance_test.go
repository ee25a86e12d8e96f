package provenance_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/provenance"
)

func TestEncode_TruncatesDeviceTokens(t *testing.T) {
	at := time.UnixMilli(1760000000123)
	got := provenance.Encode(provenance.Cell{
		Fingerprint: strings.Repeat("ab", 32),
		Hardware:    "0123456789abcdef",
		IP:          "10.0.0.5",
		Date:        at,
	})
	assert.Equal(t, "VAR (DF:abababab) (HW:01234567) (IP:10.0.0.5) (DATE:1760000000123)", got)
}

func TestEncode_BareMarker(t *testing.T) {
	assert.Equal(t, "VAR", provenance.Encode(provenance.Cell{}))
}

func TestDecode(t *testing.T) {
	c := provenance.Decode("VAR (DF:abababab) (HW:01234567) (IP:10.0.0.5) (DATE:1760000000123)")
	assert.True(t, c.Present)
	assert.True(t, c.HasDevice())
	assert.Equal(t, "abababab", c.Fingerprint)
	assert.Equal(t, "01234567", c.Hardware)
	assert.Equal(t, "10.0.0.5", c.IP)
	assert.Equal(t, int64(1760000000123), c.Date.UnixMilli())
}

func TestDecode_Tolerant(t *testing.T) {
	assert.False(t, provenance.Decode("").Present)
	assert.False(t, provenance.Decode("absent").Present)

	bare := provenance.Decode("VAR")
	assert.True(t, bare.Present)
	assert.False(t, bare.HasDevice())
	assert.True(t, bare.Date.IsZero())

	// Garbled date and unknown keys are ignored, reordering is fine.
	odd := provenance.Decode("VAR (DATE:soon) (XX:1) (HW:deadbeef)")
	assert.True(t, odd.Present)
	assert.Equal(t, "deadbeef", odd.Hardware)
	assert.True(t, odd.Date.IsZero())
}

func TestIsMarked(t *testing.T) {
	assert.True(t, provenance.IsMarked("VAR"))
	assert.True(t, provenance.IsMarked("VAR (DF:1)"))
	assert.True(t, provenance.IsMarked("manual VAR"))
	assert.False(t, provenance.IsMarked(""))
	assert.False(t, provenance.IsMarked("var"))
}

func TestRoundTripKeepsPrefixes(t *testing.T) {
	fp := strings.Repeat("f", 64)
	hw := strings.Repeat("9", 64)
	c := provenance.Decode(provenance.Encode(provenance.Cell{Fingerprint: fp, Hardware: hw}))
	assert.True(t, strings.HasPrefix(fp, c.Fingerprint))
	assert.True(t, strings.HasPrefix(hw, c.Hardware))
}

func TestMaskIP(t *testing.T) {
	assert.Equal(t, "10.0.0.x", provenance.MaskIP("10.0.0.5"))
	assert.Equal(t, "2001:db8:1:2:x", provenance.MaskIP("2001:db8:1:2:3:4:5:6"))

	assert.True(t, provenance.IPMatches("10.0.0.5", "10.0.0.5"))
	assert.True(t, provenance.IPMatches("10.0.0.x", "10.0.0.77"))
	assert.False(t, provenance.IPMatches("10.0.0.x", "10.0.1.5"))
	assert.False(t, provenance.IPMatches("10.0.0.5", "10.0.0.6"))
}
