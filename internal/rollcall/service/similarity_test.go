package service_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/service"
)

func TestCompareDevices_ScoringTable(t *testing.T) {
	fp := hex64("f1a2b3c4d5")
	hw := hex64("a9b8c7d6e5")

	tests := []struct {
		name                 string
		storedFP, storedHW   string
		wantFP, wantHW       service.MatchKind
		wantScore            int
		sameCache, sameLedge bool
	}{
		{"identical", fp, hw, service.ExactMatch, service.ExactMatch, 100, true, true},
		{"hardware only", hex64("ffff"), hw, service.NoMatch, service.ExactMatch, 60, true, true},
		{"fingerprint only", fp, hex64("eeee"), service.ExactMatch, service.NoMatch, 40, false, true},
		{"truncated ledger cell", fp[:8], hw[:8], service.PrefixMatch, service.PrefixMatch, 50, true, true},
		{"truncated hardware only", "", hw[:8], service.NoMatch, service.PrefixMatch, 30, false, false},
		{"too short for prefix", fp[:7], hw[:7], service.NoMatch, service.NoMatch, 0, false, false},
		{"nothing in common", hex64("1111"), hex64("2222"), service.NoMatch, service.NoMatch, 0, false, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			sim := service.CompareDevices(tc.storedFP, tc.storedHW, fp, hw)
			assert.Equal(t, tc.wantFP, sim.Fingerprint)
			assert.Equal(t, tc.wantHW, sim.Hardware)
			assert.Equal(t, tc.wantScore, sim.Score())
			assert.Equal(t, tc.sameCache, sim.SameDevice(service.SameDeviceThreshold))
			assert.Equal(t, tc.sameLedge, sim.SameDevice(service.LedgerSameDeviceThreshold))
		})
	}
}

func TestCompareDevices_PrefixEitherDirection(t *testing.T) {
	live := hex64("a9b8c7d6e5")
	a := service.CompareDevices(live[:8], "", live, "")
	b := service.CompareDevices(live, "", live[:8], "")
	assert.Equal(t, service.PrefixMatch, a.Fingerprint)
	assert.Equal(t, a, b)
}
