package service

import "strings"

// Scoring table for DeviceSimilarity. Only one tier per factor applies.
const (
	FingerprintExactScore  = 40
	FingerprintPrefixScore = 20
	HardwareExactScore     = 60
	HardwarePrefixScore    = 30

	// SameDeviceThreshold applies to full-length identities held in the
	// daily cache.
	SameDeviceThreshold = 50
	// LedgerSameDeviceThreshold applies to the truncated identities read
	// back from ledger cells.
	LedgerSameDeviceThreshold = 40

	// PrefixAnchorLen is how many leading characters two identities must
	// share to count as a prefix match.
	PrefixAnchorLen = 8
)

type MatchKind int

const (
	NoMatch MatchKind = iota
	PrefixMatch
	ExactMatch
)

func (k MatchKind) String() string {
	switch k {
	case ExactMatch:
		return "exact"
	case PrefixMatch:
		return "prefix"
	default:
		return "none"
	}
}

// DeviceSimilarity is the per-factor comparison of a stored device identity
// against a live one.
type DeviceSimilarity struct {
	Fingerprint MatchKind
	Hardware    MatchKind
}

// CompareDevices compares the stored and live fingerprint and hardware
// signature. IP addresses are not part of the score; callers gate on them
// first.
func CompareDevices(storedFP, storedHW, liveFP, liveHW string) DeviceSimilarity {
	return DeviceSimilarity{
		Fingerprint: matchKind(storedFP, liveFP),
		Hardware:    matchKind(storedHW, liveHW),
	}
}

func (s DeviceSimilarity) Score() int {
	score := 0
	switch s.Fingerprint {
	case ExactMatch:
		score += FingerprintExactScore
	case PrefixMatch:
		score += FingerprintPrefixScore
	}
	switch s.Hardware {
	case ExactMatch:
		score += HardwareExactScore
	case PrefixMatch:
		score += HardwarePrefixScore
	}
	return score
}

func (s DeviceSimilarity) SameDevice(threshold int) bool {
	return s.Score() >= threshold
}

func matchKind(stored, live string) MatchKind {
	stored = strings.TrimSpace(stored)
	live = strings.TrimSpace(live)
	if stored == "" || live == "" {
		return NoMatch
	}
	if stored == live {
		return ExactMatch
	}
	if len(stored) >= PrefixAnchorLen && len(live) >= PrefixAnchorLen &&
		stored[:PrefixAnchorLen] == live[:PrefixAnchorLen] {
		return PrefixMatch
	}
	return NoMatch
}

// identityMatches is the looser registry comparison: exact equality, or one
// value is a prefix of the other and the shorter is at least
// PrefixAnchorLen long.
func identityMatches(stored, live string) bool {
	stored = strings.TrimSpace(stored)
	live = strings.TrimSpace(live)
	if stored == "" || live == "" {
		return false
	}
	if stored == live {
		return true
	}
	short, long := stored, live
	if len(short) > len(long) {
		short, long = long, short
	}
	return len(short) >= PrefixAnchorLen && strings.HasPrefix(long, short)
}
