package service

import "strings"

// MinIdentityLength is the shortest fingerprint or hardware signature that
// is trusted as a device identity.
const MinIdentityLength = 32

// IsValidFingerprint reports whether the pair is well-formed. It does not
// check authenticity.
func IsValidFingerprint(fingerprint, hardware string) bool {
	return len(strings.TrimSpace(fingerprint)) >= MinIdentityLength &&
		len(strings.TrimSpace(hardware)) >= MinIdentityLength
}
