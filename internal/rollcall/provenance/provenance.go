// Package provenance encodes the metadata embedded in a ledger attendance
// cell.
//
// Grammar:
//
//	cell   = "" | marker [ " " field { " " field } ]
//	marker = "VAR"
//	field  = "(" key ":" value ")"
//	key    = "DF" | "HW" | "IP" | "DATE"
//	value  = any run of characters except ")"
//
// DF and HW hold the first TruncateLen characters of the device fingerprint
// and hardware signature. DATE is a Unix timestamp in milliseconds. Unknown
// keys are ignored when decoding; a cell that contains the marker anywhere
// counts as present.
package provenance

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	Marker      = "VAR"
	TruncateLen = 8
)

var fieldRe = regexp.MustCompile(`\(([A-Z]+):([^)]*)\)`)

// Cell is the decoded form of a ledger attendance cell.
type Cell struct {
	Present     bool
	Fingerprint string
	Hardware    string
	IP          string
	Date        time.Time
}

// HasDevice reports whether the cell carries device metadata at all; a bare
// "VAR" cell does not.
func (c Cell) HasDevice() bool {
	return c.Fingerprint != "" || c.Hardware != ""
}

// IsMarked reports whether a raw cell value records attendance.
func IsMarked(raw string) bool {
	return strings.Contains(raw, Marker)
}

// Encode renders a present cell. Fingerprint and hardware values are
// truncated; empty fields are omitted.
func Encode(c Cell) string {
	var b strings.Builder
	b.WriteString(Marker)
	writeField(&b, "DF", truncate(c.Fingerprint))
	writeField(&b, "HW", truncate(c.Hardware))
	writeField(&b, "IP", c.IP)
	if !c.Date.IsZero() {
		writeField(&b, "DATE", strconv.FormatInt(c.Date.UnixMilli(), 10))
	}
	return b.String()
}

// Decode parses a raw cell. It never fails: malformed fields are skipped so
// that hand-edited cells still count as present.
func Decode(raw string) Cell {
	c := Cell{Present: IsMarked(raw)}
	if !c.Present {
		return c
	}
	for _, m := range fieldRe.FindAllStringSubmatch(raw, -1) {
		val := strings.TrimSpace(m[2])
		switch m[1] {
		case "DF":
			c.Fingerprint = val
		case "HW":
			c.Hardware = val
		case "IP":
			c.IP = val
		case "DATE":
			if ms, err := strconv.ParseInt(val, 10, 64); err == nil {
				c.Date = time.UnixMilli(ms)
			}
		}
	}
	return c
}

// MaskIP hides the host part of an address: the last IPv4 octet becomes "x",
// IPv6 addresses keep their first four groups.
func MaskIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if i := strings.LastIndexByte(ip, '.'); i >= 0 && !strings.Contains(ip, ":") {
		return ip[:i+1] + "x"
	}
	if parts := strings.Split(ip, ":"); len(parts) > 4 {
		return strings.Join(parts[:4], ":") + ":x"
	}
	return ip
}

// IPMatches compares a stored (possibly masked) address with a live one.
func IPMatches(stored, live string) bool {
	stored = strings.TrimSpace(stored)
	live = strings.TrimSpace(live)
	if stored == live {
		return true
	}
	if strings.HasSuffix(stored, "x") {
		return MaskIP(live) == stored
	}
	return false
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > TruncateLen {
		return s[:TruncateLen]
	}
	return s
}

func writeField(b *strings.Builder, key, val string) {
	if val == "" {
		return
	}
	b.WriteString(" (")
	b.WriteString(key)
	b.WriteByte(':')
	b.WriteString(strings.ReplaceAll(val, ")", ""))
	b.WriteByte(')')
}
