// Package qr handles the attendance QR envelope. The envelope is unsigned:
// it only carries a validity window, the classroom location and the week.
package qr

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/rollcall/internal/rollcall/geo"
	"github.com/BrandonDHaskell/rollcall/internal/rollcall/types"
)

const DefaultTTL = 5 * time.Minute

var (
	ErrRequired           = errors.New("qr: code required")
	ErrMalformed          = errors.New("qr: malformed payload")
	ErrExpired            = errors.New("qr: code expired")
	ErrWeekMismatch       = errors.New("qr: week does not match")
	ErrLocationRequired   = errors.New("qr: student location required")
	ErrLocationOutOfRange = errors.New("qr: student is too far from the classroom")
)

// Payload is the JSON envelope carried by the QR code. Times are Unix
// milliseconds.
type Payload struct {
	Timestamp     int64        `json:"timestamp"`
	ClassLocation types.LatLng `json:"classLocation"`
	ValidUntil    int64        `json:"validUntil"`
	Week          int          `json:"week"`
}

// Issue builds a payload valid for ttl from now.
func Issue(now time.Time, classroom types.LatLng, week int, ttl time.Duration) Payload {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return Payload{
		Timestamp:     now.UnixMilli(),
		ClassLocation: classroom,
		ValidUntil:    now.Add(ttl).UnixMilli(),
		Week:          week,
	}
}

// Encode returns the unpadded base64url form of the JSON envelope.
func Encode(p Payload) (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Decode accepts the base64url form (padded or not) or raw JSON.
func Decode(s string) (Payload, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Payload{}, ErrMalformed
	}
	raw := []byte(s)
	if !strings.HasPrefix(s, "{") {
		b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
		if err != nil {
			return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		raw = b
	}
	var p Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.ValidUntil == 0 || p.Week < types.MinWeek || p.Week > types.MaxWeek {
		return Payload{}, ErrMalformed
	}
	return p, nil
}

func (p Payload) Expired(now time.Time) bool {
	return now.UnixMilli() > p.ValidUntil
}

// Check gates a submission on the envelope: it must be unexpired, for the
// submitted week, and the student must be within maxKm of the classroom.
func (p Payload) Check(now time.Time, week int, student *types.LatLng, maxKm float64) error {
	if p.Expired(now) {
		return ErrExpired
	}
	if week != p.Week {
		return ErrWeekMismatch
	}
	if student == nil {
		return ErrLocationRequired
	}
	if maxKm <= 0 {
		maxKm = geo.DefaultMaxDistanceKm
	}
	if !geo.WithinRadius(*student, p.ClassLocation, maxKm) {
		return fmt.Errorf("%w: %.3f km", ErrLocationOutOfRange, geo.DistanceKm(*student, p.ClassLocation))
	}
	return nil
}

// Gate is the caller-side check every transport runs before a submission
// is decided. A submission without a code passes unless Required is set.
type Gate struct {
	MaxDistanceKm float64
	Required      bool
}

func (g Gate) Verify(now time.Time, code string, week int, student *types.LatLng) error {
	if strings.TrimSpace(code) == "" {
		if g.Required {
			return ErrRequired
		}
		return nil
	}
	p, err := Decode(code)
	if err != nil {
		return err
	}
	return p.Check(now, week, student, g.MaxDistanceKm)
}

// Reason maps a gate error onto the rejection reason reported to clients.
func Reason(err error) types.RejectionReason {
	switch {
	case errors.Is(err, ErrRequired):
		return types.ReasonQRRequired
	case errors.Is(err, ErrExpired):
		return types.ReasonQRExpired
	case errors.Is(err, ErrWeekMismatch):
		return types.ReasonWeekMismatch
	case errors.Is(err, ErrLocationRequired):
		return types.ReasonLocationRequired
	case errors.Is(err, ErrLocationOutOfRange):
		return types.ReasonLocationOutOfRange
	default:
		return types.ReasonQRInvalid
	}
}
