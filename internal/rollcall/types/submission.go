package types

// MinWeek and MaxWeek bound the week numbers of a semester.
const (
	MinWeek = 1
	MaxWeek = 16
)

type SubmissionRequest struct {
	StudentID         string `json:"student_id" validate:"required"`
	Week              int    `json:"week" validate:"required,min=1,max=16"`
	ClientIP          string `json:"client_ip,omitempty"`
	DeviceFingerprint string `json:"device_fingerprint" validate:"required"`
	HardwareSignature string `json:"hardware_signature" validate:"required"`

	// Optional caller-side gate inputs. When QR is set the transport checks
	// the envelope window and the distance before the submission is decided.
	QR       string  `json:"qr,omitempty"`
	Location *LatLng `json:"location,omitempty"`
}

type SubmissionResponse struct {
	Accepted           bool            `json:"accepted"`
	IsAlreadyAttended  bool            `json:"is_already_attended,omitempty"`
	Reason             RejectionReason `json:"reason,omitempty"`
	Error              string          `json:"error,omitempty"`
	BlockedStudentID   string          `json:"blocked_student_id,omitempty"`
	UnauthorizedDevice bool            `json:"unauthorized_device,omitempty"`
	ServerTime         string          `json:"server_time"`
}

// Reject builds a rejection response with a human-readable message.
func Reject(reason RejectionReason, msg string) SubmissionResponse {
	return SubmissionResponse{Reason: reason, Error: msg}
}
