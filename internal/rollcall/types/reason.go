package types

// RejectionReason is the machine-readable cause attached to a refused
// submission. Values are stable; clients switch on them.
type RejectionReason string

const (
	ReasonInvalidInput                  RejectionReason = "invalid_input"
	ReasonInvalidDeviceIdentity         RejectionReason = "invalid_device_identity"
	ReasonStudentNotFound               RejectionReason = "student_not_found"
	ReasonInvalidWeek                   RejectionReason = "invalid_week"
	ReasonDeviceBelongsToAnotherStudent RejectionReason = "device_belongs_to_another_student"
	ReasonUnauthorizedDevice            RejectionReason = "unauthorized_device"
	ReasonDeviceAlreadyUsedToday        RejectionReason = "device_already_used_today"
	ReasonTransientStoreError           RejectionReason = "transient_store_error"
	ReasonInternalError                 RejectionReason = "internal_error"

	// Caller-side gate (QR envelope and proximity).
	ReasonQRRequired         RejectionReason = "qr_required"
	ReasonQRInvalid          RejectionReason = "qr_invalid"
	ReasonQRExpired          RejectionReason = "qr_expired"
	ReasonWeekMismatch       RejectionReason = "week_mismatch"
	ReasonLocationRequired   RejectionReason = "location_required"
	ReasonLocationOutOfRange RejectionReason = "location_out_of_range"
)
