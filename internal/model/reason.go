package model

// Reason is a machine-readable access outcome returned to viewing clients.
type Reason string

const (
	ReasonGranted             Reason = "GRANTED"
	ReasonLocationUnavailable Reason = "LOCATION_UNAVAILABLE"
	ReasonGeoBlocked          Reason = "GEO_BLOCKED"
	ReasonNoPurchase          Reason = "NO_PURCHASE"
	ReasonSessionSuperseded   Reason = "SESSION_SUPERSEDED"
	ReasonSessionExpired      Reason = "SESSION_EXPIRED"
	ReasonSessionNotFound     Reason = "SESSION_NOT_FOUND"
	// ReasonBypassInvalid is only ever logged; a bad bypass token falls
	// through to normal verification.
	ReasonBypassInvalid Reason = "BYPASS_INVALID"
)

var reasonMessages = map[Reason]string{
	ReasonGranted:             "Enjoy the show.",
	ReasonLocationUnavailable: "We need your location to confirm you are outside the venue blackout area. Allow location access and try again.",
	ReasonGeoBlocked:          "This event is blacked out near the venue. Grab an in-person ticket instead.",
	ReasonNoPurchase:          "We could not find a completed purchase for this email. Check your receipt email or buy access.",
	ReasonSessionSuperseded:   "You are watching this event on another device. Resume here to take over.",
	ReasonSessionExpired:      "Your viewing session timed out. Resume to continue watching.",
	ReasonSessionNotFound:     "Your viewing session is no longer valid. Verify your access again.",
	ReasonBypassInvalid:       "Bypass token not accepted.",
}

// Message returns the viewer-facing instruction for the reason.
func (r Reason) Message() string {
	if m, ok := reasonMessages[r]; ok {
		return m
	}
	return string(r)
}

// Retryable reports whether the viewer can fix the outcome themselves by
// retrying (granting location, buying, reclaiming).
func (r Reason) Retryable() bool {
	switch r {
	case ReasonGeoBlocked:
		return false
	}
	return r != ReasonGranted
}
