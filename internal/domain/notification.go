package domain

import "time"

type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Notification keys, resolved by the translator collaborator.
const (
	KeyMediaAccessFailed  = "webrtc.mediaAccessFailed"
	KeyMediaAccessDenied  = "webrtc.mediaAccessDenied"
	KeyNoMediaDevice      = "webrtc.noMediaDevice"
	KeyMediaInUse         = "webrtc.mediaInUse"
	KeyWSConnectionLost   = "webrtc.wsConnectionLost"
	KeyUserJoined         = "webrtc.userJoined"
	KeyUserLeft           = "webrtc.userLeft"
	KeyCallConnected      = "webrtc.callConnected"
	KeyCallFailed         = "webrtc.callFailed"
	KeyConnectionDegraded = "webrtc.connectionDegraded"
	KeyNegotiationFailed  = "webrtc.negotiationFailed"
	KeyCameraOn           = "webrtc.cameraOn"
	KeyCameraOff          = "webrtc.cameraOff"
	KeyMicOn              = "webrtc.micOn"
	KeyMicOff             = "webrtc.micOff"
	KeyAccessingMedia     = "loading.accessingMedia"
)

const (
	DurationMediaError = 8 * time.Second
	DurationError      = 5 * time.Second
	DurationEvent      = 3 * time.Second
	DurationToggle     = 2 * time.Second
)
