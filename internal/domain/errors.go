package domain

import (
	"errors"
	"fmt"
)

var (
	ErrSignalingTimeout  = errors.New("signaling connection timeout")
	ErrChannelClosed     = errors.New("signaling channel closed")
	ErrBackpressure      = errors.New("backpressure")
	ErrProtocolViolation = errors.New("protocol violation")
	ErrNoLocalStream     = errors.New("no local stream")
	ErrUnknownQuality    = errors.New("unknown quality preset")
)

type MediaErrorKind int

const (
	MediaUnknown MediaErrorKind = iota
	MediaPermissionDenied
	MediaDeviceNotFound
	MediaDeviceBusy
)

func (k MediaErrorKind) String() string {
	switch k {
	case MediaPermissionDenied:
		return "PermissionDenied"
	case MediaDeviceNotFound:
		return "DeviceNotFound"
	case MediaDeviceBusy:
		return "DeviceBusy"
	default:
		return "Unknown"
	}
}

// NotificationKey is the user-facing message key for the failure kind.
func (k MediaErrorKind) NotificationKey() string {
	switch k {
	case MediaPermissionDenied:
		return KeyMediaAccessDenied
	case MediaDeviceNotFound:
		return KeyNoMediaDevice
	case MediaDeviceBusy:
		return KeyMediaInUse
	default:
		return KeyMediaAccessFailed
	}
}

// MediaError is returned when local capture cannot be acquired. Recoverable.
type MediaError struct {
	Kind MediaErrorKind
	Err  error
}

func (e *MediaError) Error() string {
	if e.Err == nil {
		return "media acquisition: " + e.Kind.String()
	}
	return fmt.Sprintf("media acquisition: %s: %v", e.Kind, e.Err)
}

func (e *MediaError) Unwrap() error { return e.Err }

// SignalingError reports that the relay channel could not be opened.
type SignalingError struct {
	Room RoomID
	Err  error
}

func (e *SignalingError) Error() string {
	return fmt.Sprintf("signaling room %q: %v", e.Room, e.Err)
}

func (e *SignalingError) Unwrap() error { return e.Err }

// NegotiationError is scoped to one participant and never aborts the room.
type NegotiationError struct {
	Participant ParticipantID
	Op          string
	Err         error
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation with %s: %s: %v", e.Participant, e.Op, e.Err)
}

func (e *NegotiationError) Unwrap() error { return e.Err }
