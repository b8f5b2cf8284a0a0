package media

import (
	"errors"
	"os"
	"strings"
	"syscall"

	"github.com/dkeye/VideoCall/internal/domain"
)

// Classify maps a capture failure to a MediaError kind.
func Classify(err error) *domain.MediaError {
	if err == nil {
		return nil
	}
	var me *domain.MediaError
	if errors.As(err, &me) {
		return me
	}
	kind := domain.MediaUnknown
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, os.ErrPermission), strings.Contains(msg, "permission denied"):
		kind = domain.MediaPermissionDenied
	case errors.Is(err, syscall.EBUSY), strings.Contains(msg, "busy"):
		kind = domain.MediaDeviceBusy
	case errors.Is(err, os.ErrNotExist), errors.Is(err, syscall.ENODEV),
		strings.Contains(msg, "failed to find"), strings.Contains(msg, "not found"):
		kind = domain.MediaDeviceNotFound
	}
	return &domain.MediaError{Kind: kind, Err: err}
}
