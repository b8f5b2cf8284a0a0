package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/VideoCall/internal/adapters/capture"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	d    Deps
	feed feedConfig
}

func (h *handlers) state(c *gin.Context) {
	c.JSON(http.StatusOK, h.d.Call.Snapshot())
}

func (h *handlers) notifications(c *gin.Context) {
	if h.d.Notes == nil {
		c.JSON(http.StatusOK, gin.H{"notifications": []Notification{}})
		return
	}
	if c.Query("all") == "true" {
		c.JSON(http.StatusOK, gin.H{"notifications": h.d.Notes.Recent()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"notifications": h.d.Notes.Active()})
}

func (h *handlers) devices(c *gin.Context) {
	if h.d.Devices == nil {
		c.JSON(http.StatusOK, gin.H{"devices": []capture.DeviceInfo{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"devices": h.d.Devices.Enumerate()})
}

func (h *handlers) initMedia(c *gin.Context) {
	force, _ := strconv.ParseBool(c.DefaultQuery("force", "false"))
	if err := h.d.Call.InitializeLocalMedia(c.Request.Context(), force); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.d.Call.Snapshot())
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

func (h *handlers) toggle(kind domain.MediaKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req toggleRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
				return
			}
		}
		on, err := h.d.Call.Toggle(c.Request.Context(), kind, req.Enabled)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"kind": kind, "enabled": on})
	}
}

type preferencesRequest struct {
	VideoDeviceID *string `json:"video_device_id"`
	AudioDeviceID *string `json:"audio_device_id"`
	Quality       *string `json:"quality"`
	Mirror        *bool   `json:"mirror"`
}

func (h *handlers) preferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	ctx := c.Request.Context()
	if req.Quality != nil {
		if err := h.d.Call.SetVideoQuality(ctx, *req.Quality); err != nil {
			h.fail(c, err)
			return
		}
	}
	if req.VideoDeviceID != nil {
		if err := h.d.Call.SelectVideoDevice(ctx, *req.VideoDeviceID); err != nil {
			h.fail(c, err)
			return
		}
	}
	if req.AudioDeviceID != nil {
		if err := h.d.Call.SelectAudioDevice(ctx, *req.AudioDeviceID); err != nil {
			h.fail(c, err)
			return
		}
	}
	if req.Mirror != nil {
		if err := h.d.Call.SetShouldMirror(ctx, *req.Mirror); err != nil {
			h.fail(c, err)
			return
		}
	}
	c.JSON(http.StatusOK, h.d.Call.Snapshot().Media)
}

func (h *handlers) connect(c *gin.Context) {
	room := c.Param("id")
	if err := h.d.Call.ConnectToRoom(c.Request.Context(), room); err != nil {
		h.fail(c, err)
		return
	}
	log.Info().Str("module", "adapters.http").Str("room", room).Str("sid", c.GetString(tokenKey)).Msg("room joined")
	c.JSON(http.StatusOK, h.d.Call.Snapshot())
}

func (h *handlers) endCall(c *gin.Context) {
	if err := h.d.Call.EndCall(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail maps call errors onto HTTP statuses.
func (h *handlers) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	body := gin.H{"error": err.Error()}

	var me *domain.MediaError
	var se *domain.SignalingError
	switch {
	case errors.Is(err, domain.ErrRoomIDEmpty), errors.Is(err, domain.ErrRoomIDTooLong),
		errors.Is(err, domain.ErrRoomIDInvalid), errors.Is(err, domain.ErrUnknownQuality):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoLocalStream):
		status = http.StatusConflict
	case errors.As(err, &me):
		status = http.StatusServiceUnavailable
		body["kind"] = me.Kind.String()
		body["key"] = me.Kind.NotificationKey()
	case errors.Is(err, domain.ErrSignalingTimeout):
		status = http.StatusGatewayTimeout
	case errors.As(err, &se):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusRequestTimeout
	}
	log.Warn().Str("module", "adapters.http").Str("path", c.FullPath()).Int("status", status).Err(err).Msg("request failed")
	c.JSON(status, body)
}
