package http

import (
	"sync"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Notification struct {
	ID       string          `json:"id"`
	Key      string          `json:"key"`
	Text     string          `json:"text"`
	Severity domain.Severity `json:"severity"`
	At       time.Time       `json:"at"`
	Expires  time.Time       `json:"expires"`
}

// Notifications is the notifier the call reports to. It keeps the most
// recent entries for the UI to poll.
type Notifications struct {
	tr  core.Translator
	max int
	now func() time.Time

	mu     sync.Mutex
	recent []Notification
}

func NewNotifications(tr core.Translator, max int) *Notifications {
	if max <= 0 {
		max = 50
	}
	if tr == nil {
		tr = EnglishCatalog
	}
	return &Notifications{tr: tr, max: max, now: time.Now}
}

func (n *Notifications) Notify(key string, severity domain.Severity, duration time.Duration) {
	at := n.now()
	note := Notification{
		ID:       uuid.NewString(),
		Key:      key,
		Text:     n.tr.Translate(key),
		Severity: severity,
		At:       at,
		Expires:  at.Add(duration),
	}
	log.WithLevel(levelFor(severity)).Str("module", "notify").Str("key", key).Msg(note.Text)

	n.mu.Lock()
	n.recent = append(n.recent, note)
	if len(n.recent) > n.max {
		n.recent = append([]Notification(nil), n.recent[len(n.recent)-n.max:]...)
	}
	n.mu.Unlock()
}

// Recent returns every retained notification, oldest first.
func (n *Notifications) Recent() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification{}, n.recent...)
}

// Active returns the notifications still on screen.
func (n *Notifications) Active() []Notification {
	now := n.now()
	n.mu.Lock()
	defer n.mu.Unlock()
	out := []Notification{}
	for _, note := range n.recent {
		if now.Before(note.Expires) {
			out = append(out, note)
		}
	}
	return out
}

func levelFor(s domain.Severity) zerolog.Level {
	switch s {
	case domain.SeverityError:
		return zerolog.ErrorLevel
	case domain.SeverityWarning:
		return zerolog.WarnLevel
	default:
		return zerolog.InfoLevel
	}
}

// Catalog translates keys from a fixed table and echoes unknown keys.
type Catalog map[string]string

func (c Catalog) Translate(key string) string {
	if s, ok := c[key]; ok {
		return s
	}
	return key
}

var EnglishCatalog = Catalog{
	domain.KeyMediaAccessFailed:  "Could not access camera or microphone",
	domain.KeyMediaAccessDenied:  "Camera and microphone access was denied",
	domain.KeyNoMediaDevice:      "No camera or microphone found",
	domain.KeyMediaInUse:         "Camera or microphone is in use by another application",
	domain.KeyWSConnectionLost:   "Connection to the server was lost",
	domain.KeyUserJoined:         "A participant joined",
	domain.KeyUserLeft:           "A participant left",
	domain.KeyCallConnected:      "Call connected",
	domain.KeyCallFailed:         "Connection failed, reconnecting",
	domain.KeyConnectionDegraded: "Connection quality degraded",
	domain.KeyNegotiationFailed:  "Could not connect to a participant",
	domain.KeyCameraOn:           "Camera on",
	domain.KeyCameraOff:          "Camera off",
	domain.KeyMicOn:              "Microphone on",
	domain.KeyMicOff:             "Microphone off",
	domain.KeyAccessingMedia:     "Accessing camera and microphone...",
}
