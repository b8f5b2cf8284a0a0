package core

import (
	"time"

	"github.com/dkeye/VideoCall/internal/domain"
)

// Notifier is the user-facing notification sink.
type Notifier interface {
	Notify(key string, severity domain.Severity, duration time.Duration)
}

// Settings is the preference store collaborator.
type Settings interface {
	GetString(key string) string
	GetBool(key string) bool
	Set(key string, value any)
}

// Translator resolves a message key to display text.
type Translator interface {
	Translate(key string) string
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(key string) string

func (f TranslatorFunc) Translate(key string) string { return f(key) }

//go:generate mockgen -destination=mocks/notifier_mock.go -package=mocks github.com/dkeye/VideoCall/internal/core Notifier
