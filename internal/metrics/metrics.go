// Package metrics provides lightweight hooks for instrumentation.
package metrics

import "time"

// Message outcome labels.
const (
	StatusSuccess             = "success"
	StatusInsufficientCredits = "insufficient_credits"
	StatusChatNotFound        = "chat_not_found"
	StatusProviderError       = "provider_error"
	StatusInvalid             = "invalid"
	StatusFailed              = "failed"
)

// Recorder captures metric events for the application.
type Recorder interface {
	// Message orchestration
	IncMessageHandled(mode, status string)
	ObserveGenerationDuration(mode string, duration time.Duration)

	// Ledger
	AddCreditsDebited(amount int64)
	AddCreditsGranted(amount int64)

	// Chats
	IncChatCreated()
	IncChatDeleted()

	// Auth and gallery
	IncAuthFailure(reason string)
	IncGalleryCacheHit()
	IncGalleryCacheMiss()
}

// Snapshotter exposes a snapshot of current metrics.
type Snapshotter interface {
	Snapshot() Snapshot
}
