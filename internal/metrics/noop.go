package metrics

import "time"

// NoopRecorder implements Recorder with no-op methods.
type NoopRecorder struct{}

// NewNoop returns a Recorder that discards all metrics.
func NewNoop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncMessageHandled(mode, status string)                         {}
func (n *NoopRecorder) ObserveGenerationDuration(mode string, duration time.Duration) {}
func (n *NoopRecorder) AddCreditsDebited(amount int64)                                {}
func (n *NoopRecorder) AddCreditsGranted(amount int64)                                {}
func (n *NoopRecorder) IncChatCreated()                                               {}
func (n *NoopRecorder) IncChatDeleted()                                               {}
func (n *NoopRecorder) IncAuthFailure(reason string)                                  {}
func (n *NoopRecorder) IncGalleryCacheHit()                                           {}
func (n *NoopRecorder) IncGalleryCacheMiss()                                          {}
