// Package media is the capability boundary for audio/video I/O. The call
// state machine only exposes booleans; this package turns them into a
// simulated capture stream. Acquisition failures are reported to the
// configured callback and never alter the call state.
package media

import (
	"errors"
	"sync"

	"parley/internal/models"
)

var ErrCaptureUnavailable = errors.New("media capture unavailable")

// Device describes a capture device, mirroring browser device enumeration.
type Device struct {
	ID    string `json:"deviceId"`
	Kind  string `json:"kind"` // audioinput or videoinput
	Label string `json:"label"`
}

// Devices returns the simulated capture devices of this host.
func Devices() []Device {
	return []Device{
		{ID: "audio-default", Kind: "audioinput", Label: "Built-in Microphone"},
		{ID: "audio-usb", Kind: "audioinput", Label: "USB Microphone"},
		{ID: "video-default", Kind: "videoinput", Label: "Integrated Camera"},
	}
}

// Stream is a simulated capture stream with per-track enablement.
type Stream struct {
	AudioEnabled bool
	VideoEnabled bool
}

// Controller drives stream acquisition from call state. It acquires on
// connect, applies mute/video toggles to the live stream and releases on
// hang-up.
type Controller struct {
	mu     sync.Mutex
	stream *Stream

	// failure, when set, makes the next acquisition fail. Used to simulate
	// denied capture permissions.
	failure error

	onError func(error)
}

func NewController(onError func(error)) *Controller {
	return &Controller{onError: onError}
}

// FailNextAcquire makes the next acquisition return err.
func (c *Controller) FailNextAcquire(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failure = err
}

// SyncCallState reconciles the stream with the call state: connected calls
// hold a stream with track enablement following the mute/video flags; all
// other phases hold none.
func (c *Controller) SyncCallState(st models.CallState) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !st.InCall || !st.Connected {
		c.stream = nil
		return
	}

	if c.stream == nil {
		if c.failure != nil {
			err := c.failure
			c.failure = nil
			if c.onError != nil {
				c.onError(err)
			}
			return
		}
		c.stream = &Stream{}
	}
	c.stream.AudioEnabled = !st.Muted
	c.stream.VideoEnabled = st.VideoEnabled
}

// Stream returns the live stream, or nil outside a connected call.
func (c *Controller) Stream() *Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stream == nil {
		return nil
	}
	s := *c.stream
	return &s
}
