// Package call implements the call session state machine. A session owns at
// most one active call and moves it through the phases idle, dialing,
// ringing and connected.
package call

import (
	"sync"
	"time"

	"parley/internal/clock"
	"parley/internal/models"
)

const (
	DefaultConnectDelay = 3 * time.Second
	DefaultRingTimeout  = 30 * time.Second
)

type Config struct {
	// User is the authenticated session owner. A zero-ID user makes
	// InitiateCall a no-op.
	User  models.User
	Clock clock.Clock

	// ConnectDelay simulates the remote side answering an outgoing call.
	ConnectDelay time.Duration
	// RingTimeout ends an unanswered incoming call as missed. Zero or
	// negative disables the timeout.
	RingTimeout time.Duration

	// StateCallback receives the call state after every transition.
	StateCallback func(models.CallState)
	// EndCallback receives the final pre-reset state and the reason the
	// call ended.
	EndCallback func(models.CallState, models.CallEndReason)
}

type Session struct {
	mux sync.Mutex

	user         models.User
	clk          clock.Clock
	connectDelay time.Duration
	ringTimeout  time.Duration
	stateCb      func(models.CallState)
	endCb        func(models.CallState, models.CallEndReason)

	state        models.CallState
	connectTimer clock.Timer
	ringTimer    clock.Timer
	// gen invalidates timers of superseded calls: a fire whose generation
	// does not match is stale and must be a no-op.
	gen uint64
}

func New(cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clock.System()
	}
	if cfg.ConnectDelay <= 0 {
		cfg.ConnectDelay = DefaultConnectDelay
	}
	return &Session{
		user:         cfg.User,
		clk:          cfg.Clock,
		connectDelay: cfg.ConnectDelay,
		ringTimeout:  cfg.RingTimeout,
		stateCb:      cfg.StateCallback,
		endCb:        cfg.EndCallback,
	}
}

// InitiateCall starts an outgoing call: idle -> dialing. The call
// auto-connects after the connect delay, simulating the remote answer.
// StartedAt is set optimistically at initiation and is only used for
// duration display. Returns ErrCallBusy while another call is in progress.
func (s *Session) InitiateCall(recipient models.User, callType models.CallType) error {
	if s.user.ID == "" {
		return nil
	}

	s.mux.Lock()
	if s.state.InCall {
		s.mux.Unlock()
		return models.ErrCallBusy
	}

	r := recipient
	s.state = models.CallState{
		InCall:       true,
		CallType:     callType,
		Recipient:    &r,
		VideoEnabled: callType == models.CallTypeVideo,
		StartedAt:    s.clk.Now(),
	}
	s.gen++
	gen := s.gen
	s.connectTimer = s.clk.AfterFunc(s.connectDelay, func() {
		s.autoConnect(gen)
	})
	st := s.state
	s.mux.Unlock()

	s.emitState(st)
	return nil
}

func (s *Session) autoConnect(gen uint64) {
	s.mux.Lock()
	if gen != s.gen || !s.state.InCall || s.state.Connected {
		s.mux.Unlock()
		return
	}
	s.connectTimer = nil
	s.state.Connected = true
	st := s.state
	s.mux.Unlock()

	s.emitState(st)
}

// ReceiveCall offers an incoming call: idle -> ringing. No StartedAt yet;
// duration counts from acceptance. Returns ErrCallBusy while another call
// is in progress.
func (s *Session) ReceiveCall(caller models.User, callType models.CallType) error {
	s.mux.Lock()
	if s.state.InCall {
		s.mux.Unlock()
		return models.ErrCallBusy
	}

	c := caller
	s.state = models.CallState{
		InCall:       true,
		CallType:     callType,
		Incoming:     true,
		Caller:       &c,
		VideoEnabled: callType == models.CallTypeVideo,
	}
	s.gen++
	gen := s.gen
	if s.ringTimeout > 0 {
		s.ringTimer = s.clk.AfterFunc(s.ringTimeout, func() {
			s.ringExpired(gen)
		})
	}
	st := s.state
	s.mux.Unlock()

	s.emitState(st)
	return nil
}

func (s *Session) ringExpired(gen uint64) {
	s.mux.Lock()
	if gen != s.gen || !s.state.InCall || s.state.Connected || !s.state.Incoming {
		s.mux.Unlock()
		return
	}
	s.ringTimer = nil
	final := s.resetLocked()
	s.mux.Unlock()

	s.emitEnd(final, models.CallEndMissed)
}

// AcceptCall answers a ringing incoming call: ringing -> connected.
// Any other phase is a no-op.
func (s *Session) AcceptCall() {
	s.mux.Lock()
	if !s.state.InCall || !s.state.Incoming || s.state.Connected {
		s.mux.Unlock()
		return
	}
	s.stopTimersLocked()
	s.state.Incoming = false
	s.state.Connected = true
	s.state.StartedAt = s.clk.Now()
	st := s.state
	s.mux.Unlock()

	s.emitState(st)
}

// RejectCall declines a ringing or dialing call and resets to idle.
// Idle and connected phases are no-ops; ending a connected call is EndCall.
func (s *Session) RejectCall() {
	s.mux.Lock()
	if !s.state.InCall || s.state.Connected {
		s.mux.Unlock()
		return
	}
	final := s.resetLocked()
	s.mux.Unlock()

	s.emitEnd(final, models.CallEndRejected)
}

// EndCall terminates the call from any in-call phase and resets to idle.
// Safe to call when already idle.
func (s *Session) EndCall() {
	s.mux.Lock()
	if !s.state.InCall {
		s.mux.Unlock()
		return
	}
	var reason models.CallEndReason
	switch {
	case s.state.Connected:
		reason = models.CallEndCompleted
	case s.state.Incoming:
		reason = models.CallEndRejected
	default:
		reason = models.CallEndCanceled
	}
	final := s.resetLocked()
	s.mux.Unlock()

	s.emitEnd(final, reason)
}

// ToggleMute flips the mute flag. No-op outside a call; never changes the
// call phase.
func (s *Session) ToggleMute() {
	s.mux.Lock()
	if !s.state.InCall {
		s.mux.Unlock()
		return
	}
	s.state.Muted = !s.state.Muted
	st := s.state
	s.mux.Unlock()

	s.emitState(st)
}

// ToggleVideo flips the video flag. No-op outside a call; never changes the
// call phase.
func (s *Session) ToggleVideo() {
	s.mux.Lock()
	if !s.state.InCall {
		s.mux.Unlock()
		return
	}
	s.state.VideoEnabled = !s.state.VideoEnabled
	st := s.state
	s.mux.Unlock()

	s.emitState(st)
}

// State returns a copy of the current call state.
func (s *Session) State() models.CallState {
	s.mux.Lock()
	defer s.mux.Unlock()
	st := s.state
	if st.Caller != nil {
		c := *st.Caller
		st.Caller = &c
	}
	if st.Recipient != nil {
		r := *st.Recipient
		st.Recipient = &r
	}
	return st
}

// Close cancels pending timers and resets to idle without emitting events.
// Called on logout.
func (s *Session) Close() {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.resetLocked()
}

// resetLocked clears the state back to the idle default, cancels pending
// timers and invalidates their generation. Returns the pre-reset state.
func (s *Session) resetLocked() models.CallState {
	final := s.state
	s.stopTimersLocked()
	s.gen++
	s.state = models.CallState{}
	return final
}

func (s *Session) stopTimersLocked() {
	if s.connectTimer != nil {
		s.connectTimer.Stop()
		s.connectTimer = nil
	}
	if s.ringTimer != nil {
		s.ringTimer.Stop()
		s.ringTimer = nil
	}
}

func (s *Session) emitState(st models.CallState) {
	if s.stateCb != nil {
		s.stateCb(st)
	}
}

func (s *Session) emitEnd(final models.CallState, reason models.CallEndReason) {
	if s.endCb != nil {
		s.endCb(final, reason)
	}
	// The idle state is pushed as well so consumers clear their views.
	s.emitState(models.CallState{})
}
