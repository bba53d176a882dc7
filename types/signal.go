// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package types

import (
	"sync"
	"time"
)

// SyncPoint identifies a point on an executor's timeline: results of
// everything submitted to Domain up to and including Visibility are
// available to anyone who waits for it.
type SyncPoint struct {
	Domain     Domain
	Visibility uint64
}

// SignalStatus is the lifecycle state of a [Signal].
type SignalStatus uint8

const (
	// SignalDisarmed is the initial state; the signal must be armed by
	// linking it into a graph before it can be synchronized against.
	SignalDisarmed SignalStatus = iota

	// SignalSynchronizable means the work is submitted: the result is
	// available on the device with appropriate synchronization.
	SignalSynchronizable

	// SignalHostAvailable means the result is observable on the host,
	// and on the device without synchronization.
	SignalHostAvailable
)

var signalStatusNames = [...]string{
	SignalDisarmed:       "Disarmed",
	SignalSynchronizable: "Synchronizable",
	SignalHostAvailable:  "HostAvailable",
}

func (s SignalStatus) String() string {
	if int(s) < len(signalStatusNames) {
		return signalStatusNames[s]
	}
	return "Unknown"
}

// Signal encapsulates a sync point that can be waited on in the future.
// Every externally observable graph output owns one; it transitions
// Disarmed -> Synchronizable on submit and -> HostAvailable when the
// host observes the executor timeline reach the source visibility.
type Signal struct {
	mu     sync.Mutex
	cond   *sync.Cond
	status SignalStatus

	// Source is the sync point that completes this signal. Valid once
	// status >= SignalSynchronizable.
	Source SyncPoint

	// Err carries a runtime error observed by the executor, if any.
	Err error
}

// NewSignal returns a disarmed signal.
func NewSignal() *Signal {
	s := &Signal{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Status returns the current state.
func (s *Signal) Status() SignalStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Advance raises the signal to at least the given state. Lowering is
// ignored; signals only move forward.
func (s *Signal) Advance(to SignalStatus, source SyncPoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if to <= s.status {
		return
	}
	s.status = to
	s.Source = source
	s.cond.Broadcast()
}

// Fail records a runtime error and completes the signal so waiters
// unblock. The signal stays in Synchronizable state: the caller may
// retry the wait after inspecting Err.
func (s *Signal) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
	s.cond.Broadcast()
}

// Wait blocks until the signal reaches HostAvailable, an error is
// recorded, or the timeout elapses. A zero timeout waits forever.
// On timeout the signal remains pending and the caller may re-wait.
func (s *Signal) Wait(timeout time.Duration) error {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
		// The condition variable has no timed wait; poke waiters when
		// the deadline passes.
		t := time.AfterFunc(timeout, func() {
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		})
		defer t.Stop()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.status < SignalHostAvailable && s.Err == nil {
		if timeout > 0 && !time.Now().Before(deadline) {
			return ErrTimeout
		}
		s.cond.Wait()
	}
	return s.Err
}

// Poll reports whether the signal has reached HostAvailable, without
// blocking.
func (s *Signal) Poll() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == SignalHostAvailable
}

// AcquireRelease pairs a signal with the last uses performed on the
// resources it guards, so that a later acquirer can compute correct
// synchronization against the releaser. The back-reference from
// acquirer to releaser is carried by this side record, never by graph
// edges.
type AcquireRelease struct {
	Signal

	// LastUse records, per guarded resource, the final access the
	// releasing side performed.
	LastUse []ResourceUse
}

// NewAcquireRelease returns a disarmed acquire/release record.
func NewAcquireRelease() *AcquireRelease {
	ar := &AcquireRelease{}
	ar.cond = sync.NewCond(&ar.mu)
	return ar
}
