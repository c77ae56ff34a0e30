/*Package gantry drives a small CNC gantry as a laboratory positioning stage.

It owns the full motion pipeline: named-location resolution, travel envelope
validation, G-code encoding, and the connection/homing state machine deciding
when motion commands are legal.  One Machine instance owns one physical
machine; there are no package-level singletons, so several gantries can be
driven from one process and tested in isolation against a simulator.

Every operation is synchronous: it returns once the controller acknowledges
the motion complete, or once it has definitively failed.  An internal mutex
serializes callers because the wire protocol has no request identifiers and
the physical machine cannot execute overlapping moves.
*/
package gantry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/AccelerationConsortium/cnc-machine/comm"
	"github.com/AccelerationConsortium/cnc-machine/coord"
	"github.com/AccelerationConsortium/cnc-machine/grbl"
	"github.com/AccelerationConsortium/cnc-machine/layout"
)

// State describes where the machine is in its connection/homing lifecycle.
type State int

const (
	// Disconnected means no channel to the controller is open.
	Disconnected State = iota

	// Unhomed means the channel is open but no homing cycle has completed;
	// absolute coordinates are meaningless and motion is rejected.
	Unhomed

	// Idle means the machine is homed with no motion in flight.
	Idle

	// Moving means a motion command is in flight.
	Moving

	// Faulted means a transport failure or alarm left the physical state
	// unknown.  Terminal until Close, Open and a fresh Home.
	Faulted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Unhomed:
		return "Connected-Unhomed"
	case Idle:
		return "Homed-Idle"
	case Moving:
		return "Moving"
	case Faulted:
		return "Faulted"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrNotHomed is generated when motion is commanded before a
	// successful homing cycle.
	ErrNotHomed = errors.New("machine is not homed, absolute coordinates are not trustworthy; home first")

	// ErrFaulted is generated when an operation is attempted on a faulted
	// machine.  Recover with Close, Open, Home.
	ErrFaulted = errors.New("machine is faulted; close, reopen and re-home to recover")
)

// Machine is the orchestrator for one physical gantry.
type Machine struct {
	sync.Mutex

	ctl *grbl.Controller
	reg *layout.Registry
	env Envelope

	// Feed is the feed rate for linear moves in mm/min.
	Feed int

	state State
}

// New returns a Machine in the Disconnected state.  reg may be nil if no
// deck description is in use; location moves will then fail with
// UnknownLocationError.
func New(ctl *grbl.Controller, reg *layout.Registry, env Envelope) *Machine {
	if reg == nil {
		reg, _ = layout.NewRegistry(nil)
	}
	return &Machine{ctl: ctl, reg: reg, env: env, Feed: 3000}
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.Lock()
	defer m.Unlock()
	return m.state
}

// Envelope returns the machine's travel envelope.
func (m *Machine) Envelope() Envelope {
	return m.env
}

// Registry returns the deck location registry.
func (m *Machine) Registry() *layout.Registry {
	return m.reg
}

// Open establishes the channel to the controller.  Opening an open machine
// is a no-op success.  A faulted machine stays faulted; it must be closed
// first so the channel is rebuilt from scratch.
func (m *Machine) Open() error {
	m.Lock()
	defer m.Unlock()
	if m.state == Faulted {
		return ErrFaulted
	}
	if m.state != Disconnected {
		return nil
	}
	err := m.ctl.Open()
	if err != nil {
		return err
	}
	m.state = Unhomed
	return nil
}

// Close releases the channel.  Closing a closed machine is a no-op success.
// Close always leaves the machine Disconnected, even if the underlying
// handle errors on release, so the caller can retry Open.
func (m *Machine) Close() error {
	m.Lock()
	defer m.Unlock()
	err := m.ctl.Close()
	m.state = Disconnected
	return err
}

// Home runs the homing cycle and re-establishes the machine's absolute
// reference.  Legal from Connected-Unhomed and Homed-Idle.  Any failure
// faults the machine: a partially executed homing sequence leaves the
// position unknown.
func (m *Machine) Home() error {
	m.Lock()
	defer m.Unlock()
	switch m.state {
	case Disconnected:
		return comm.ErrNotConnected
	case Faulted:
		return ErrFaulted
	}
	m.state = Moving
	err := m.ctl.SendScript(grbl.HomeSequence())
	if err != nil {
		m.state = Faulted
		return err
	}
	m.state = Idle
	return nil
}

// MoveToPoint moves to an absolute position with a linear feed move.
func (m *Machine) MoveToPoint(p coord.Point) error {
	m.Lock()
	defer m.Unlock()
	err := m.motionLegal()
	if err != nil {
		return err
	}
	err = m.env.Validate(p)
	if err != nil {
		return err
	}
	m.state = Moving
	return m.finish(m.ctl.Send(grbl.Move(grbl.Linear, p, m.Feed)))
}

// Origin returns to the work origin, equivalent to MoveToPoint(0, 0, 0).
func (m *Machine) Origin() error {
	return m.MoveToPoint(coord.Point{})
}

// MoveToLocation moves to a named single-point location.
func (m *Machine) MoveToLocation(name string) error {
	p, err := m.reg.ResolvePoint(name)
	if err != nil {
		return err
	}
	return m.MoveToPoint(p)
}

// MoveToWell moves to one cell of a named array location by row and column.
func (m *Machine) MoveToWell(name string, row, col int) error {
	p, err := m.reg.Resolve(name, row, col)
	if err != nil {
		return err
	}
	return m.MoveToPoint(p)
}

// MoveToWellIndex moves to one cell of a named array location by flat
// row-major index.
func (m *Machine) MoveToWellIndex(name string, index int) error {
	p, err := m.reg.ResolveIndex(name, index)
	if err != nil {
		return err
	}
	return m.MoveToPoint(p)
}

// SafeMoveToPoint moves to an absolute position in three legs: pull the
// head to the top of the envelope in the machine frame, traverse XY, then
// descend to the target Z.  Use when the path may cross labware.
func (m *Machine) SafeMoveToPoint(p coord.Point) error {
	m.Lock()
	defer m.Unlock()
	err := m.motionLegal()
	if err != nil {
		return err
	}
	err = m.env.Validate(p)
	if err != nil {
		return err
	}
	m.state = Moving
	return m.finish(m.ctl.SendScript([]string{
		grbl.PullUp(m.env.Z.Max),
		grbl.MoveXY(grbl.Linear, p.X, p.Y, m.Feed),
		grbl.MoveZ(grbl.Linear, p.Z, m.Feed),
	}))
}

// MoveThroughPoints visits each point in order with linear moves.  Every
// point is envelope-checked before any motion is commanded, so an
// out-of-range waypoint fails the whole path instead of being skipped
// mid-run.
func (m *Machine) MoveThroughPoints(pts []coord.Point) error {
	m.Lock()
	defer m.Unlock()
	err := m.motionLegal()
	if err != nil {
		return err
	}
	cmds := make([]string, 0, len(pts))
	for _, p := range pts {
		err = m.env.Validate(p)
		if err != nil {
			return err
		}
		cmds = append(cmds, grbl.Move(grbl.Linear, p, m.Feed))
	}
	if len(cmds) == 0 {
		return nil
	}
	m.state = Moving
	return m.finish(m.ctl.SendScript(cmds))
}

// Pos queries the controller for the current machine position.  Legal in
// any connected state; position from an unhomed machine is relative to
// wherever it powered on.
func (m *Machine) Pos() (coord.Point, error) {
	m.Lock()
	defer m.Unlock()
	if m.state == Disconnected {
		return coord.Point{}, comm.ErrNotConnected
	}
	rep, err := m.ctl.QueryStatus()
	if err != nil {
		return coord.Point{}, err
	}
	return rep.MPos, nil
}

// WaitUntilIdle polls the controller status at 10 Hz until it reports no
// motion in progress, or faults the machine if maxWait elapses first.
func (m *Machine) WaitUntilIdle(maxWait time.Duration) error {
	m.Lock()
	defer m.Unlock()
	if m.state == Disconnected {
		return comm.ErrNotConnected
	}
	limiter := rate.NewLimiter(rate.Every(100*time.Millisecond), 1)
	deadline := time.Now().Add(maxWait)
	var last grbl.Report
	for {
		limiter.Wait(context.Background())
		rep, err := m.ctl.QueryStatus()
		if err == nil {
			last = rep
			if rep.Idle() {
				return nil
			}
		}
		if time.Now().After(deadline) {
			m.state = Faulted
			return fmt.Errorf("machine did not become idle within %v, last state %q", maxWait, last.State)
		}
	}
}

// Raw sends one raw command line and reports the acknowledgement, for
// bring-up and debugging.  It does not bypass the connection requirement
// but does bypass homing and envelope checks; a rejected command leaves
// state alone, a transport failure faults as usual.
func (m *Machine) Raw(cmd string) (string, error) {
	m.Lock()
	defer m.Unlock()
	if m.state == Disconnected {
		return "", comm.ErrNotConnected
	}
	err := m.ctl.Send(cmd)
	if err != nil {
		var reject grbl.RejectError
		if errors.As(err, &reject) {
			return "", err
		}
		m.state = Faulted
		return "", err
	}
	return grbl.OKToken, nil
}

// motionLegal decides whether a motion command may be issued at all.
// Called with the lock held.
func (m *Machine) motionLegal() error {
	switch m.state {
	case Disconnected:
		return comm.ErrNotConnected
	case Faulted:
		return ErrFaulted
	case Unhomed:
		return ErrNotHomed
	}
	return nil
}

// finish maps the outcome of a transmitted motion onto the state machine.
// A firmware rejection leaves the channel and position intact, so the
// machine returns to Homed-Idle; anything else (timeout, alarm, broken
// channel) means the physical state is unknown and the machine faults.
// Called with the lock held and state == Moving.
func (m *Machine) finish(err error) error {
	if err == nil {
		m.state = Idle
		return nil
	}
	var reject grbl.RejectError
	if errors.As(err, &reject) {
		m.state = Idle
		return err
	}
	m.state = Faulted
	return err
}
