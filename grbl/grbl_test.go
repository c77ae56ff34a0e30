package grbl

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/AccelerationConsortium/cnc-machine/comm"
)

// newSimController wires a fresh Simulator behind a Controller with timing
// cut down for tests.
func newSimController(t *testing.T) (*Controller, *Simulator) {
	t.Helper()
	sim := NewSimulator()
	link := comm.NewLink("sim", func() (io.ReadWriteCloser, error) {
		return sim, nil
	}, 20*time.Millisecond)
	ctl := NewController(link)
	ctl.WakeDelay = 10 * time.Millisecond
	ctl.AckTimeout = 250 * time.Millisecond
	err := ctl.Open()
	if err != nil {
		t.Fatal("open:", err)
	}
	t.Cleanup(func() { ctl.Close() })
	return ctl, sim
}

func TestOpenDrainsBanner(t *testing.T) {
	ctl, _ := newSimController(t)
	// if the banner were still buffered the first Send would misread it;
	// an ok here shows Wake cleared the greeting
	err := ctl.Send("G21")
	if err != nil {
		t.Error("send after open:", err)
	}
}

func TestSendOK(t *testing.T) {
	ctl, sim := newSimController(t)
	err := ctl.Send("G1 X10.000 Y5.000 Z0.000 F3000")
	if err != nil {
		t.Fatal("send:", err)
	}
	pos := sim.Position()
	if pos.X != 10 || pos.Y != 5 || pos.Z != 0 {
		t.Errorf("position not applied: %v", pos)
	}
}

func TestSendBlankIsNoop(t *testing.T) {
	ctl, sim := newSimController(t)
	err := ctl.Send("   ")
	if err != nil {
		t.Fatal("send:", err)
	}
	if n := len(sim.Commands()); n != 0 {
		t.Errorf("blank command should not be transmitted, saw %d", n)
	}
}

func TestSendReject(t *testing.T) {
	ctl, sim := newSimController(t)
	sim.RejectNext(9)
	err := ctl.Send("G1 X1.000 F100")
	var reject RejectError
	if !errors.As(err, &reject) {
		t.Fatalf("expected RejectError, got %v", err)
	}
	if reject.Code != 9 {
		t.Errorf("code: got %d expected 9", reject.Code)
	}
	if reject.Cmd != "G1 X1.000 F100" {
		t.Errorf("offending command not recorded: %q", reject.Cmd)
	}
}

func TestSendAlarm(t *testing.T) {
	ctl, sim := newSimController(t)
	sim.AlarmNext(1)
	err := ctl.Send("$H")
	var alarm AlarmError
	if !errors.As(err, &alarm) {
		t.Fatalf("expected AlarmError, got %v", err)
	}
	if alarm.Code != 1 {
		t.Errorf("code: got %d expected 1", alarm.Code)
	}
}

func TestSendTimeout(t *testing.T) {
	ctl, sim := newSimController(t)
	ctl.AckTimeout = 60 * time.Millisecond
	sim.DropNext()
	err := ctl.Send("G1 X1.000 F100")
	var timeout TimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if timeout.Cmd != "G1 X1.000 F100" {
		t.Errorf("unacknowledged command not recorded: %q", timeout.Cmd)
	}
}

func TestSendNotConnected(t *testing.T) {
	ctl, _ := newSimController(t)
	ctl.Close()
	err := ctl.Send("G21")
	if !errors.Is(err, comm.ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
}

func TestSendScriptStopsAtFirstFailure(t *testing.T) {
	ctl, sim := newSimController(t)
	sim.RejectNext(20)
	err := ctl.SendScript([]string{"G1 X1.000 F100", "G1 X2.000 F100"})
	var reject RejectError
	if !errors.As(err, &reject) {
		t.Fatalf("expected RejectError, got %v", err)
	}
	cmds := sim.Commands()
	if len(cmds) != 1 {
		t.Errorf("script should stop after the rejection, transmitted %v", cmds)
	}
}

func TestSendScriptRunsAll(t *testing.T) {
	ctl, sim := newSimController(t)
	err := ctl.SendScript(HomeSequence())
	if err != nil {
		t.Fatal("script:", err)
	}
	if !sim.Homed() {
		t.Error("homing cycle did not run")
	}
	if got := len(sim.Commands()); got != len(HomeSequence()) {
		t.Errorf("transmitted %d commands, expected %d", got, len(HomeSequence()))
	}
}

func TestQueryStatus(t *testing.T) {
	ctl, sim := newSimController(t)
	err := ctl.Send("G1 X7.500 Y2.000 Z-1.000 F3000")
	if err != nil {
		t.Fatal("send:", err)
	}
	r, err := ctl.QueryStatus()
	if err != nil {
		t.Fatal("query:", err)
	}
	if r.MPos != sim.Position() {
		t.Errorf("report position %v does not match simulator %v", r.MPos, sim.Position())
	}
}

func TestQueryStatusRunThenIdle(t *testing.T) {
	ctl, _ := newSimController(t)
	err := ctl.Send("G1 X1.000 F3000")
	if err != nil {
		t.Fatal("send:", err)
	}
	r, err := ctl.QueryStatus()
	if err != nil {
		t.Fatal("query:", err)
	}
	if r.Idle() {
		t.Error("first report after motion should be Run")
	}
	for i := 0; i < 3; i++ {
		r, err = ctl.QueryStatus()
		if err != nil {
			t.Fatal("query:", err)
		}
	}
	if !r.Idle() {
		t.Error("simulator should settle to Idle")
	}
}
