package grbl

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/AccelerationConsortium/cnc-machine/coord"
)

// Simulator is an in-memory stand-in for a GRBL controller, used when no
// physical machine is attached (tests, dry runs, -mock server mode).  It
// implements io.ReadWriteCloser so it can sit behind a comm.Link like a
// real port.  An empty receive buffer reads as a timeout, matching the
// behavior of a serial port with a read timeout configured.
type Simulator struct {
	sync.Mutex

	pos      coord.Point
	homed    bool
	runPolls int

	in     bytes.Buffer
	out    bytes.Buffer
	closed bool

	cmds []string

	rejectCode int
	alarmCode  int
	dropNext   bool
}

// NewSimulator returns a Simulator with the reset banner queued, as a real
// controller prints it on connect.
func NewSimulator() *Simulator {
	s := &Simulator{}
	s.out.WriteString("\r\nGrbl 1.1h ['$' for help]\r\n")
	return s
}

// RejectNext makes the next command answer error:code instead of executing.
func (s *Simulator) RejectNext(code int) {
	s.Lock()
	defer s.Unlock()
	s.rejectCode = code
}

// AlarmNext makes the next command answer ALARM:code.
func (s *Simulator) AlarmNext(code int) {
	s.Lock()
	defer s.Unlock()
	s.alarmCode = code
}

// DropNext swallows the next command without any reply, simulating a
// controller that never acknowledges.
func (s *Simulator) DropNext() {
	s.Lock()
	defer s.Unlock()
	s.dropNext = true
}

// Position returns the simulated machine position.
func (s *Simulator) Position() coord.Point {
	s.Lock()
	defer s.Unlock()
	return s.pos
}

// Homed reports whether a homing cycle has run.
func (s *Simulator) Homed() bool {
	s.Lock()
	defer s.Unlock()
	return s.homed
}

// Commands returns every non-realtime command line received, in order.
func (s *Simulator) Commands() []string {
	s.Lock()
	defer s.Unlock()
	out := make([]string, len(s.cmds))
	copy(out, s.cmds)
	return out
}

func (s *Simulator) Write(p []byte) (int, error) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return 0, io.ErrClosedPipe
	}
	for _, b := range p {
		// realtime commands are consumed immediately, outside the
		// line protocol
		if b == '?' {
			s.writeStatus()
			continue
		}
		s.in.WriteByte(b)
	}
	for {
		line, err := s.in.ReadString('\n')
		if err != nil {
			// partial line, keep for the next write
			s.in.Reset()
			s.in.WriteString(line)
			break
		}
		s.exec(strings.TrimSpace(line))
	}
	return len(p), nil
}

func (s *Simulator) Read(p []byte) (int, error) {
	s.Lock()
	if s.closed {
		s.Unlock()
		return 0, io.ErrClosedPipe
	}
	if s.out.Len() == 0 {
		s.Unlock()
		// pace the consumer's retry loop the way a blocking port would
		time.Sleep(5 * time.Millisecond)
		return 0, io.EOF
	}
	defer s.Unlock()
	return s.out.Read(p)
}

func (s *Simulator) Close() error {
	s.Lock()
	defer s.Unlock()
	s.closed = true
	return nil
}

func (s *Simulator) writeStatus() {
	state := StateIdle
	if s.runPolls > 0 {
		state = StateRun
		s.runPolls--
	}
	fmt.Fprintf(&s.out, "<%s|MPos:%.3f,%.3f,%.3f|FS:0,0>\r\n",
		state, s.pos.X, s.pos.Y, s.pos.Z)
}

func (s *Simulator) reply(line string) {
	s.out.WriteString(line + "\r\n")
}

func (s *Simulator) exec(cmd string) {
	if cmd == "" {
		s.reply(OKToken)
		return
	}
	s.cmds = append(s.cmds, cmd)
	if s.dropNext {
		s.dropNext = false
		return
	}
	if s.rejectCode != 0 {
		s.reply(fmt.Sprintf("error:%d", s.rejectCode))
		s.rejectCode = 0
		return
	}
	if s.alarmCode != 0 {
		s.reply(fmt.Sprintf("ALARM:%d", s.alarmCode))
		s.alarmCode = 0
		return
	}
	switch {
	case cmd == HomeCycle:
		s.homed = true
		s.pos = coord.Point{}
		s.reply(OKToken)
	case cmd == Unlock:
		s.reply(OKToken)
	case strings.HasPrefix(cmd, "$"):
		s.reply("error:3")
	default:
		s.applyMotion(cmd)
		s.reply(OKToken)
	}
}

// applyMotion updates the virtual position from any axis words in the block.
func (s *Simulator) applyMotion(cmd string) {
	moved := false
	for _, tok := range strings.Fields(cmd) {
		if len(tok) < 2 {
			continue
		}
		val, err := strconv.ParseFloat(tok[1:], 64)
		if err != nil {
			continue
		}
		switch tok[0] {
		case 'X':
			s.pos.X = val
			moved = true
		case 'Y':
			s.pos.Y = val
			moved = true
		case 'Z':
			s.pos.Z = val
			moved = true
		}
	}
	if moved {
		s.runPolls = 2
	}
}
