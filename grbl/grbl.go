/*Package grbl speaks the GRBL v1.1 line protocol to a gantry's onboard
controller.

The protocol is strictly serial: one command is written, then reply lines are
consumed until a terminal token arrives.  "ok" means the command completed,
"error:N" means the firmware rejected it (the channel is still good), and
"ALARM:N" means the machine entered an alarm state and must be re-homed
before motion is trusted.  There are no request identifiers, so pipelining
would corrupt the pairing of commands and acknowledgements; consumers must
keep exactly one command in flight.
*/
package grbl

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/AccelerationConsortium/cnc-machine/comm"
)

const (
	// OKToken is the terminal token for an accepted, completed command.
	OKToken = "ok"

	// ErrTokenPrefix begins a terminal rejection line, e.g. "error:9".
	ErrTokenPrefix = "error:"

	// AlarmTokenPrefix begins a terminal alarm line, e.g. "ALARM:1".
	AlarmTokenPrefix = "ALARM:"

	// BannerPrefix begins the greeting emitted on controller reset.
	BannerPrefix = "Grbl"
)

var (
	// ErrorCodes maps GRBL v1.1 "error:N" codes to their meanings.
	ErrorCodes = map[int]string{
		1:  "G-code word without a letter",
		2:  "bad or missing numeric value",
		3:  "unrecognized $ system command",
		4:  "negative value for an expected positive value",
		5:  "homing cycle not enabled in settings",
		6:  "minimum step pulse time too short",
		7:  "EEPROM read failed, settings restored to defaults",
		8:  "$ command only valid when idle",
		9:  "G-code locked out during alarm or jog state",
		10: "soft limits require homing to be enabled",
		11: "max characters per line exceeded",
		12: "setting exceeds maximum step rate",
		13: "safety door opened, door state initiated",
		14: "startup line exceeded EEPROM line length",
		15: "jog target exceeds machine travel",
		16: "invalid jog command",
		17: "laser mode requires PWM output",
		20: "unsupported or invalid G-code command",
		21: "more than one command from the same modal group",
		22: "feed rate undefined",
		23: "command requires an integer value",
		24: "two commands both requiring axis words",
		25: "G-code word repeated in block",
		26: "command requires axis words, none found",
		27: "line number out of range",
		28: "command missing required P or L value",
		29: "unsupported work coordinate system",
		30: "G53 requires G0 or G1 motion mode",
		31: "unused axis words with G80 active",
		32: "arc traced with no axis words in plane",
		33: "motion command has an invalid target",
		34: "arc radius calculation error",
		35: "arc missing IJK offset words",
		36: "unused leftover G-code words in block",
		37: "tool length offset assigned to wrong axis",
		38: "tool number greater than supported",
	}

	// AlarmCodes maps GRBL v1.1 "ALARM:N" codes to their meanings.
	AlarmCodes = map[int]string{
		1: "hard limit triggered, position likely lost",
		2: "motion target exceeds machine travel",
		3: "reset while in motion, position lost",
		4: "probe fail, probe not in expected initial state",
		5: "probe fail, no contact before travel end",
		6: "homing fail, reset during active cycle",
		7: "homing fail, safety door opened during cycle",
		8: "homing fail, pull-off did not clear the switch",
		9: "homing fail, limit switch not found within travel",
	}
)

// RejectError is generated when the firmware answers a command with
// "error:N".  The channel is intact; only the offending command failed.
type RejectError struct {
	Code int
	Cmd  string
}

func (e RejectError) Error() string {
	desc, ok := ErrorCodes[e.Code]
	if !ok {
		desc = "unknown error code"
	}
	return fmt.Sprintf("grbl error:%d %s (for: %s)", e.Code, desc, e.Cmd)
}

// AlarmError is generated when the controller raises "ALARM:N".  Machine
// position is no longer trusted until the next homing cycle.
type AlarmError struct {
	Code int
}

func (e AlarmError) Error() string {
	desc, ok := AlarmCodes[e.Code]
	if !ok {
		desc = "unknown alarm code"
	}
	return fmt.Sprintf("grbl ALARM:%d %s", e.Code, desc)
}

// TimeoutError is generated when no terminal token arrives within the ack
// window.  The physical machine state is unknown to the driver afterward.
type TimeoutError struct {
	Cmd   string
	After time.Duration
}

func (e TimeoutError) Error() string {
	return fmt.Sprintf("no acknowledgement within %v (for: %s)", e.After, e.Cmd)
}

// Controller drives a GRBL firmware over a comm.Link.
type Controller struct {
	link *comm.Link

	// AckTimeout bounds the wait for a terminal token after each command.
	// Motion commands are only acknowledged when motion completes, so this
	// must accommodate the slowest physical move.
	AckTimeout time.Duration

	// WakeDelay is how long the firmware is given to finish its reset
	// banner after the wake-up poke.
	WakeDelay time.Duration
}

// NewController returns a Controller with the default acknowledgement window.
func NewController(link *comm.Link) *Controller {
	return &Controller{
		link:       link,
		AckTimeout: 30 * time.Second,
		WakeDelay:  2 * time.Second}
}

// Open establishes the link and clears the controller's greeting.
// It is idempotent.
func (c *Controller) Open() error {
	if c.link.Connected() {
		return nil
	}
	err := c.link.Open()
	if err != nil {
		return err
	}
	c.Wake()
	return nil
}

// Close releases the link.  It is idempotent.
func (c *Controller) Close() error {
	return c.link.Close()
}

// Connected reports whether the underlying link is open.
func (c *Controller) Connected() bool {
	return c.link.Connected()
}

// Wake pokes the firmware with bare line terminators and discards whatever
// it prints in response (reset banner, stale reports).
func (c *Controller) Wake() {
	c.link.Drain()
	c.link.Write([]byte("\r\n\r\n"))
	time.Sleep(c.WakeDelay)
	c.link.Drain()
}

// Send transmits one command and blocks until the firmware acknowledges it.
// nil means "ok" was observed.  RejectError, AlarmError and TimeoutError
// describe the terminal failures; any other error means the channel itself
// failed.
func (c *Controller) Send(cmd string) error {
	cmd = strings.TrimSpace(cmd)
	if cmd == "" {
		return nil
	}
	if !c.link.Connected() {
		return comm.ErrNotConnected
	}
	err := c.link.Writeln(cmd)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(c.AckTimeout)
	for {
		line, err := c.link.Readln()
		if err != nil {
			if errors.Is(err, comm.ErrReadTimeout) {
				if time.Now().After(deadline) {
					return TimeoutError{Cmd: cmd, After: c.AckTimeout}
				}
				continue
			}
			return err
		}
		done, term := terminal(line, cmd)
		if done {
			return term
		}
		// push messages ([MSG:..], status reports, banners) are not
		// terminal, keep reading
	}
}

// SendScript transmits commands in order, stopping at the first failure.
func (c *Controller) SendScript(cmds []string) error {
	for _, cmd := range cmds {
		err := c.Send(cmd)
		if err != nil {
			return err
		}
	}
	return nil
}

// terminal classifies one reply line.  done is false for push messages.
func terminal(line, cmd string) (done bool, err error) {
	switch {
	case strings.HasPrefix(line, OKToken):
		return true, nil
	case strings.HasPrefix(line, ErrTokenPrefix):
		code, perr := strconv.Atoi(strings.TrimPrefix(line, ErrTokenPrefix))
		if perr != nil {
			return true, fmt.Errorf("malformed rejection %q (for: %s)", line, cmd)
		}
		return true, RejectError{Code: code, Cmd: cmd}
	case strings.HasPrefix(line, AlarmTokenPrefix):
		code, perr := strconv.Atoi(strings.TrimPrefix(line, AlarmTokenPrefix))
		if perr != nil {
			return true, fmt.Errorf("malformed alarm %q", line)
		}
		return true, AlarmError{Code: code}
	}
	return false, nil
}

// QueryStatus issues the realtime status query and returns the parsed
// report.  Unlike Send, the query is a single raw byte and the reply is a
// single push line.
func (c *Controller) QueryStatus() (Report, error) {
	if !c.link.Connected() {
		return Report{}, comm.ErrNotConnected
	}
	err := c.link.Write([]byte{'?'})
	if err != nil {
		return Report{}, err
	}
	deadline := time.Now().Add(2 * time.Second)
	for {
		line, err := c.link.Readln()
		if err != nil {
			if errors.Is(err, comm.ErrReadTimeout) && time.Now().Before(deadline) {
				continue
			}
			return Report{}, err
		}
		if strings.HasPrefix(line, "<") {
			return ParseReport(line)
		}
	}
}
