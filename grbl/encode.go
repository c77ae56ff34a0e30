package grbl

import (
	"fmt"
	"strings"

	"github.com/AccelerationConsortium/cnc-machine/coord"
)

// G-code directives understood by the firmware.  Encoding never fails;
// malformed targets are rejected upstream before a command is built.
const (
	// Linear is the feed-rate-controlled linear move directive.
	Linear = "G1"

	// Rapid is the full-speed linear move directive.
	Rapid = "G0"

	// HomeCycle runs the homing cycle against the limit switches.
	HomeCycle = "$H"

	// Unlock clears a soft alarm without homing.  Position is not
	// re-established; use only as part of a homing sequence.
	Unlock = "$X"

	// ZeroWork zeroes the G54 work coordinate system at the current
	// position.
	ZeroWork = "G10 L20 P1 X0 Y0 Z0"
)

// SafeModes is the modal preamble: metric units, absolute positioning,
// feed per minute, first work coordinate system.
func SafeModes() []string {
	return []string{"G21", "G90", "G94", "G54"}
}

// Move encodes an absolute move to p at the given feed in mm/min.
// Coordinates carry three decimal places, the firmware's native precision.
func Move(directive string, p coord.Point, feed int) string {
	return fmt.Sprintf("%s X%.3f Y%.3f Z%.3f F%d", directive, p.X, p.Y, p.Z, feed)
}

// MoveXY encodes an absolute move in the XY plane only, leaving Z alone.
func MoveXY(directive string, x, y float64, feed int) string {
	return fmt.Sprintf("%s X%.3f Y%.3f F%d", directive, x, y, feed)
}

// MoveZ encodes an absolute move of the Z axis only.
func MoveZ(directive string, z float64, feed int) string {
	return fmt.Sprintf("%s Z%.3f F%d", directive, z, feed)
}

// PullUp encodes a machine-frame rapid to the given machine Z.  G53 makes
// the move independent of the active work offset, so it is safe before the
// work zero has been set.
func PullUp(machineZ float64) string {
	return fmt.Sprintf("G53 G0 Z%.3f", machineZ)
}

// HomeSequence builds the full homing program: unlock, run the homing
// cycle, restore the modal preamble and zero the work coordinate system.
func HomeSequence() []string {
	cmds := []string{Unlock, HomeCycle}
	cmds = append(cmds, SafeModes()...)
	return append(cmds, ZeroWork)
}

// Script joins commands into a newline-terminated block, mostly for logging.
func Script(cmds []string) string {
	return strings.Join(cmds, "\n") + "\n"
}
