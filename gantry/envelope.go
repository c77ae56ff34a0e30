package gantry

import (
	"fmt"

	"github.com/AccelerationConsortium/cnc-machine/coord"
	"github.com/AccelerationConsortium/cnc-machine/util"
)

// Envelope is the machine's safe Cartesian travel box: one closed interval
// per axis, fixed at construction.
type Envelope struct {
	X util.Limiter `yaml:"X"`
	Y util.Limiter `yaml:"Y"`
	Z util.Limiter `yaml:"Z"`
}

// DefaultEnvelope is the travel box of the stock 270x150 gantry with a
// 35 mm Z column, measured from the homed position.
func DefaultEnvelope() Envelope {
	return Envelope{
		X: util.Limiter{Min: 0, Max: 270},
		Y: util.Limiter{Min: 0, Max: 150},
		Z: util.Limiter{Min: -35, Max: 0}}
}

// OutOfBoundsError reports the first axis of a commanded position that
// falls outside the envelope.
type OutOfBoundsError struct {
	Axis      string
	Requested float64
	Limit     float64
}

func (e OutOfBoundsError) Error() string {
	return fmt.Sprintf("axis %s target %.3f outside travel envelope, limit %.3f", e.Axis, e.Requested, e.Limit)
}

// Validate checks p against the envelope.  Axes are checked in x, y, z
// order and the first violation is reported, so error text is reproducible.
// Values are never clamped: snapping an out-of-range target to the limit
// would hide operator error and can crash the head into fixtures.
func (e Envelope) Validate(p coord.Point) error {
	if !e.X.Contains(p.X) {
		return OutOfBoundsError{Axis: "x", Requested: p.X, Limit: e.X.Nearest(p.X)}
	}
	if !e.Y.Contains(p.Y) {
		return OutOfBoundsError{Axis: "y", Requested: p.Y, Limit: e.Y.Nearest(p.Y)}
	}
	if !e.Z.Contains(p.Z) {
		return OutOfBoundsError{Axis: "z", Requested: p.Z, Limit: e.Z.Nearest(p.Z)}
	}
	return nil
}
