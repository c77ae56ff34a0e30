package gantry

import (
	"errors"
	"testing"

	"github.com/AccelerationConsortium/cnc-machine/coord"
	"github.com/AccelerationConsortium/cnc-machine/util"
)

func TestValidateInside(t *testing.T) {
	env := DefaultEnvelope()
	pts := []coord.Point{
		{},
		{X: 270, Y: 150, Z: 0},
		{X: 135, Y: 75, Z: -35},
	}
	for _, p := range pts {
		if err := env.Validate(p); err != nil {
			t.Errorf("%v should be inside the envelope: %v", p, err)
		}
	}
}

func TestValidateOutOfBounds(t *testing.T) {
	env := Envelope{
		X: util.Limiter{Min: 0, Max: 300},
		Y: util.Limiter{Min: 0, Max: 150},
		Z: util.Limiter{Min: -35, Max: 0},
	}
	err := env.Validate(coord.Point{X: 350, Y: 10, Z: 0})
	var oob OutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("expected OutOfBoundsError, got %v", err)
	}
	if oob.Axis != "x" || oob.Requested != 350 || oob.Limit != 300 {
		t.Errorf("got %+v, expected axis x requested 350 limit 300", oob)
	}
}

func TestValidateReportsFirstViolation(t *testing.T) {
	env := DefaultEnvelope()
	// both x and y out of range; x is checked first
	err := env.Validate(coord.Point{X: -1, Y: 500, Z: 0})
	var oob OutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("expected OutOfBoundsError, got %v", err)
	}
	if oob.Axis != "x" {
		t.Errorf("axis: got %q expected x", oob.Axis)
	}
	if oob.Limit != 0 {
		t.Errorf("limit: got %v expected 0 (nearest bound)", oob.Limit)
	}
}

func TestValidateZ(t *testing.T) {
	env := DefaultEnvelope()
	err := env.Validate(coord.Point{X: 10, Y: 10, Z: 1})
	var oob OutOfBoundsError
	if !errors.As(err, &oob) {
		t.Fatalf("expected OutOfBoundsError, got %v", err)
	}
	if oob.Axis != "z" || oob.Limit != 0 {
		t.Errorf("got %+v, expected axis z limit 0", oob)
	}
}
