package grbl

import (
	"errors"
	"strconv"
	"strings"

	"github.com/AccelerationConsortium/cnc-machine/coord"
)

// Machine states reported by the firmware that the driver cares about.
const (
	StateIdle  = "Idle"
	StateRun   = "Run"
	StateHome  = "Home"
	StateAlarm = "Alarm"
)

// Report is one parsed realtime status report, e.g.
// <Idle|MPos:0.000,0.000,0.000|FS:0,0>
type Report struct {
	// State is the firmware state word: Idle, Run, Home, Alarm, Jog, ...
	State string

	// MPos is the machine position.
	MPos coord.Point

	// WCO is the work coordinate offset, present only in some reports.
	WCO coord.Point
}

// Idle reports whether the machine has no motion in progress.
func (r Report) Idle() bool {
	return strings.HasPrefix(r.State, StateIdle)
}

// ParseReport parses a <...> status line.
func ParseReport(line string) (Report, error) {
	var r Report
	data := strings.TrimSpace(line)
	if !strings.HasPrefix(data, "<") || !strings.HasSuffix(data, ">") {
		return r, errors.New("status report not delimited by <>: " + line)
	}
	data = strings.TrimSuffix(strings.TrimPrefix(data, "<"), ">")
	parts := strings.Split(data, "|")
	if parts[0] == "" {
		return r, errors.New("status report missing state word: " + line)
	}
	r.State = parts[0]
	var err error
	for _, s := range parts[1:] {
		kv := strings.SplitN(s, ":", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "MPos":
			r.MPos, err = parseTriplet(kv[1])
		case "WCO":
			r.WCO, err = parseTriplet(kv[1])
		}
		if err != nil {
			return r, err
		}
	}
	return r, nil
}

func parseTriplet(data string) (p coord.Point, err error) {
	parts := strings.Split(data, ",")
	if len(parts) != 3 {
		return p, errors.New("expected three comma separated values, got " + data)
	}
	p.X, err = strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return p, err
	}
	p.Y, err = strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return p, err
	}
	p.Z, err = strconv.ParseFloat(parts[2], 64)
	return p, err
}
