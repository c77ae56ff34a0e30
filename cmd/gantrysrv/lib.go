package main

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/AccelerationConsortium/cnc-machine/comm"
	"github.com/AccelerationConsortium/cnc-machine/gantry"
	"github.com/AccelerationConsortium/cnc-machine/grbl"
	"github.com/AccelerationConsortium/cnc-machine/layout"
	"github.com/AccelerationConsortium/cnc-machine/util"
)

// Config holds the initialization parameters for the server and the machine
// behind it.  It is populated from the yaml config file over the defaults.
type Config struct {
	// Addr is the address to listen at
	Addr string `koanf:"Addr" yaml:"Addr"`

	// Port is the serial port (COM3, /dev/ttyUSB0) or, with Serial false,
	// the host:port of a serial-ethernet bridge
	Port string `koanf:"Port" yaml:"Port"`

	// Serial selects RS232 (true) or TCP (false)
	Serial bool `koanf:"Serial" yaml:"Serial"`

	// Baud is the serial baud rate; GRBL v1.1 ships at 115200
	Baud int `koanf:"Baud" yaml:"Baud"`

	// Mock replaces the physical controller with a simulator
	Mock bool `koanf:"Mock" yaml:"Mock"`

	// Deck is the path to the deck description file; empty for none
	Deck string `koanf:"Deck" yaml:"Deck"`

	// Feed is the feed rate for linear moves in mm/min
	Feed int `koanf:"Feed" yaml:"Feed"`

	// AckTimeoutSecs bounds the wait for each command acknowledgement;
	// it must cover the slowest physical move
	AckTimeoutSecs float64 `koanf:"AckTimeoutSecs" yaml:"AckTimeoutSecs"`

	// Envelope is the safe travel box, measured from the homed position
	Envelope gantry.Envelope `koanf:"Envelope" yaml:"Envelope"`
}

// DefaultConfig returns the configuration for a stock gantry on a local
// serial port.
func DefaultConfig() Config {
	return Config{
		Addr:           ":8000",
		Port:           "/dev/ttyUSB0",
		Serial:         true,
		Baud:           115200,
		Feed:           3000,
		AckTimeoutSecs: 30,
		Envelope:       gantry.DefaultEnvelope()}
}

// BuildMachine assembles the machine described by the config.  The channel
// is not opened; clients do that via POST /open (or the machine API).
func BuildMachine(c Config) (*gantry.Machine, error) {
	var maker comm.CreationFunc
	switch {
	case c.Mock:
		maker = func() (io.ReadWriteCloser, error) {
			return grbl.NewSimulator(), nil
		}
	case c.Serial:
		maker = comm.SerialConnMaker(c.Port, c.Baud, 2*time.Second)
	default:
		maker = comm.TCPConnMaker(c.Port, 3*time.Second)
	}
	link := comm.NewLink(c.Port, maker, 2*time.Second)
	ctl := grbl.NewController(link)
	ctl.AckTimeout = util.SecsToDuration(c.AckTimeoutSecs)
	if c.Mock {
		ctl.WakeDelay = 0
	}

	var (
		reg *layout.Registry
		err error
	)
	if c.Deck != "" {
		reg, err = layout.LoadYAML(c.Deck)
		if err != nil {
			return nil, err
		}
	}
	m := gantry.New(ctl, reg, c.Envelope)
	m.Feed = c.Feed
	return m, nil
}

// Endpoints returns a handler that lists the bound routes as JSON.
func Endpoints(wrap gantry.HTTPWrapper) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		err := json.NewEncoder(w).Encode(wrap.RT().Endpoints())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	}
}
