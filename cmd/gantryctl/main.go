// Command gantryctl drives a gantry from the shell for bring-up and
// bench work: home it, send it to coordinates or named deck locations, and
// query status, with feedback while the machine is physically in motion.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/theckman/yacspin"

	"github.com/AccelerationConsortium/cnc-machine/comm"
	"github.com/AccelerationConsortium/cnc-machine/coord"
	"github.com/AccelerationConsortium/cnc-machine/gantry"
	"github.com/AccelerationConsortium/cnc-machine/grbl"
	"github.com/AccelerationConsortium/cnc-machine/layout"
)

const usage = `gantryctl homes and positions a CNC gantry from the shell.

Usage:
	gantryctl [flags] <command> [args]

Commands:
	home                    run the homing cycle
	origin                  return to the work origin
	move <x> <y> <z>        move to an absolute position (mm)
	goto <name> [row col]   move to a named deck location
	status                  print machine state and position
	raw <line>              send one raw command line

Flags:`

func main() {
	var (
		port = flag.String("port", "/dev/ttyUSB0", "serial port, or host:port with -tcp")
		baud = flag.Int("baud", 115200, "serial baud rate")
		tcp  = flag.Bool("tcp", false, "connect over TCP instead of RS232")
		mock = flag.Bool("mock", false, "drive a simulator instead of hardware")
		deck = flag.String("deck", "", "deck description yaml for goto")
		feed = flag.Int("feed", 3000, "feed rate in mm/min")
		safe = flag.Bool("safe", false, "use the pull-up move for move/goto")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	m, err := buildMachine(*port, *baud, *tcp, *mock, *deck, *feed)
	if err != nil {
		log.Fatal(err)
	}
	err = m.Open()
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	switch args[0] {
	case "home":
		err = withSpinner("homing", m.Home)
	case "origin":
		err = ensureHomed(m)
		if err == nil {
			err = withSpinner("moving to origin", m.Origin)
		}
	case "move":
		err = cmdMove(m, args[1:], *safe)
	case "goto":
		err = cmdGoto(m, args[1:], *safe)
	case "status":
		err = cmdStatus(m)
	case "raw":
		if len(args) != 2 {
			log.Fatal("raw takes exactly one argument (quote the line)")
		}
		var resp string
		resp, err = m.Raw(args[1])
		if err == nil {
			fmt.Println(resp)
		}
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func buildMachine(port string, baud int, tcp, mock bool, deck string, feed int) (*gantry.Machine, error) {
	var maker comm.CreationFunc
	switch {
	case mock:
		maker = func() (io.ReadWriteCloser, error) {
			return grbl.NewSimulator(), nil
		}
	case tcp:
		maker = comm.TCPConnMaker(port, 3*time.Second)
	default:
		maker = comm.SerialConnMaker(port, baud, 2*time.Second)
	}
	link := comm.NewLink(port, maker, 2*time.Second)
	ctl := grbl.NewController(link)
	if mock {
		ctl.WakeDelay = 0
	}

	var (
		reg *layout.Registry
		err error
	)
	if deck != "" {
		reg, err = layout.LoadYAML(deck)
		if err != nil {
			return nil, err
		}
	}
	m := gantry.New(ctl, reg, gantry.DefaultEnvelope())
	m.Feed = feed
	return m, nil
}

// ensureHomed homes the machine before a positioning command; coordinates
// mean nothing against an unhomed machine.
func ensureHomed(m *gantry.Machine) error {
	if m.State() != gantry.Unhomed {
		return nil
	}
	return withSpinner("homing", m.Home)
}

// withSpinner runs a blocking operation with terminal feedback; op may take
// tens of seconds while real steel moves.
func withSpinner(msg string, op func() error) error {
	spinner, err := yacspin.New(yacspin.Config{
		Frequency:         100 * time.Millisecond,
		CharSet:           yacspin.CharSets[14],
		Suffix:            " " + msg,
		StopCharacter:     "done",
		StopFailCharacter: "failed",
	})
	if err != nil {
		// a broken terminal should not stop the machine
		return op()
	}
	spinner.Start()
	err = op()
	if err != nil {
		spinner.StopFail()
		return err
	}
	spinner.Stop()
	return nil
}

func cmdMove(m *gantry.Machine, args []string, safe bool) error {
	if len(args) != 3 {
		return fmt.Errorf("move takes x y z, got %d arguments", len(args))
	}
	var p coord.Point
	var err error
	p.X, err = strconv.ParseFloat(args[0], 64)
	if err != nil {
		return err
	}
	p.Y, err = strconv.ParseFloat(args[1], 64)
	if err != nil {
		return err
	}
	p.Z, err = strconv.ParseFloat(args[2], 64)
	if err != nil {
		return err
	}
	err = ensureHomed(m)
	if err != nil {
		return err
	}
	op := func() error { return m.MoveToPoint(p) }
	if safe {
		op = func() error { return m.SafeMoveToPoint(p) }
	}
	return withSpinner("moving to "+p.String(), op)
}

func cmdGoto(m *gantry.Machine, args []string, safe bool) error {
	var (
		p   coord.Point
		err error
		msg string
	)
	reg := m.Registry()
	switch len(args) {
	case 1:
		p, err = reg.ResolvePoint(args[0])
		msg = args[0]
	case 2:
		var idx int
		idx, err = strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		p, err = reg.ResolveIndex(args[0], idx)
		msg = fmt.Sprintf("%s[%d]", args[0], idx)
	case 3:
		var row, col int
		row, err = strconv.Atoi(args[1])
		if err != nil {
			return err
		}
		col, err = strconv.Atoi(args[2])
		if err != nil {
			return err
		}
		p, err = reg.Resolve(args[0], row, col)
		msg = fmt.Sprintf("%s[%d,%d]", args[0], row, col)
	default:
		return fmt.Errorf("goto takes name, name index, or name row col")
	}
	if err != nil {
		return err
	}
	err = ensureHomed(m)
	if err != nil {
		return err
	}
	op := func() error { return m.MoveToPoint(p) }
	if safe {
		op = func() error { return m.SafeMoveToPoint(p) }
	}
	return withSpinner("moving to "+msg, op)
}

func cmdStatus(m *gantry.Machine) error {
	fmt.Println("state:", m.State())
	p, err := m.Pos()
	if err != nil {
		return err
	}
	fmt.Println("pos:  ", p)
	return nil
}
