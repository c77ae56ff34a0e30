// Command gantrysrv exposes one CNC gantry over HTTP so clients in any
// language can drive it with plain requests.
package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"

	yml "gopkg.in/yaml.v2"

	"github.com/AccelerationConsortium/cnc-machine/gantry"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "gantrysrv.yml"

	k = koanf.New(".")
)

func setupconfig() {
	k.Load(structs.Provider(DefaultConfig(), "koanf"), nil)
	if err := k.Load(file.Provider(ConfigFileName), yaml.Parser()); err != nil {
		errtxt := err.Error()
		if !strings.Contains(errtxt, "no such") { // file missing, who cares
			log.Fatalf("error loading config: %v", err)
		}
	}
}

func root() {
	str := `gantrysrv drives a small CNC gantry and exposes an HTTP interface to it.
This enables a server-client architecture, and the clients can leverage the
excellent HTTP libraries for any programming language.

Usage:
	gantrysrv <command>

Commands:
	run
	help
	mkconf
	conf
	version`
	fmt.Println(str)
}

func help() {
	str := `gantrysrv is amenable to configuration via its .yaml file.  For a primer
on YAML, see https://yaml.org/start.html

Addr is the listen address for the HTTP interface.  Port is the serial port
(or host:port for a serial-ethernet bridge with Serial: false) on which the
controller is reachable.  Mock replaces the physical machine with a
simulator; useful for trying out client code with no hardware attached.

Deck points to a deck description file: a mapping of location name to
{x_origin, y_origin, z_origin} and, for racks, {num_x, num_y, x_offset,
y_offset}.

The Envelope bounds every commanded position.  Measure it from the homed
position of your machine; moves outside it are rejected before anything is
transmitted.`
	fmt.Println(str)
}

func mkconf() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	f, err := os.Create(ConfigFileName)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()
	err = yml.NewEncoder(f).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func printconf() {
	c := Config{}
	k.Unmarshal("", &c)
	err := yml.NewEncoder(os.Stdout).Encode(c)
	if err != nil {
		log.Fatal(err)
	}
}

func pversion() {
	fmt.Printf("gantrysrv version %v\n", Version)
}

func run() {
	c := Config{}
	err := k.Unmarshal("", &c)
	if err != nil {
		log.Fatal(err)
	}
	m, err := BuildMachine(c)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	wrap := gantry.NewHTTPWrapper(m)
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	wrap.Bind(r)
	r.Get("/endpoints", Endpoints(wrap))
	log.Println("now listening for requests at", c.Addr)
	log.Fatal(http.ListenAndServe(c.Addr, r))
}

func main() {
	args := os.Args
	if len(args) == 1 {
		root()
		return
	}
	setupconfig()
	cmd := strings.ToLower(args[1])
	switch cmd {
	case "help":
		help()
	case "mkconf":
		mkconf()
	case "conf":
		printconf()
	case "run":
		run()
	case "version":
		pversion()
	default:
		log.Fatal("unknown command")
	}
}
