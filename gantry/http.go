package gantry

import (
	"encoding/json"
	"go/types"
	"net/http"

	"github.com/go-chi/chi"

	"github.com/AccelerationConsortium/cnc-machine/coord"
	"github.com/AccelerationConsortium/cnc-machine/server"
)

// PointT is the JSON payload for a Cartesian position.
type PointT struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// MoveT is the JSON payload for a location move.  Row/Col reference a cell
// of an array location, Index references it by flat number; all absent
// means a single-point location.
type MoveT struct {
	Row   *int `json:"row"`
	Col   *int `json:"col"`
	Index *int `json:"index"`
}

// HTTPWrapper exposes a Machine over HTTP.
type HTTPWrapper struct {
	// M is the wrapped machine.
	M *Machine

	routeTable server.RouteTable
}

// NewHTTPWrapper returns an HTTP wrapper with its route table pre-configured.
func NewHTTPWrapper(m *Machine) HTTPWrapper {
	w := HTTPWrapper{M: m}
	w.routeTable = server.RouteTable{
		server.Get("/state"):     w.GetState,
		server.Get("/pos"):       w.GetPos,
		server.Get("/envelope"):  w.GetEnvelope,
		server.Get("/locations"): w.GetLocations,

		server.Post("/open"):            w.Open,
		server.Post("/close"):           w.Close,
		server.Post("/home"):            w.Home,
		server.Post("/origin"):          w.Origin,
		server.Post("/pos"):             w.SetPos,
		server.Post("/location/{name}"): w.MoveToLocation,
		server.Post("/raw"):             w.Raw,
	}
	return w
}

// RT satisfies server.HTTPer.
func (h HTTPWrapper) RT() server.RouteTable {
	return h.routeTable
}

// Bind attaches the wrapper's routes to a chi router.
func (h HTTPWrapper) Bind(r chi.Router) {
	h.routeTable.Bind(r)
}

// GetState returns the lifecycle state as a string payload.
func (h HTTPWrapper) GetState(w http.ResponseWriter, r *http.Request) {
	hp := server.HumanPayload{T: types.String, String: h.M.State().String()}
	hp.EncodeAndRespond(w, r)
}

// GetPos queries the machine position.
func (h HTTPWrapper) GetPos(w http.ResponseWriter, r *http.Request) {
	p, err := h.M.Pos()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(PointT{X: p.X, Y: p.Y, Z: p.Z})
}

// GetEnvelope returns the travel envelope.
func (h HTTPWrapper) GetEnvelope(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.M.Envelope())
}

// GetLocations lists the names in the deck registry.
func (h HTTPWrapper) GetLocations(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.M.Registry().Names())
}

// Open opens the channel to the controller.
func (h HTTPWrapper) Open(w http.ResponseWriter, r *http.Request) {
	respondErr(w, h.M.Open())
}

// Close releases the channel.
func (h HTTPWrapper) Close(w http.ResponseWriter, r *http.Request) {
	respondErr(w, h.M.Close())
}

// Home runs the homing cycle.
func (h HTTPWrapper) Home(w http.ResponseWriter, r *http.Request) {
	respondErr(w, h.M.Home())
}

// Origin returns to the work origin.
func (h HTTPWrapper) Origin(w http.ResponseWriter, r *http.Request) {
	respondErr(w, h.M.Origin())
}

// SetPos moves to an absolute position.  The safe query parameter selects
// the three-leg pull-up move.
func (h HTTPWrapper) SetPos(w http.ResponseWriter, r *http.Request) {
	var p PointT
	err := json.NewDecoder(r.Body).Decode(&p)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	target := coord.Point{X: p.X, Y: p.Y, Z: p.Z}
	if r.URL.Query().Get("safe") == "true" {
		err = h.M.SafeMoveToPoint(target)
	} else {
		err = h.M.MoveToPoint(target)
	}
	respondErr(w, err)
}

// MoveToLocation moves to a named location, optionally indexed into an
// array location by row/col or flat index.
func (h HTTPWrapper) MoveToLocation(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var mv MoveT
	if r.Body != nil {
		// an empty body means a single-point location
		json.NewDecoder(r.Body).Decode(&mv)
		defer r.Body.Close()
	}
	var err error
	switch {
	case mv.Row != nil && mv.Col != nil:
		err = h.M.MoveToWell(name, *mv.Row, *mv.Col)
	case mv.Index != nil:
		err = h.M.MoveToWellIndex(name, *mv.Index)
	default:
		err = h.M.MoveToLocation(name)
	}
	respondErr(w, err)
}

// Raw passes one raw command line to the controller.
func (h HTTPWrapper) Raw(w http.ResponseWriter, r *http.Request) {
	str := server.StrT{}
	err := json.NewDecoder(r.Body).Decode(&str)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	resp, err := h.M.Raw(str.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := server.HumanPayload{T: types.String, String: resp}
	hp.EncodeAndRespond(w, r)
}

func respondErr(w http.ResponseWriter, err error) {
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
