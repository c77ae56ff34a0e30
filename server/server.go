// Package server contains the plumbing shared by HTTP-wrapped devices:
// route tables, and the small typed JSON payloads used on the wire.
package server

import (
	"encoding/json"
	"go/types"
	"net/http"

	"github.com/go-chi/chi"
)

// Route is one method/pattern pair in a RouteTable.
type Route struct {
	Method  string
	Pattern string
}

// Get returns a GET route for the pattern.
func Get(pattern string) Route {
	return Route{Method: http.MethodGet, Pattern: pattern}
}

// Post returns a POST route for the pattern.
func Post(pattern string) Route {
	return Route{Method: http.MethodPost, Pattern: pattern}
}

// RouteTable maps routes to their handlers.
type RouteTable map[Route]http.HandlerFunc

// Bind attaches every route in the table to the router.
func (rt RouteTable) Bind(r chi.Router) {
	for route, handler := range rt {
		r.Method(route.Method, route.Pattern, handler)
	}
}

// Endpoints lists the routes in the table as "METHOD pattern" strings.
func (rt RouteTable) Endpoints() []string {
	out := make([]string, 0, len(rt))
	for route := range rt {
		out = append(out, route.Method+" "+route.Pattern)
	}
	return out
}

// HTTPer is a type which can yield its route table for binding
type HTTPer interface {
	RT() RouteTable
}

// FloatT is a struct with a single field F64, the JSON f64 payload
type FloatT struct {
	F64 float64 `json:"f64"`
}

// StrT is a struct with a single field Str, the JSON str payload
type StrT struct {
	Str string `json:"str"`
}

// BoolT is a struct with a single field Bool, the JSON bool payload
type BoolT struct {
	Bool bool `json:"bool"`
}

// IntT is a struct with a single field Int, the JSON int payload
type IntT struct {
	Int int `json:"int"`
}

// HumanPayload is a container for a unit of data of some basic type that
// knows how to write itself as the matching JSON payload
type HumanPayload struct {
	// T is the type of the data
	T types.BasicKind

	Float  float64
	Int    int
	Bool   bool
	String string
}

// EncodeAndRespond writes the payload to w as JSON
func (hp HumanPayload) EncodeAndRespond(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var err error
	switch hp.T {
	case types.Float64:
		err = json.NewEncoder(w).Encode(FloatT{F64: hp.Float})
	case types.Int:
		err = json.NewEncoder(w).Encode(IntT{Int: hp.Int})
	case types.Bool:
		err = json.NewEncoder(w).Encode(BoolT{Bool: hp.Bool})
	case types.String:
		err = json.NewEncoder(w).Encode(StrT{Str: hp.String})
	default:
		http.Error(w, "unsupported payload type", http.StatusInternalServerError)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
