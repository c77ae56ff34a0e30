package server

import (
	"go/types"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi"
)

func TestRouteTableBind(t *testing.T) {
	hit := false
	rt := RouteTable{
		Get("/ping"): func(w http.ResponseWriter, r *http.Request) {
			hit = true
			w.WriteHeader(http.StatusOK)
		},
	}
	r := chi.NewRouter()
	rt.Bind(r)
	srv := httptest.NewServer(r)
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatal("get:", err)
	}
	resp.Body.Close()
	if !hit {
		t.Error("bound handler was not invoked")
	}
	// route is method-scoped
	resp, err = http.Post(srv.URL+"/ping", "", nil)
	if err != nil {
		t.Fatal("post:", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("POST to a GET route: status %d, expected 405", resp.StatusCode)
	}
}

func TestEndpoints(t *testing.T) {
	rt := RouteTable{
		Get("/a"):  nil,
		Post("/b"): nil,
	}
	eps := rt.Endpoints()
	if len(eps) != 2 {
		t.Fatalf("got %d endpoints, expected 2", len(eps))
	}
	seen := map[string]bool{}
	for _, ep := range eps {
		seen[ep] = true
	}
	if !seen["GET /a"] || !seen["POST /b"] {
		t.Errorf("got %v", eps)
	}
}

func TestHumanPayloadEncode(t *testing.T) {
	cases := []struct {
		hp       HumanPayload
		expected string
	}{
		{HumanPayload{T: types.Float64, Float: 1.5}, `{"f64":1.5}`},
		{HumanPayload{T: types.Int, Int: 7}, `{"int":7}`},
		{HumanPayload{T: types.Bool, Bool: true}, `{"bool":true}`},
		{HumanPayload{T: types.String, String: "ok"}, `{"str":"ok"}`},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		c.hp.EncodeAndRespond(rec, nil)
		got := rec.Body.String()
		// Encode appends a newline
		if got != c.expected+"\n" {
			t.Errorf("got %q expected %q", got, c.expected)
		}
	}
}

func TestHumanPayloadUnsupportedType(t *testing.T) {
	rec := httptest.NewRecorder()
	HumanPayload{T: types.Complex128}.EncodeAndRespond(rec, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status %d, expected 500", rec.Code)
	}
}
