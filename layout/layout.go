/*Package layout resolves named deck locations (vial racks, well plates,
parking points) into absolute gantry coordinates.

A location is described declaratively: an origin, and for array locations a
per-axis pitch and extent.  Columns advance along X with pitch XOffset
(NumX of them) and rows advance along Y with pitch YOffset (NumY of them);
this mirrors the num_x/num_y convention of the deck description files and
is pinned down by tests.  Resolution is pure: no I/O, no machine state.
*/
package layout

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/AccelerationConsortium/cnc-machine/coord"
)

// Spec describes the geometry of one named location as it appears in a deck
// description file.  A spec with NumX and NumY both zero (absent) is a
// single point; otherwise it is a NumX by NumY array.
type Spec struct {
	XOrigin float64 `yaml:"x_origin"`
	YOrigin float64 `yaml:"y_origin"`
	ZOrigin float64 `yaml:"z_origin"`

	// XOffset is the column-to-column pitch along X.  May be negative to
	// reverse direction; must be nonzero when NumX > 1.
	XOffset float64 `yaml:"x_offset"`

	// YOffset is the row-to-row pitch along Y, same sign convention.
	YOffset float64 `yaml:"y_offset"`

	// NumX is the number of columns, NumY the number of rows.
	NumX int `yaml:"num_x"`
	NumY int `yaml:"num_y"`
}

// IsGrid reports whether the spec describes an array rather than a point.
func (s Spec) IsGrid() bool {
	return s.NumX != 0 || s.NumY != 0
}

func (s Spec) validate(name string) error {
	if !s.IsGrid() {
		return nil
	}
	if s.NumX < 1 || s.NumY < 1 {
		return fmt.Errorf("location %s: num_x and num_y must be at least 1, got %d x %d", name, s.NumX, s.NumY)
	}
	if s.NumX > 1 && s.XOffset == 0 {
		return fmt.Errorf("location %s: x_offset must be nonzero with num_x > 1", name)
	}
	if s.NumY > 1 && s.YOffset == 0 {
		return fmt.Errorf("location %s: y_offset must be nonzero with num_y > 1", name)
	}
	return nil
}

// UnknownLocationError is generated when a name is absent from the registry.
type UnknownLocationError struct {
	Name string
}

func (e UnknownLocationError) Error() string {
	return fmt.Sprintf("unknown location %q", e.Name)
}

// InvalidReferenceError is generated when a reference does not fit the
// shape of the location, e.g. indices into a single-point location.
type InvalidReferenceError struct {
	Name   string
	Reason string
}

func (e InvalidReferenceError) Error() string {
	return fmt.Sprintf("invalid reference to location %q: %s", e.Name, e.Reason)
}

// IndexOutOfRangeError is generated when a row or column index falls
// outside the extent of an array location.
type IndexOutOfRangeError struct {
	Name  string
	Axis  string // "row" or "col"
	Index int
	Count int
}

func (e IndexOutOfRangeError) Error() string {
	return fmt.Sprintf("location %q: %s index %d out of range [0, %d)", e.Name, e.Axis, e.Index, e.Count)
}

// Registry maps location names to their geometry.  It is populated once at
// startup and immutable thereafter.
type Registry struct {
	specs map[string]Spec
}

// NewRegistry validates every spec and returns the registry.
func NewRegistry(specs map[string]Spec) (*Registry, error) {
	for name, s := range specs {
		err := s.validate(name)
		if err != nil {
			return nil, err
		}
	}
	cpy := make(map[string]Spec, len(specs))
	for name, s := range specs {
		cpy[name] = s
	}
	return &Registry{specs: cpy}, nil
}

// LoadYAML reads a deck description file into a Registry.  The file is a
// flat mapping of location name to spec fields.
func LoadYAML(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	specs := map[string]Spec{}
	err = yaml.NewDecoder(f).Decode(&specs)
	if err != nil {
		return nil, fmt.Errorf("deck description %s: %w", path, err)
	}
	return NewRegistry(specs)
}

// Names returns the registered location names.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.specs))
	for name := range r.specs {
		out = append(out, name)
	}
	return out
}

// ResolvePoint resolves a single-point location.  Referencing an array
// location without indices is an invalid reference.
func (r *Registry) ResolvePoint(name string) (coord.Point, error) {
	s, ok := r.specs[name]
	if !ok {
		return coord.Point{}, UnknownLocationError{Name: name}
	}
	if s.IsGrid() {
		return coord.Point{}, InvalidReferenceError{Name: name, Reason: "array location requires row and col indices"}
	}
	return coord.Point{X: s.XOrigin, Y: s.YOrigin, Z: s.ZOrigin}, nil
}

// Resolve resolves an array location by row and column.  Referencing a
// single-point location with indices is an invalid reference.
func (r *Registry) Resolve(name string, row, col int) (coord.Point, error) {
	s, ok := r.specs[name]
	if !ok {
		return coord.Point{}, UnknownLocationError{Name: name}
	}
	if !s.IsGrid() {
		return coord.Point{}, InvalidReferenceError{Name: name, Reason: "single-point location takes no indices"}
	}
	if row < 0 || row >= s.NumY {
		return coord.Point{}, IndexOutOfRangeError{Name: name, Axis: "row", Index: row, Count: s.NumY}
	}
	if col < 0 || col >= s.NumX {
		return coord.Point{}, IndexOutOfRangeError{Name: name, Axis: "col", Index: col, Count: s.NumX}
	}
	return coord.Point{
		X: s.XOrigin + float64(col)*s.XOffset,
		Y: s.YOrigin + float64(row)*s.YOffset,
		Z: s.ZOrigin}, nil
}

// ResolveIndex resolves an array location by flat index in row-major order:
// index i maps to col i%NumX, row i/NumX.  This matches the well numbering
// printed on racks.
func (r *Registry) ResolveIndex(name string, index int) (coord.Point, error) {
	s, ok := r.specs[name]
	if !ok {
		return coord.Point{}, UnknownLocationError{Name: name}
	}
	if !s.IsGrid() {
		return coord.Point{}, InvalidReferenceError{Name: name, Reason: "single-point location takes no indices"}
	}
	if index < 0 || index >= s.NumX*s.NumY {
		return coord.Point{}, IndexOutOfRangeError{Name: name, Axis: "index", Index: index, Count: s.NumX * s.NumY}
	}
	return r.Resolve(name, index/s.NumX, index%s.NumX)
}
