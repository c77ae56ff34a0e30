package layout_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelerationConsortium/cnc-machine/coord"
	"github.com/AccelerationConsortium/cnc-machine/layout"
)

func testRegistry(t *testing.T) *layout.Registry {
	t.Helper()
	reg, err := layout.NewRegistry(map[string]layout.Spec{
		"vial_rack": {
			XOrigin: 166.5,
			YOrigin: 125,
			ZOrigin: 0,
			XOffset: 36,
			YOffset: -36,
			NumX:    2,
			NumY:    4,
		},
		"park": {XOrigin: 5, YOrigin: 145, ZOrigin: 0},
	})
	require.NoError(t, err)
	return reg
}

func TestResolveGridCell(t *testing.T) {
	reg := testRegistry(t)
	p, err := reg.Resolve("vial_rack", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 202.5, Y: 89, Z: 0}, p)

	p, err = reg.Resolve("vial_rack", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 166.5, Y: 125, Z: 0}, p)
}

func TestResolveGridIsInjective(t *testing.T) {
	reg := testRegistry(t)
	seen := map[coord.Point]string{}
	for row := 0; row < 4; row++ {
		for col := 0; col < 2; col++ {
			p, err := reg.Resolve("vial_rack", row, col)
			require.NoError(t, err)
			if prev, dup := seen[p]; dup {
				t.Errorf("cell (%d,%d) collides with %s at %v", row, col, prev, p)
			}
			seen[p] = p.String()
		}
	}
	assert.Len(t, seen, 8)
}

func TestResolveIndexRowMajor(t *testing.T) {
	reg := testRegistry(t)
	// flat index 3 is row 1, col 1 in a 2-column rack
	byIndex, err := reg.ResolveIndex("vial_rack", 3)
	require.NoError(t, err)
	byRowCol, err := reg.Resolve("vial_rack", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, byRowCol, byIndex)

	_, err = reg.ResolveIndex("vial_rack", 8)
	assert.IsType(t, layout.IndexOutOfRangeError{}, err)
}

func TestResolvePoint(t *testing.T) {
	reg := testRegistry(t)
	p, err := reg.ResolvePoint("park")
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 5, Y: 145, Z: 0}, p)
}

func TestUnknownLocation(t *testing.T) {
	reg := testRegistry(t)
	_, err := reg.ResolvePoint("nope")
	assert.IsType(t, layout.UnknownLocationError{}, err)
	_, err = reg.Resolve("nope", 0, 0)
	assert.IsType(t, layout.UnknownLocationError{}, err)
	_, err = reg.ResolveIndex("nope", 0)
	assert.IsType(t, layout.UnknownLocationError{}, err)
}

func TestShapeMismatch(t *testing.T) {
	reg := testRegistry(t)
	// indices into a point
	_, err := reg.Resolve("park", 0, 0)
	assert.IsType(t, layout.InvalidReferenceError{}, err)
	_, err = reg.ResolveIndex("park", 0)
	assert.IsType(t, layout.InvalidReferenceError{}, err)
	// bare reference to an array
	_, err = reg.ResolvePoint("vial_rack")
	assert.IsType(t, layout.InvalidReferenceError{}, err)
}

func TestIndexBounds(t *testing.T) {
	reg := testRegistry(t)
	cases := []struct {
		row, col int
		axis     string
	}{
		{4, 0, "row"},
		{-1, 0, "row"},
		{0, 2, "col"},
		{0, -1, "col"},
	}
	for _, c := range cases {
		_, err := reg.Resolve("vial_rack", c.row, c.col)
		var oor layout.IndexOutOfRangeError
		require.ErrorAs(t, err, &oor)
		assert.Equal(t, c.axis, oor.Axis)
	}
}

func TestRegistryValidation(t *testing.T) {
	_, err := layout.NewRegistry(map[string]layout.Spec{
		"bad": {NumX: 2, NumY: 2}, // zero pitch on both axes
	})
	assert.Error(t, err)

	_, err = layout.NewRegistry(map[string]layout.Spec{
		"bad": {NumX: 2, XOffset: 10}, // num_y missing
	})
	assert.Error(t, err)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deck.yaml")
	data := `vial_rack:
  x_origin: 166.5
  y_origin: 125
  z_origin: 0
  x_offset: 36
  y_offset: -36
  num_x: 2
  num_y: 4
park:
  x_origin: 5
  y_origin: 145
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))
	reg, err := layout.LoadYAML(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"vial_rack", "park"}, reg.Names())
	p, err := reg.Resolve("vial_rack", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, coord.Point{X: 202.5, Y: 89, Z: 0}, p)
}

func TestLoadYAMLMissingFile(t *testing.T) {
	_, err := layout.LoadYAML(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
