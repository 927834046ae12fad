package shapefile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom/xy"

	"github.com/sells-group/densitymap/internal/fixture"
	"github.com/sells-group/densitymap/internal/model"
)

func TestRead_PolygonsAndAttributes(t *testing.T) {
	dir := t.TempDir()
	shpPath := fixture.WriteShapefile(t, dir, "deptos", []string{"DPTO", "NOMBRE"}, []fixture.Feature{
		{Rings: [][][2]float64{fixture.Square(0, 0, 1000)}, Values: []string{"05", "ANTIOQUIA"}},
		{Rings: [][][2]float64{fixture.Square(2000, 0, 1000)}, Values: []string{"08", "ATLANTICO"}},
	})

	layer, err := Read(shpPath, ReadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"DPTO", "NOMBRE"}, layer.Fields)
	require.Equal(t, 2, layer.Len())

	p0 := layer.Polygons[0]
	assert.Equal(t, 0, p0.Index)
	assert.Equal(t, []model.Attribute{{Name: "DPTO", Value: "05"}, {Name: "NOMBRE", Value: "ANTIOQUIA"}}, p0.Attributes)
	require.Equal(t, 1, p0.Geometry.NumPolygons())
	assert.InDelta(t, 1e6, p0.Geometry.Area(), 1e-6)

	assert.Equal(t, 1, layer.Polygons[1].Index)
	v, _ := layer.Polygons[1].Attribute("NOMBRE")
	assert.Equal(t, "ATLANTICO", v)

	b, ok := layer.Bounds()
	require.True(t, ok)
	assert.Equal(t, model.Bounds{MinX: 0, MinY: 0, MaxX: 3000, MaxY: 1000}, b)
}

func TestRead_MissingDBF(t *testing.T) {
	dir := t.TempDir()
	shpPath := fixture.WriteShapefile(t, dir, "a", []string{"ID"}, []fixture.Feature{
		{Rings: [][][2]float64{fixture.Square(0, 0, 1)}, Values: []string{"1"}},
	})
	require.NoError(t, os.Remove(filepath.Join(dir, "a.dbf")))

	_, err := Read(shpPath, ReadOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrUnrecognizedFormat))
}

func TestRead_MissingSHP(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.shp"), ReadOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrMissingInput))
}

func TestRead_RejectsPointLayer(t *testing.T) {
	dir := t.TempDir()
	shpPath := filepath.Join(dir, "pts.shp")
	w, err := shp.Create(shpPath, shp.POINT)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{shp.StringField("ID", 10)}))
	w.Write(&shp.Point{X: 1, Y: 2})
	w.Close()
	require.NoError(t, os.Rename(filepath.Join(dir, "ptsdbf"), filepath.Join(dir, "pts.dbf")))

	_, err = Read(shpPath, ReadOptions{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrUnrecognizedFormat))
	assert.Contains(t, err.Error(), "not a polygon layer")
}

func TestRead_WithoutShxIndex(t *testing.T) {
	dir := t.TempDir()
	shpPath := fixture.WriteShapefile(t, dir, "deptos", []string{"NOMBRE"}, []fixture.Feature{
		{Rings: [][][2]float64{fixture.Square(0, 0, 1000)}, Values: []string{"ANTIOQUIA"}},
		{Rings: [][][2]float64{fixture.Square(2000, 0, 1000)}, Values: []string{"ATLANTICO"}},
	})
	require.NoError(t, os.Remove(filepath.Join(dir, "deptos.shx")))

	layer, err := Read(shpPath, ReadOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, layer.Len())
	v, _ := layer.Polygons[1].Attribute("NOMBRE")
	assert.Equal(t, "ATLANTICO", v)
}

func TestRead_Latin1Attributes(t *testing.T) {
	dir := t.TempDir()
	shpPath := fixture.WriteShapefile(t, dir, "a", []string{"NOMBRE"}, []fixture.Feature{
		{Rings: [][][2]float64{fixture.Square(0, 0, 1)}, Values: []string{"Bogot\xe1"}},
	})
	cpg := filepath.Join(dir, "a.cpg")
	require.NoError(t, os.WriteFile(cpg, []byte("ISO-8859-1\n"), 0o644))

	layer, err := Read(shpPath, ReadOptions{CPGPath: cpg})
	require.NoError(t, err)
	v, _ := layer.Polygons[0].Attribute("NOMBRE")
	assert.Equal(t, "Bogotá", v)
}

func TestRead_GuessesWindows1252WithoutCPG(t *testing.T) {
	dir := t.TempDir()
	shpPath := fixture.WriteShapefile(t, dir, "a", []string{"NOMBRE"}, []fixture.Feature{
		{Rings: [][][2]float64{fixture.Square(0, 0, 1)}, Values: []string{"Nari\xf1o"}},
		{Rings: [][][2]float64{fixture.Square(5, 0, 1)}, Values: []string{"Bogotá"}},
	})

	layer, err := Read(shpPath, ReadOptions{})
	require.NoError(t, err)
	v, _ := layer.Polygons[0].Attribute("NOMBRE")
	assert.Equal(t, "Nariño", v)
	v, _ = layer.Polygons[1].Attribute("NOMBRE")
	assert.Equal(t, "Bogotá", v)
}

func TestBuildMultiPolygon_HoleAssignedToShell(t *testing.T) {
	outer := fixture.Square(0, 0, 10)
	hole := fixture.Reverse(fixture.Square(2, 2, 2))
	mp := buildMultiPolygon(toParts(outer, hole))

	require.Equal(t, 1, mp.NumPolygons())
	poly := mp.Polygon(0)
	require.Equal(t, 2, poly.NumLinearRings())
	assert.InDelta(t, 96, poly.Area(), 1e-9)

	// GeoJSON winding: exterior counter-clockwise, hole clockwise.
	assert.True(t, xy.IsRingCounterClockwise(poly.Layout(), poly.LinearRing(0).FlatCoords()))
	assert.False(t, xy.IsRingCounterClockwise(poly.Layout(), poly.LinearRing(1).FlatCoords()))
}

func TestBuildMultiPolygon_MultiPart(t *testing.T) {
	mp := buildMultiPolygon(toParts(fixture.Square(0, 0, 1), fixture.Square(5, 5, 2)))
	require.Equal(t, 2, mp.NumPolygons())
	assert.InDelta(t, 5, mp.Area(), 1e-9)
}

func TestBuildMultiPolygon_AllCounterClockwise(t *testing.T) {
	mp := buildMultiPolygon(toParts(fixture.Reverse(fixture.Square(0, 0, 1)), fixture.Reverse(fixture.Square(3, 3, 1))))
	require.Equal(t, 2, mp.NumPolygons())
	assert.InDelta(t, 2, mp.Area(), 1e-9)
}

func TestBuildMultiPolygon_OrphanHoleBecomesShell(t *testing.T) {
	mp := buildMultiPolygon(toParts(fixture.Square(0, 0, 1), fixture.Reverse(fixture.Square(10, 10, 1))))
	assert.Equal(t, 2, mp.NumPolygons())
}

func TestBuildMultiPolygon_ClosesOpenRing(t *testing.T) {
	open := fixture.Square(0, 0, 2)
	open = open[:len(open)-1]
	mp := buildMultiPolygon(toParts(open))
	require.Equal(t, 1, mp.NumPolygons())
	assert.InDelta(t, 4, mp.Area(), 1e-9)
}

func TestBuildMultiPolygon_SkipsShortRings(t *testing.T) {
	mp := buildMultiPolygon(toParts([][2]float64{{0, 0}, {1, 1}}))
	assert.Equal(t, 0, mp.NumPolygons())
}

func TestToMultiPolygon(t *testing.T) {
	mp, err := ToMultiPolygon(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, mp.NumPolygons())

	mp, err = ToMultiPolygon(&shp.Null{})
	require.NoError(t, err)
	assert.Equal(t, 0, mp.NumPolygons())

	_, err = ToMultiPolygon(&shp.Point{X: 1, Y: 1})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrUnrecognizedFormat))

	parts, pts := toParts(fixture.Square(0, 0, 1))
	mp, err = ToMultiPolygon(&shp.PolygonZ{Parts: parts, Points: pts, NumParts: 1})
	require.NoError(t, err)
	assert.Equal(t, 1, mp.NumPolygons())
}

func TestNewAttrDecoder(t *testing.T) {
	tests := []struct {
		charset string
		want    string
	}{
		{"", "auto"},
		{"UTF-8", "utf-8"},
		{"1252", "windows-1252"},
		{"88591", "windows-1252"}, // WHATWG maps ISO-8859-1 to windows-1252
		{"not-a-charset", "auto"},
	}
	for _, tt := range tests {
		t.Run(tt.charset, func(t *testing.T) {
			assert.Equal(t, tt.want, newAttrDecoder(tt.charset).name)
		})
	}
}

func toParts(rings ...[][2]float64) ([]int32, []shp.Point) {
	var parts []int32
	var pts []shp.Point
	for _, r := range rings {
		parts = append(parts, int32(len(pts)))
		for _, c := range r {
			pts = append(pts, shp.Point{X: c[0], Y: c[1]})
		}
	}
	return parts, pts
}
