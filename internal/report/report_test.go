package report

import (
	"bytes"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/densitymap/internal/model"
)

func poly(i int, name string, n int, area, density float64) model.Polygon {
	return model.Polygon{
		Index:      i,
		Attributes: []model.Attribute{{Name: "NOMBRE", Value: name}},
		PointCount: n,
		Area:       area,
		Density:    density,
	}
}

func sampleLayer() model.Layer {
	return model.Layer{
		Fields: []string{"NOMBRE"},
		Polygons: []model.Polygon{
			poly(0, "A", 3, 1, 3000),
			poly(1, "B", 0, 1, 0),
		},
	}
}

func TestDescribe_TwoPolygons(t *testing.T) {
	s := Describe(sampleLayer())
	require.Len(t, s.Columns, 3)
	assert.Equal(t, []string{model.ColumnPointCount, model.ColumnArea, model.ColumnDensity},
		[]string{s.Columns[0].Column, s.Columns[1].Column, s.Columns[2].Column})

	n, ok := s.Column(model.ColumnPointCount)
	require.True(t, ok)
	assert.Equal(t, 2, n.Count)
	assert.InDelta(t, 1.5, float64(n.Mean), 1e-12)
	assert.InDelta(t, math.Sqrt(4.5), float64(n.Std), 1e-12)
	assert.Equal(t, Value(0), n.Min)
	assert.InDelta(t, 0.75, float64(n.Q25), 1e-12)
	assert.InDelta(t, 1.5, float64(n.Q50), 1e-12)
	assert.InDelta(t, 2.25, float64(n.Q75), 1e-12)
	assert.Equal(t, Value(3), n.Max)

	d, _ := s.Column(model.ColumnDensity)
	assert.Equal(t, Value(3000), d.Max)
	assert.Equal(t, Value(1500), d.Mean)

	a, _ := s.Column(model.ColumnArea)
	assert.Equal(t, Value(0), a.Std)
}

func TestQuantile(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	tests := []struct {
		p, want float64
	}{
		{0, 1},
		{0.25, 1.75},
		{0.5, 2.5},
		{0.75, 3.25},
		{1, 4},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, quantile(data, tt.p), 1e-12, "p=%v", tt.p)
	}
	assert.Equal(t, 7.0, quantile([]float64{7}, 0.25))
}

func TestDescribe_EmptyAndSingle(t *testing.T) {
	s := Describe(model.Layer{})
	for _, c := range s.Columns {
		assert.Equal(t, 0, c.Count)
		assert.True(t, math.IsNaN(float64(c.Mean)))
	}

	s = Describe(model.Layer{Polygons: []model.Polygon{poly(0, "A", 2, 4, 500)}})
	d, _ := s.Column(model.ColumnDensity)
	assert.Equal(t, 1, d.Count)
	assert.Equal(t, Value(500), d.Q25)
	assert.True(t, math.IsNaN(float64(d.Std)))
}

func TestDescribe_ExcludesDegenerateFromAreaAndDensity(t *testing.T) {
	layer := sampleLayer()
	bad := poly(2, "C", 4, 0, 0)
	bad.Err = eris.Wrap(model.ErrDegenerateGeometry, "zero area")
	layer.Polygons = append(layer.Polygons, bad)

	s := Describe(layer)
	n, _ := s.Column(model.ColumnPointCount)
	a, _ := s.Column(model.ColumnArea)
	d, _ := s.Column(model.ColumnDensity)
	assert.Equal(t, 3, n.Count)
	assert.Equal(t, Value(4), n.Max)
	assert.Equal(t, 2, a.Count)
	assert.Equal(t, 2, d.Count)
}

func TestValue_MarshalJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		A Value `json:"a"`
		B Value `json:"b"`
	}{A: Value(math.NaN()), B: 1.5})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":null,"b":1.5}`, string(data))
}

func TestTop(t *testing.T) {
	layer := model.Layer{Polygons: []model.Polygon{
		poly(0, "A", 1, 1, 10),
		poly(1, "B", 1, 1, 50),
		poly(2, "C", 1, 1, 10),
		poly(3, "D", 1, 1, 70),
		poly(4, "E", 1, 1, 10),
		poly(5, "F", 1, 1, 5),
		poly(6, "G", 1, 1, 10),
	}}
	bad := poly(7, "H", 9, 0, 0)
	bad.Err = eris.Wrap(model.ErrDegenerateGeometry, "zero area")
	layer.Polygons = append(layer.Polygons, bad)

	top := Top(layer, DefaultTopN)
	require.Len(t, top, 5)
	var got []int
	for _, p := range top {
		got = append(got, p.Index)
	}
	// Ties keep layer order.
	assert.Equal(t, []int{3, 1, 0, 2, 4}, got)

	assert.Len(t, Top(layer, 100), 7)
	assert.Nil(t, Top(layer, 0))
}

func TestTop_DoesNotReorderLayer(t *testing.T) {
	layer := sampleLayer()
	layer.Polygons[0], layer.Polygons[1] = layer.Polygons[1], layer.Polygons[0]
	_ = Top(layer, 5)
	assert.Equal(t, 1, layer.Polygons[0].Index)
}

func TestPreview(t *testing.T) {
	layer := sampleLayer()
	assert.Len(t, Preview(layer, DefaultPreviewRows), 2)
	assert.Len(t, Preview(layer, 1), 1)
	assert.Nil(t, Preview(layer, 0))

	p := Preview(layer, 1)
	p[0].PointCount = 99
	assert.Equal(t, 3, layer.Polygons[0].PointCount)
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, New(sampleLayer(), DefaultTopN, DefaultPreviewRows)))
	out := buf.String()

	assert.Contains(t, out, "Resumen estadístico")
	assert.Contains(t, out, "points_per_1000km2")
	assert.Contains(t, out, "1500.000000")
	assert.Contains(t, out, "Top 2 por densidad de puntos")
	assert.Contains(t, out, "Vista previa de atributos")

	lines := strings.Split(out, "\n")
	var topRows []string
	for _, l := range lines {
		if strings.HasPrefix(l, "A ") || strings.HasPrefix(l, "B ") {
			topRows = append(topRows, strings.Join(strings.Fields(l), " "))
		}
	}
	require.GreaterOrEqual(t, len(topRows), 2)
	assert.Equal(t, "A 3 1 3000", topRows[0])
	assert.Equal(t, "B 0 1 0", topRows[1])
}

func TestWriteText_NaN(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, New(model.Layer{}, DefaultTopN, DefaultPreviewRows)))
	assert.Contains(t, buf.String(), "NaN")
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, New(sampleLayer(), DefaultTopN, DefaultPreviewRows)))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Contains(t, f.Sheet, SheetSummary)
	require.Contains(t, f.Sheet, SheetTop)
	require.Contains(t, f.Sheet, SheetPreview)

	summary := f.Sheet[SheetSummary]
	require.Len(t, summary.Rows, 1+len(StatNames))
	assert.Equal(t, model.ColumnDensity, summary.Rows[0].Cells[3].String())
	assert.Equal(t, "max", summary.Rows[8].Cells[0].String())
	maxDensity, err := summary.Rows[8].Cells[3].Float()
	require.NoError(t, err)
	assert.Equal(t, 3000.0, maxDensity)

	top := f.Sheet[SheetTop]
	require.Len(t, top.Rows, 3)
	assert.Equal(t, []string{"NOMBRE", model.ColumnPointCount, model.ColumnArea, model.ColumnDensity},
		[]string{top.Rows[0].Cells[0].String(), top.Rows[0].Cells[1].String(), top.Rows[0].Cells[2].String(), top.Rows[0].Cells[3].String()})
	assert.Equal(t, "A", top.Rows[1].Cells[0].String())
	n, err := top.Rows[1].Cells[1].Int()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestReport_YAML(t *testing.T) {
	data, err := yaml.Marshal(New(sampleLayer(), 1, 1))
	require.NoError(t, err)
	assert.Contains(t, string(data), "points_per_1000km2: 3000")
	assert.Contains(t, string(data), "column: n_points")
}
