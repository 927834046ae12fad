package report

import (
	"github.com/sells-group/densitymap/internal/model"
)

// Report bundles every table shown after an analysis.
type Report struct {
	Fields  []string        `json:"fields" yaml:"fields"`
	Summary Summary         `json:"summary" yaml:"summary"`
	Top     []model.Polygon `json:"top" yaml:"top"`
	Preview []model.Polygon `json:"preview" yaml:"preview"`
}

// New builds the report tables for an aggregated layer.
func New(layer model.Layer, topN, previewRows int) Report {
	return Report{
		Fields:  append([]string(nil), layer.Fields...),
		Summary: Describe(layer),
		Top:     Top(layer, topN),
		Preview: Preview(layer, previewRows),
	}
}

// StatNames lists the describe rows in display order.
var StatNames = []string{"count", "mean", "std", "min", "25%", "50%", "75%", "max"}

// Row returns the values of one describe row across columns.
func (s Summary) Row(stat string) []float64 {
	out := make([]float64, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.value(stat)
	}
	return out
}

func (c Stats) value(stat string) float64 {
	switch stat {
	case "count":
		return float64(c.Count)
	case "mean":
		return float64(c.Mean)
	case "std":
		return float64(c.Std)
	case "min":
		return float64(c.Min)
	case "25%":
		return float64(c.Q25)
	case "50%":
		return float64(c.Q50)
	case "75%":
		return float64(c.Q75)
	case "max":
		return float64(c.Max)
	}
	return 0
}

// PolygonRow is the attribute values of p in fields order.
func PolygonRow(p model.Polygon, fields []string) []string {
	row := make([]string, 0, len(fields)+3) // room for the derived columns
	for _, f := range fields {
		v, _ := p.Attribute(f)
		row = append(row, v)
	}
	return row
}

// TableHeader is fields followed by the derived column names.
func TableHeader(fields []string) []string {
	h := append([]string(nil), fields...)
	return append(h, model.ColumnPointCount, model.ColumnArea, model.ColumnDensity)
}
