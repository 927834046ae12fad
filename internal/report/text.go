package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"

	"github.com/sells-group/densitymap/internal/model"
)

// FormatStat renders a describe value with six decimals, "NaN" when undefined.
func FormatStat(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'f', 6, 64)
}

// FormatMetric renders area and density values in their shortest exact form.
func FormatMetric(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteText prints the describe table, the top polygons, and the preview as
// aligned columns.
func WriteText(out io.Writer, r Report) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	header := []string{""}
	for _, c := range r.Summary.Columns {
		header = append(header, c.Column)
	}
	_, _ = fmt.Fprintln(w, "Resumen estadístico")
	_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	for _, name := range StatNames {
		cells := []string{name}
		for _, v := range r.Summary.Row(name) {
			cells = append(cells, FormatStat(v))
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintf(w, "Top %d por densidad de puntos\n", len(r.Top))
	writePolygons(w, r.Fields, r.Top)

	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Vista previa de atributos")
	writePolygons(w, r.Fields, r.Preview)

	if err := w.Flush(); err != nil {
		return eris.Wrap(err, "report: write text")
	}
	return nil
}

func writePolygons(w io.Writer, fields []string, polys []model.Polygon) {
	_, _ = fmt.Fprintln(w, strings.Join(TableHeader(fields), "\t"))
	for _, p := range polys {
		row := PolygonRow(p, fields)
		row = append(row, strconv.Itoa(p.PointCount), FormatMetric(p.Area), FormatMetric(p.Density))
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}
}
