package report

import (
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/densitymap/internal/model"
)

// Sheet names in the exported workbook.
const (
	SheetSummary = "summary"
	SheetTop     = "top"
	SheetPreview = "preview"
)

// WriteXLSX writes the report as a workbook with one sheet per table.
func WriteXLSX(out io.Writer, r Report) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet(SheetSummary)
	if err != nil {
		return eris.Wrap(err, "report: add summary sheet")
	}
	head := summary.AddRow()
	head.AddCell().SetString("")
	for _, c := range r.Summary.Columns {
		head.AddCell().SetString(c.Column)
	}
	for _, name := range StatNames {
		row := summary.AddRow()
		row.AddCell().SetString(name)
		for _, v := range r.Summary.Row(name) {
			cell := row.AddCell()
			if math.IsNaN(v) {
				continue
			}
			cell.SetFloat(v)
		}
	}

	if err := addPolygonSheet(f, SheetTop, r.Fields, r.Top); err != nil {
		return err
	}
	if err := addPolygonSheet(f, SheetPreview, r.Fields, r.Preview); err != nil {
		return err
	}

	if err := f.Write(out); err != nil {
		return eris.Wrap(err, "report: write xlsx")
	}
	return nil
}

func addPolygonSheet(f *xlsx.File, name string, fields []string, polys []model.Polygon) error {
	sheet, err := f.AddSheet(name)
	if err != nil {
		return eris.Wrapf(err, "report: add %s sheet", name)
	}
	head := sheet.AddRow()
	for _, h := range TableHeader(fields) {
		head.AddCell().SetString(h)
	}
	for _, p := range polys {
		row := sheet.AddRow()
		for _, v := range PolygonRow(p, fields) {
			row.AddCell().SetString(v)
		}
		row.AddCell().SetInt(p.PointCount)
		row.AddCell().SetFloat(p.Area)
		row.AddCell().SetFloat(p.Density)
	}
	return nil
}
