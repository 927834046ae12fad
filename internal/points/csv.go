package points

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/densitymap/internal/model"
)

// Required point table columns.
const (
	ColumnLongitude = "longitude"
	ColumnLatitude  = "latitude"
)

// CSVOptions configures point table parsing.
type CSVOptions struct {
	Delimiter rune // 0 = detect from the header among ',', ';' and tab
}

// LoadCSV reads a delimited point table whose header names longitude and
// latitude columns. Header matching ignores case and surrounding space.
// Every data row must carry numeric values in both columns.
func LoadCSV(r io.Reader, opts CSVOptions) (model.PointSet, error) {
	if r == nil {
		return model.PointSet{}, eris.Wrap(model.ErrMissingInput, "points: no point table supplied")
	}

	br := bufio.NewReader(r)
	delim := opts.Delimiter
	if delim == 0 {
		head, _ := br.Peek(4096)
		delim = detectDelimiter(head)
	}

	reader := csv.NewReader(br)
	reader.Comma = delim
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return model.PointSet{}, eris.Wrap(model.ErrMalformedData, "points: point table is empty")
	}
	if err != nil {
		return model.PointSet{}, eris.Wrapf(model.ErrMalformedData, "points: read header: %v", err)
	}

	lonIdx, latIdx := -1, -1
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		switch name {
		case ColumnLongitude:
			if lonIdx < 0 {
				lonIdx = i
			}
		case ColumnLatitude:
			if latIdx < 0 {
				latIdx = i
			}
		}
	}
	var missing []string
	if lonIdx < 0 {
		missing = append(missing, ColumnLongitude)
	}
	if latIdx < 0 {
		missing = append(missing, ColumnLatitude)
	}
	if len(missing) > 0 {
		return model.PointSet{}, eris.Wrapf(model.ErrMalformedData,
			"points: missing column(s) %s", strings.Join(missing, ", "))
	}

	var pts []model.Point
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return model.PointSet{}, eris.Wrapf(model.ErrMalformedData, "points: %v", err)
		}
		line, _ := reader.FieldPos(0)
		if blank(record) {
			continue
		}

		lon, err := parseCoord(record, lonIdx)
		if err != nil {
			return model.PointSet{}, eris.Wrapf(model.ErrMalformedData, "points: line %d: %s: %v", line, ColumnLongitude, err)
		}
		lat, err := parseCoord(record, latIdx)
		if err != nil {
			return model.PointSet{}, eris.Wrapf(model.ErrMalformedData, "points: line %d: %s: %v", line, ColumnLatitude, err)
		}
		pts = append(pts, model.Point{Longitude: lon, Latitude: lat})
	}

	return model.PointSet{Points: pts}, nil
}

func parseCoord(record []string, idx int) (float64, error) {
	if idx >= len(record) {
		return 0, eris.New("value missing")
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
	if err != nil {
		return 0, eris.Errorf("%q is not a number", record[idx])
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, eris.Errorf("%q is not finite", record[idx])
	}
	return v, nil
}

func blank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// detectDelimiter picks the most frequent candidate in the first line.
func detectDelimiter(head []byte) rune {
	if i := bytes.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}
	best, bestN := ',', 0
	for _, c := range []rune{',', ';', '\t'} {
		if n := bytes.Count(head, []byte(string(c))); n > bestN {
			best, bestN = c, n
		}
	}
	return best
}
