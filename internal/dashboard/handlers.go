package dashboard

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/densitymap/internal/model"
	"github.com/sells-group/densitymap/internal/pipeline"
	"github.com/sells-group/densitymap/internal/render"
	"github.com/sells-group/densitymap/internal/report"
)

// Multipart field names.
const (
	FieldArchive = "archive"
	FieldPoints  = "points"
)

const multipartMemory = 8 << 20

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	s.renderPage(w, http.StatusOK, pageData{})
}

func (s *Server) analyzePage(w http.ResponseWriter, r *http.Request) {
	res, err := s.run(r)
	if err != nil {
		status := statusFor(err)
		s.renderPage(w, status, pageData{
			Error:   userMessage(err),
			Kind:    model.Kind(err),
			Warning: status == http.StatusBadRequest,
		})
		return
	}
	s.renderPage(w, http.StatusOK, newPageData(res))
}

// analyzeResponse is the JSON body of POST /api/analyze.
type analyzeResponse struct {
	*pipeline.Result
	Features *geojson.FeatureCollection `json:"features"`
}

func (s *Server) analyzeJSON(w http.ResponseWriter, r *http.Request) {
	res, err := s.run(r)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("X-Run-Id", res.RunID)
	writeJSON(w, http.StatusOK, analyzeResponse{
		Result:   res,
		Features: render.FeatureCollection(res.Layer, s.analysis.Map.TooltipLabel),
	})
}

func (s *Server) reportXLSX(w http.ResponseWriter, r *http.Request) {
	res, err := s.run(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, res.Report); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="densidad-%s.xlsx"`, res.RunID))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Run-Id", res.RunID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// run parses the upload and executes the pipeline on it.
func (s *Server) run(r *http.Request) (*pipeline.Result, error) {
	start := time.Now()
	res, err := s.analyze(r)
	if err != nil {
		s.metrics.observe(r.URL.Path, model.Kind(err), start, 0, 0)
		return nil, err
	}
	s.metrics.observe(r.URL.Path, outcomeOK, start, res.Layer.Len(), res.Points.Len())
	return res, nil
}

func (s *Server) analyze(r *http.Request) (*pipeline.Result, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, eris.Wrapf(errUploadTooLarge, "dashboard: upload exceeds %d bytes", tooLarge.Limit)
		}
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, eris.Wrap(model.ErrMissingInput, "dashboard: expected a multipart upload")
		}
		return nil, eris.Wrapf(model.ErrMalformedData, "dashboard: parse upload: %v", err)
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	archive, header, err := r.FormFile(FieldArchive)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, eris.Wrap(model.ErrMissingInput, "dashboard: no archive uploaded")
		}
		return nil, eris.Wrap(err, "dashboard: open archive upload")
	}
	defer archive.Close() //nolint:errcheck

	in := pipeline.Input{Archive: archive, ArchiveSize: header.Size}

	pts, _, err := r.FormFile(FieldPoints)
	switch {
	case err == nil:
		defer pts.Close() //nolint:errcheck
		in.Points = pts
	case errors.Is(err, http.ErrMissingFile):
	default:
		return nil, eris.Wrap(err, "dashboard: open points upload")
	}

	res, err := pipeline.Run(r.Context(), in, s.analysis)
	if err != nil {
		zap.L().Warn("dashboard: analysis failed",
			zap.String("kind", model.Kind(err)),
			zap.String("archive", header.Filename),
			zap.Error(err),
		)
		return nil, err
	}
	return res, nil
}

var errUploadTooLarge = eris.New("upload too large")

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	if eris.Is(err, errUploadTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	switch model.Kind(err) {
	case model.KindMissingInput:
		return http.StatusBadRequest
	case model.KindUnrecognizedFormat, model.KindMalformedData, model.KindDegenerateGeometry:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the text shown for err. Missing input gets the upload
// prompt; classified errors show their message; anything else stays generic.
func userMessage(err error) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		return "Por favor sube un archivo .zip que contenga tu shapefile (.shp, .dbf, .shx)."
	case http.StatusInternalServerError:
		return "Error interno al procesar el análisis."
	default:
		return err.Error()
	}
}

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	kind := model.Kind(err)
	if status == http.StatusRequestEntityTooLarge {
		kind = "UploadTooLarge"
	}
	writeJSON(w, status, ErrorResponse{Kind: kind, Message: userMessage(err)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

type table struct {
	Header []string
	Rows   [][]string
}

type pageData struct {
	Title   string
	Error   string
	Kind    string
	Warning bool

	Result  *pipeline.Result
	MapHTML string
	Summary table
	Top     table
	Preview table
}

func newPageData(res *pipeline.Result) pageData {
	rep := res.Report
	summary := table{Header: []string{""}}
	for _, c := range rep.Summary.Columns {
		summary.Header = append(summary.Header, c.Column)
	}
	for _, name := range report.StatNames {
		row := []string{name}
		for _, v := range rep.Summary.Row(name) {
			row = append(row, report.FormatStat(v))
		}
		summary.Rows = append(summary.Rows, row)
	}
	return pageData{
		Result:  res,
		MapHTML: string(res.MapHTML),
		Summary: summary,
		Top:     polygonTable(rep.Fields, rep.Top),
		Preview: polygonTable(rep.Fields, rep.Preview),
	}
}

func polygonTable(fields []string, polys []model.Polygon) table {
	t := table{Header: report.TableHeader(fields)}
	for _, p := range polys {
		row := report.PolygonRow(p, fields)
		row = append(row, strconv.Itoa(p.PointCount), report.FormatMetric(p.Area), report.FormatMetric(p.Density))
		t.Rows = append(t.Rows, row)
	}
	return t
}

func (s *Server) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	data.Title = s.analysis.Map.Title
	if err := s.page.Execute(&buf, data); err != nil {
		zap.L().Error("dashboard: render page", zap.Error(err))
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
