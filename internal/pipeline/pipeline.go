package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/densitymap/internal/config"
	"github.com/sells-group/densitymap/internal/density"
	"github.com/sells-group/densitymap/internal/ingest"
	"github.com/sells-group/densitymap/internal/model"
	"github.com/sells-group/densitymap/internal/points"
	"github.com/sells-group/densitymap/internal/render"
	"github.com/sells-group/densitymap/internal/report"
	"github.com/sells-group/densitymap/internal/shapefile"
)

// Stage names in execution order.
const (
	StageLoad    = "load"
	StagePoints  = "points"
	StageDensity = "density"
	StageRender  = "render"
	StageReport  = "report"
)

// Options configures one analysis run.
type Options struct {
	SampleSize    int
	Seed          uint64
	DefaultBounds model.Bounds
	Density       density.Options
	Map           render.MapOptions
	TopN          int
	PreviewRows   int
	TempDir       string
	MaxEntryBytes int64
	Charset       string
	CSV           points.CSVOptions
}

// DefaultOptions mirrors the configuration defaults.
func DefaultOptions() Options {
	return Options{
		SampleSize:    points.DefaultSampleSize,
		Seed:          points.DefaultSeed,
		DefaultBounds: points.DefaultBounds,
		Density:       density.DefaultOptions(),
		Map:           render.DefaultMapOptions(),
		TopN:          report.DefaultTopN,
		PreviewRows:   report.DefaultPreviewRows,
	}
}

// OptionsFromConfig maps the analysis, map and server sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	a, m := cfg.Analysis, cfg.Map
	return Options{
		SampleSize:    a.SampleSize,
		Seed:          a.Seed,
		DefaultBounds: a.DefaultBounds,
		Density: density.Options{
			AreaDivisor:  a.AreaDivisor,
			DensityScale: a.DensityScale,
			Index:        a.Index,
		},
		Map: render.MapOptions{
			Title:           m.Title,
			CenterLat:       m.CenterLat,
			CenterLon:       m.CenterLon,
			Zoom:            m.Zoom,
			TileURL:         m.TileURL,
			TileAttribution: m.TileAttribution,
			TooltipLabel:    m.TooltipLabel,
			LeafletURL:      m.LeafletURL,
			ClusterURL:      m.ClusterURL,
		},
		TopN:        a.TopN,
		PreviewRows: a.PreviewRows,
		TempDir:     cfg.Server.TempDir,
		Charset:     a.Charset,
	}
}

// Input names the archive and optional point table for one run. Either
// ArchivePath or Archive with ArchiveSize must be set. A nil Points reader
// means synthetic points are generated.
type Input struct {
	ArchivePath string
	Archive     io.ReaderAt
	ArchiveSize int64
	Points      io.Reader
}

// Notice levels.
const (
	LevelSuccess = "success"
	LevelInfo    = "info"
	LevelWarning = "warning"
)

// Notice is a user-facing status line.
type Notice struct {
	Level string `json:"level" yaml:"level"`
	Text  string `json:"text" yaml:"text"`
}

// Issue is a per-polygon problem that did not stop the run.
type Issue struct {
	Index   int    `json:"index" yaml:"index"`
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// Stage records how one step went.
type Stage struct {
	Name     string `json:"name" yaml:"name"`
	Duration int64  `json:"duration_ms" yaml:"duration_ms"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// Result is everything one run produced.
type Result struct {
	RunID   string         `json:"run_id" yaml:"run_id"`
	Layer   model.Layer    `json:"-" yaml:"-"`
	Points  model.PointSet `json:"-" yaml:"-"`
	Report  report.Report  `json:"report" yaml:"report"`
	Notices []Notice       `json:"notices" yaml:"notices"`
	Issues  []Issue        `json:"issues" yaml:"issues"`
	Stages  []Stage        `json:"stages" yaml:"stages"`
	MapHTML []byte         `json:"-" yaml:"-"`
}

// Pipeline runs load, points, density, render and report in order.
type Pipeline struct {
	opts Options
}

// New creates a Pipeline.
func New(opts Options) *Pipeline {
	return &Pipeline{opts: opts}
}

// Run executes one analysis with opts.
func Run(ctx context.Context, in Input, opts Options) (*Result, error) {
	return New(opts).Run(ctx, in)
}

// Run executes every stage for in. Any stage error aborts the run and no
// partial result is returned. Per-polygon degenerate geometries are reported
// as Issues instead. ctx is checked between stages.
func (p *Pipeline) Run(ctx context.Context, in Input) (*Result, error) {
	result := &Result{RunID: uuid.NewString()}
	log := zap.L().With(zap.String("run_id", result.RunID))
	log.Info("pipeline: starting analysis")

	track := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return eris.Wrapf(err, "pipeline: %s", name)
		}
		start := time.Now()
		err := fn()
		stage := Stage{Name: name, Duration: time.Since(start).Milliseconds()}
		if err != nil {
			stage.Error = err.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", stage.Duration),
				zap.Error(err),
			)
		} else {
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.Int64("duration_ms", stage.Duration),
			)
		}
		result.Stages = append(result.Stages, stage)
		return err
	}
	notify := func(level, text string) {
		result.Notices = append(result.Notices, Notice{Level: level, Text: text})
	}

	// ===== Load =====
	var layer model.Layer
	if err := track(StageLoad, func() error {
		var err error
		layer, err = p.loadLayer(in)
		return err
	}); err != nil {
		return nil, err
	}
	notify(LevelSuccess, fmt.Sprintf("Capa cargada (%d polígonos)", layer.Len()))
	if b, ok := layer.Bounds(); ok && b.Geographic() {
		notify(LevelWarning, "Las coordenadas de la capa parecen geográficas (grados): las áreas en km² suponen una proyección en metros.")
	}

	// ===== Points =====
	var pts model.PointSet
	if err := track(StagePoints, func() error {
		if in.Points != nil {
			var err error
			pts, err = points.LoadCSV(in.Points, p.opts.CSV)
			return err
		}
		pts = points.GenerateForLayer(layer, p.opts.SampleSize, p.opts.Seed, p.opts.DefaultBounds)
		return nil
	}); err != nil {
		return nil, err
	}
	if pts.Synthetic {
		notify(LevelInfo, fmt.Sprintf("No se subió CSV, generando %d puntos aleatorios.", pts.Len()))
	} else {
		notify(LevelInfo, "CSV cargado correctamente.")
	}
	result.Points = pts

	// ===== Density =====
	if err := track(StageDensity, func() error {
		var err error
		layer, err = density.Aggregate(layer, pts, p.opts.Density)
		return err
	}); err != nil {
		return nil, err
	}
	for _, poly := range layer.Polygons {
		if poly.Err != nil {
			result.Issues = append(result.Issues, Issue{
				Index:   poly.Index,
				Kind:    model.Kind(poly.Err),
				Message: poly.Err.Error(),
			})
		}
	}
	if n := len(result.Issues); n > 0 {
		notify(LevelWarning, fmt.Sprintf("%d polígono(s) sin área válida: densidad no calculada.", n))
	}
	result.Layer = layer

	// ===== Render =====
	if err := track(StageRender, func() error {
		var buf bytes.Buffer
		if err := render.RenderMap(&buf, layer, pts, p.opts.Map); err != nil {
			return err
		}
		result.MapHTML = buf.Bytes()
		return nil
	}); err != nil {
		return nil, err
	}

	// ===== Report =====
	if err := track(StageReport, func() error {
		result.Report = report.New(layer, p.opts.TopN, p.opts.PreviewRows)
		return nil
	}); err != nil {
		return nil, err
	}

	notify(LevelSuccess, "Análisis completado exitosamente.")
	log.Info("pipeline: analysis complete",
		zap.Int("polygons", layer.Len()),
		zap.Int("points", pts.Len()),
		zap.Int("issues", len(result.Issues)),
	)
	return result, nil
}

func (p *Pipeline) loadLayer(in Input) (model.Layer, error) {
	ingestOpts := ingest.Options{TempRoot: p.opts.TempDir, MaxEntryBytes: p.opts.MaxEntryBytes}

	var (
		bundle *ingest.Bundle
		err    error
	)
	switch {
	case in.Archive != nil:
		bundle, err = ingest.OpenArchive(in.Archive, in.ArchiveSize, ingestOpts)
	default:
		bundle, err = ingest.OpenArchiveFile(in.ArchivePath, ingestOpts)
	}
	if err != nil {
		return model.Layer{}, err
	}
	defer func() {
		if cerr := bundle.Close(); cerr != nil {
			zap.L().Warn("pipeline: cleanup failed", zap.String("dir", bundle.Dir), zap.Error(cerr))
		}
	}()

	return shapefile.Read(bundle.SHPPath, shapefile.ReadOptions{
		CPGPath: bundle.CPGPath,
		Charset: p.opts.Charset,
	})
}
