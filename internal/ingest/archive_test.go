package ingest

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sells-group/densitymap/internal/model"
)

type member struct {
	name    string
	content string
}

func buildZIP(t *testing.T, members ...member) *bytes.Reader {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, m := range members {
		fw, err := w.Create(m.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(m.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return bytes.NewReader(buf.Bytes())
}

func open(t *testing.T, r *bytes.Reader) (*Bundle, error) {
	t.Helper()
	return OpenArchive(r, r.Size(), Options{TempRoot: t.TempDir()})
}

func TestOpenArchive_MissingInput(t *testing.T) {
	_, err := OpenArchive(nil, 0, Options{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrMissingInput))

	_, err = OpenArchive(bytes.NewReader(nil), 0, Options{})
	assert.True(t, eris.Is(err, model.ErrMissingInput))
}

func TestOpenArchive_CorruptZIP(t *testing.T) {
	r := bytes.NewReader([]byte("this is not a zip archive"))
	_, err := open(t, r)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrMalformedData))
}

func TestOpenArchive_NoRecognizedFiles(t *testing.T) {
	r := buildZIP(t, member{"readme.txt", "hello"}, member{"points.csv", "longitude,latitude"})
	_, err := open(t, r)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrUnrecognizedFormat))
	assert.Contains(t, err.Error(), "no .shp, .dbf or .shx")
}

func TestOpenArchive_NoSHP(t *testing.T) {
	r := buildZIP(t, member{"deptos.dbf", "x"}, member{"deptos.shx", "x"})
	_, err := open(t, r)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrUnrecognizedFormat))
	assert.Contains(t, err.Error(), "no .shp")
}

func TestOpenArchive_MissingDBF(t *testing.T) {
	r := buildZIP(t, member{"deptos.shp", "x"}, member{"deptos.shx", "x"})
	_, err := open(t, r)
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrUnrecognizedFormat))
	assert.Contains(t, err.Error(), ".dbf")
}

func TestOpenArchive_ExtractsLayer(t *testing.T) {
	r := buildZIP(t,
		member{"data/Deptos.SHP", "shp-bytes"},
		member{"data/Deptos.DBF", "dbf-bytes"},
		member{"data/Deptos.shx", "shx-bytes"},
		member{"data/Deptos.cpg", "UTF-8"},
		member{"data/Deptos.prj", "PROJCS[...]"},
		member{"data/notes.txt", "ignored"},
	)

	b, err := open(t, r)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	assert.Equal(t, filepath.Join(b.Dir, "layer.shp"), b.SHPPath)
	assert.Equal(t, filepath.Join(b.Dir, "layer.dbf"), b.DBFPath)
	assert.Equal(t, filepath.Join(b.Dir, "layer.shx"), b.SHXPath)
	assert.Equal(t, filepath.Join(b.Dir, "layer.cpg"), b.CPGPath)
	assert.Equal(t, filepath.Join(b.Dir, "layer.prj"), b.PRJPath)
	assert.Equal(t, []string{
		"data/Deptos.SHP", "data/Deptos.DBF", "data/Deptos.shx", "data/Deptos.cpg", "data/Deptos.prj",
	}, b.Members)

	data, err := os.ReadFile(b.SHPPath)
	require.NoError(t, err)
	assert.Equal(t, "shp-bytes", string(data))

	_, err = os.Stat(filepath.Join(b.Dir, "notes.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestOpenArchive_OptionalSidecarsAbsent(t *testing.T) {
	r := buildZIP(t, member{"a.shp", "s"}, member{"a.dbf", "d"})
	b, err := open(t, r)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	assert.Empty(t, b.SHXPath)
	assert.Empty(t, b.CPGPath)
	assert.Empty(t, b.PRJPath)
}

func observeLogs(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	restore := zap.ReplaceGlobals(zap.New(core))
	t.Cleanup(restore)
	return logs
}

func TestOpenArchive_LogsProjection(t *testing.T) {
	logs := observeLogs(t)
	r := buildZIP(t, member{"a.shp", "s"}, member{"a.dbf", "d"}, member{"a.prj", "GEOGCS[...]"})
	b, err := open(t, r)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	entries := logs.FilterMessage("ingest: extracted shapefile").All()
	require.Len(t, entries, 1)
	assert.Equal(t, b.PRJPath, entries[0].ContextMap()["prj"])
	assert.Zero(t, logs.FilterMessageSnippet("no .prj").Len())
}

func TestOpenArchive_NotesMissingProjection(t *testing.T) {
	logs := observeLogs(t)
	r := buildZIP(t, member{"a.shp", "s"}, member{"a.dbf", "d"})
	b, err := open(t, r)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	assert.Equal(t, 1, logs.FilterMessageSnippet("no .prj").Len())
	entries := logs.FilterMessage("ingest: extracted shapefile").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "", entries[0].ContextMap()["prj"])
}

func TestOpenArchive_FirstLayerWins(t *testing.T) {
	r := buildZIP(t,
		member{"first.shp", "first"},
		member{"second.shp", "second"},
		member{"second.dbf", "d2"},
		member{"first.dbf", "d1"},
	)
	b, err := open(t, r)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	data, err := os.ReadFile(b.SHPPath)
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))

	data, err = os.ReadFile(b.DBFPath)
	require.NoError(t, err)
	assert.Equal(t, "d1", string(data))
}

func TestOpenArchive_SkipsMacOSJunk(t *testing.T) {
	r := buildZIP(t,
		member{"__MACOSX/._a.shp", "junk"},
		member{"a.shp", "real"},
		member{"a.dbf", "d"},
	)
	b, err := open(t, r)
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck

	data, err := os.ReadFile(b.SHPPath)
	require.NoError(t, err)
	assert.Equal(t, "real", string(data))
}

func TestOpenArchive_EntryTooLarge(t *testing.T) {
	root := t.TempDir()
	r := buildZIP(t, member{"a.shp", "0123456789"}, member{"a.dbf", "d"})
	_, err := OpenArchive(r, r.Size(), Options{TempRoot: root, MaxEntryBytes: 4})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrMalformedData))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "failed extraction must not leave a temp dir behind")
}

func TestBundleClose_RemovesDir(t *testing.T) {
	r := buildZIP(t, member{"a.shp", "s"}, member{"a.dbf", "d"})
	b, err := open(t, r)
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, err = os.Stat(b.Dir)
	assert.True(t, os.IsNotExist(err))

	var nilBundle *Bundle
	assert.NoError(t, nilBundle.Close())
}

func TestOpenArchiveFile(t *testing.T) {
	r := buildZIP(t, member{"a.shp", "s"}, member{"a.dbf", "d"})
	zipPath := filepath.Join(t.TempDir(), "layer.zip")
	data := make([]byte, r.Size())
	_, err := r.ReadAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(zipPath, data, 0o644))

	b, err := OpenArchiveFile(zipPath, Options{TempRoot: t.TempDir()})
	require.NoError(t, err)
	defer b.Close() //nolint:errcheck
	assert.FileExists(t, b.SHPPath)
}

func TestOpenArchiveFile_Missing(t *testing.T) {
	_, err := OpenArchiveFile("", Options{})
	assert.True(t, eris.Is(err, model.ErrMissingInput))

	_, err = OpenArchiveFile(filepath.Join(t.TempDir(), "nope.zip"), Options{})
	assert.True(t, eris.Is(err, model.ErrMissingInput))
}
