// Package fixture builds shapefile layers and archives on disk for tests.
package fixture

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/require"
)

// Feature is one polygon record: its rings as x,y pairs plus attribute values
// in field order.
type Feature struct {
	Rings  [][][2]float64
	Values []string
}

// Square returns a closed clockwise ring for the axis-aligned square with its
// lower-left corner at (minX, minY).
func Square(minX, minY, size float64) [][2]float64 {
	return [][2]float64{
		{minX, minY},
		{minX, minY + size},
		{minX + size, minY + size},
		{minX + size, minY},
		{minX, minY},
	}
}

// Reverse returns ring wound the other way.
func Reverse(ring [][2]float64) [][2]float64 {
	out := make([][2]float64, len(ring))
	for i, p := range ring {
		out[len(ring)-1-i] = p
	}
	return out
}

// WriteShapefile writes a polygon shapefile named name into dir and returns
// the .shp path. Every field is a 50-byte character column.
func WriteShapefile(t testing.TB, dir, name string, fields []string, features []Feature) string {
	t.Helper()
	shpPath := filepath.Join(dir, name+".shp")

	w, err := shp.Create(shpPath, shp.POLYGON)
	require.NoError(t, err)

	dbfFields := make([]shp.Field, len(fields))
	for i, f := range fields {
		dbfFields[i] = shp.StringField(f, 50)
	}
	require.NoError(t, w.SetFields(dbfFields))

	for _, f := range features {
		parts := make([][]shp.Point, len(f.Rings))
		for i, r := range f.Rings {
			pts := make([]shp.Point, len(r))
			for j, c := range r {
				pts[j] = shp.Point{X: c[0], Y: c[1]}
			}
			parts[i] = pts
		}
		row := w.Write((*shp.Polygon)(shp.NewPolyLine(parts)))
		for i, v := range f.Values {
			require.NoError(t, w.WriteAttribute(int(row), i, v))
		}
	}
	w.Close()

	// go-shp names the attribute table <base>dbf, without the dot.
	base := strings.TrimSuffix(shpPath, ".shp")
	require.NoError(t, os.Rename(base+"dbf", base+".dbf"))
	return shpPath
}

// ZipOptions adds optional members to an archive built by ZipShapefile.
type ZipOptions struct {
	Prefix string            // directory inside the archive
	CPG    string            // contents of a .cpg member when non-empty
	Extra  map[string][]byte // additional members by name
}

// ZipShapefile writes a layer and returns it packed as a ZIP archive.
func ZipShapefile(t testing.TB, fields []string, features []Feature, opts ZipOptions) []byte {
	t.Helper()
	dir := t.TempDir()
	shpPath := WriteShapefile(t, dir, "layer", fields, features)
	base := shpPath[:len(shpPath)-len(".shp")]

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	add := func(name string, data []byte) {
		fw, err := zw.Create(opts.Prefix + name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}
	for _, ext := range []string{".shp", ".shx", ".dbf"} {
		data, err := os.ReadFile(base + ext)
		require.NoError(t, err)
		add("layer"+ext, data)
	}
	if opts.CPG != "" {
		add("layer.cpg", []byte(opts.CPG))
	}
	for name, data := range opts.Extra {
		add(name, data)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// ZipFiles packs members into a ZIP archive in name order.
func ZipFiles(t testing.TB, members map[string][]byte) []byte {
	t.Helper()
	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range names {
		fw, err := zw.Create(name)
		require.NoError(t, err)
		_, err = fw.Write(members[name])
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// WriteZip writes data to a file in a fresh temp dir and returns its path.
func WriteZip(t testing.TB, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "layer.zip")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}
