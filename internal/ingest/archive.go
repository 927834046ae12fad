// Package ingest unpacks uploaded shapefile archives into scoped temporary directories.
package ingest

import (
	"archive/zip"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/densitymap/internal/model"
)

// ShapefileExts is the set of extensions that identify a polygon layer inside an archive.
var ShapefileExts = []string{".shp", ".dbf", ".shx"}

// sidecarExts are optional members extracted alongside the layer when present.
var sidecarExts = []string{".cpg", ".prj"}

// DefaultMaxEntryBytes caps the uncompressed size of a single extracted member.
const DefaultMaxEntryBytes int64 = 512 << 20

// Options configures archive extraction.
type Options struct {
	TempRoot      string // parent of the per-session directory; os.TempDir() when empty
	MaxEntryBytes int64  // default DefaultMaxEntryBytes
}

// Bundle is an extracted shapefile layer. Close removes every extracted file.
type Bundle struct {
	Dir     string
	SHPPath string
	DBFPath string
	SHXPath string // empty when the archive had no index file
	CPGPath string // optional code page declaration
	PRJPath string // optional projection definition
	Members []string
}

// Close removes the bundle's temporary directory.
func (b *Bundle) Close() error {
	if b == nil || b.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(b.Dir); err != nil {
		return eris.Wrapf(err, "ingest: remove %s", b.Dir)
	}
	return nil
}

// OpenArchiveFile opens the ZIP archive at path and extracts its shapefile.
func OpenArchiveFile(zipPath string, opts Options) (*Bundle, error) {
	if zipPath == "" {
		return nil, eris.Wrap(model.ErrMissingInput, "ingest: no archive supplied")
	}
	f, err := os.Open(zipPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(model.ErrMissingInput, "ingest: archive %s does not exist", zipPath)
		}
		return nil, eris.Wrap(err, "ingest: open archive")
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, eris.Wrap(err, "ingest: stat archive")
	}
	return OpenArchive(f, info.Size(), opts)
}

// OpenArchive reads a ZIP archive of size bytes from r and extracts the first
// shapefile layer it contains. The returned Bundle must be closed by the caller.
func OpenArchive(r io.ReaderAt, size int64, opts Options) (*Bundle, error) {
	if r == nil || size <= 0 {
		return nil, eris.Wrap(model.ErrMissingInput, "ingest: no archive supplied")
	}
	if opts.MaxEntryBytes <= 0 {
		opts.MaxEntryBytes = DefaultMaxEntryBytes
	}

	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, eris.Wrapf(model.ErrMalformedData, "ingest: read zip archive: %v", err)
	}

	members, err := selectLayer(zr.File)
	if err != nil {
		return nil, err
	}

	root := opts.TempRoot
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "densitymap-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "ingest: create extract dir")
	}

	b := &Bundle{Dir: dir}
	for _, ext := range append(append([]string(nil), ShapefileExts...), sidecarExts...) {
		f, ok := members[ext]
		if !ok {
			continue
		}
		dest, err := extractMember(f, dir, ext, opts.MaxEntryBytes)
		if err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Members = append(b.Members, f.Name)
		switch ext {
		case ".shp":
			b.SHPPath = dest
		case ".dbf":
			b.DBFPath = dest
		case ".shx":
			b.SHXPath = dest
		case ".cpg":
			b.CPGPath = dest
		case ".prj":
			b.PRJPath = dest
		}
	}

	if b.PRJPath == "" {
		zap.L().Info("ingest: layer has no .prj, coordinates used as stored")
	}
	zap.L().Debug("ingest: extracted shapefile",
		zap.String("dir", dir),
		zap.Strings("members", b.Members),
		zap.String("prj", b.PRJPath),
	)
	return b, nil
}

// selectLayer picks the first .shp in archive order and the sidecars sharing
// its stem. Matching is case-insensitive on the extension and the stem.
func selectLayer(files []*zip.File) (map[string]*zip.File, error) {
	var recognized []*zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() || isJunk(f.Name) {
			continue
		}
		if hasExt(f.Name, ShapefileExts) {
			recognized = append(recognized, f)
		}
	}
	if len(recognized) == 0 {
		return nil, eris.Wrap(model.ErrUnrecognizedFormat, "ingest: archive contains no .shp, .dbf or .shx files")
	}

	var shp *zip.File
	var extra int
	for _, f := range recognized {
		if strings.EqualFold(path.Ext(f.Name), ".shp") {
			if shp == nil {
				shp = f
			} else {
				extra++
			}
		}
	}
	if shp == nil {
		return nil, eris.Wrap(model.ErrUnrecognizedFormat, "ingest: archive has no .shp file")
	}
	if extra > 0 {
		zap.L().Warn("ingest: archive holds several layers, using the first",
			zap.String("layer", shp.Name),
			zap.Int("ignored", extra),
		)
	}

	stem := strings.ToLower(strings.TrimSuffix(shp.Name, path.Ext(shp.Name)))
	members := map[string]*zip.File{".shp": shp}
	for _, f := range files {
		if f.FileInfo().IsDir() || isJunk(f.Name) {
			continue
		}
		ext := strings.ToLower(path.Ext(f.Name))
		if ext == ".shp" || strings.ToLower(strings.TrimSuffix(f.Name, path.Ext(f.Name))) != stem {
			continue
		}
		if !hasExt(f.Name, ShapefileExts) && !hasExt(f.Name, sidecarExts) {
			continue
		}
		if _, seen := members[ext]; !seen {
			members[ext] = f
		}
	}

	if _, ok := members[".dbf"]; !ok {
		return nil, eris.Wrapf(model.ErrUnrecognizedFormat, "ingest: %s has no matching .dbf attribute table", shp.Name)
	}
	if _, ok := members[".shx"]; !ok {
		zap.L().Warn("ingest: layer has no .shx index", zap.String("layer", shp.Name))
	}
	return members, nil
}

// extractMember writes f into dir as layer<ext>. Flattening to a fixed name
// keeps archive paths out of the filesystem and gives the shapefile reader
// the lowercase extensions it expects.
func extractMember(f *zip.File, dir, ext string, limit int64) (string, error) {
	destPath := filepath.Join(dir, "layer"+ext)
	if !strings.HasPrefix(filepath.Clean(destPath), filepath.Clean(dir)+string(os.PathSeparator)) {
		return "", eris.Errorf("ingest: illegal path %q", f.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return "", eris.Wrapf(model.ErrMalformedData, "ingest: open %s: %v", f.Name, err)
	}
	defer rc.Close() //nolint:errcheck

	out, err := os.Create(destPath)
	if err != nil {
		return "", eris.Wrap(err, "ingest: create file")
	}
	defer out.Close() //nolint:errcheck

	n, err := io.Copy(out, io.LimitReader(rc, limit+1))
	if err != nil {
		return "", eris.Wrapf(model.ErrMalformedData, "ingest: extract %s: %v", f.Name, err)
	}
	if n > limit {
		return "", eris.Wrapf(model.ErrMalformedData, "ingest: %s exceeds %d bytes", f.Name, limit)
	}
	return destPath, nil
}

func hasExt(name string, exts []string) bool {
	ext := path.Ext(name)
	for _, e := range exts {
		if strings.EqualFold(ext, e) {
			return true
		}
	}
	return false
}

// isJunk skips resource-fork copies that macOS adds to archives.
func isJunk(name string) bool {
	return strings.HasPrefix(name, "__MACOSX/") || strings.HasPrefix(path.Base(name), "._")
}
