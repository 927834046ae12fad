package density

import (
	"slices"

	"github.com/dhconnelly/rtreego"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/densitymap/internal/model"
)

// Index narrows containment tests to polygons whose bounding box holds a point.
type Index struct {
	tree *rtreego.Rtree
}

type indexEntry struct {
	pos  int
	rect rtreego.Rect
}

func (e *indexEntry) Bounds() rtreego.Rect { return e.rect }

// NewIndex builds an R-tree over the bounding boxes of layer's polygons.
// Polygons without coordinates are left out.
func NewIndex(layer model.Layer) *Index {
	objs := make([]rtreego.Spatial, 0, len(layer.Polygons))
	for i, p := range layer.Polygons {
		if p.Geometry == nil || p.Geometry.Empty() {
			continue
		}
		b := geom.NewBounds(geom.XY).Extend(p.Geometry)
		rect, err := rtreego.NewRectFromPoints(
			rtreego.Point{b.Min(0), b.Min(1)},
			rtreego.Point{b.Max(0), b.Max(1)},
		)
		if err != nil {
			continue
		}
		objs = append(objs, &indexEntry{pos: i, rect: rect})
	}
	return &Index{tree: rtreego.NewTree(2, 25, 50, objs...)}
}

// Candidates returns the positions of polygons whose bounding box strictly
// contains pt, in ascending order.
func (x *Index) Candidates(pt model.Point) []int {
	hits := x.tree.SearchIntersect(rtreego.Point{pt.Longitude, pt.Latitude}.ToRect(0))
	out := make([]int, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.(*indexEntry).pos)
	}
	slices.Sort(out)
	return out
}

// Size returns the number of indexed polygons.
func (x *Index) Size() int {
	return x.tree.Size()
}
