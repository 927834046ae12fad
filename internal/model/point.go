package model

// Point is a single geographic position in decimal degrees.
type Point struct {
	Longitude float64 `json:"longitude" yaml:"longitude"`
	Latitude  float64 `json:"latitude" yaml:"latitude"`
}

// PointSet is the ordered set of points counted against a Layer.
type PointSet struct {
	Points    []Point `json:"points" yaml:"points"`
	Synthetic bool    `json:"synthetic" yaml:"synthetic"` // generated rather than uploaded
}

// Len returns the number of points.
func (s PointSet) Len() int {
	return len(s.Points)
}
