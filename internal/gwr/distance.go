package gwr

import (
	"math"
	"slices"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// earthRadiusKm is the mean Earth radius used for great-circle distances.
const earthRadiusKm = 6371.0

// Coord is a location: projected x/y, or longitude/latitude in degrees
// when distances are spherical.
type Coord struct {
	X float64
	Y float64
}

// Haversine returns the great-circle distance in kilometres between two
// longitude/latitude coordinates.
func Haversine(a, b Coord) float64 {
	lat1 := a.Y * math.Pi / 180
	lat2 := b.Y * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.X - a.X) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Euclidean returns the planar distance between two coordinates.
func Euclidean(a, b Coord) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// distances holds the pairwise distance matrix of a coordinate set. Planar
// sets also keep a k-d tree for nearest-neighbour radii.
type distances struct {
	n    int
	d    []float64
	tree *kdtree.Tree
	pts  kdtree.Points
}

func newDistances(coords []Coord, spherical bool) *distances {
	n := len(coords)
	dm := &distances{n: n, d: make([]float64, n*n)}

	metric := Euclidean
	if spherical {
		metric = Haversine
	}
	for i := range n {
		for j := i + 1; j < n; j++ {
			v := metric(coords[i], coords[j])
			dm.d[i*n+j] = v
			dm.d[j*n+i] = v
		}
	}

	if !spherical && n > 0 {
		dm.pts = make(kdtree.Points, n)
		for i, c := range coords {
			dm.pts[i] = kdtree.Point{c.X, c.Y}
		}
		// New reorders its input, so the tree gets its own copy.
		treePts := make(kdtree.Points, n)
		copy(treePts, dm.pts)
		dm.tree = kdtree.New(treePts, false)
	}
	return dm
}

// row returns the distances from location i to every location.
func (dm *distances) row(i int) []float64 {
	return dm.d[i*dm.n : (i+1)*dm.n]
}

// kth returns the distance from location i to its k-th nearest location,
// counting i itself as the first.
func (dm *distances) kth(i, k int) float64 {
	k = max(1, min(k, dm.n))
	if dm.tree != nil {
		keeper := kdtree.NewNKeeper(k)
		dm.tree.NearestSet(keeper, dm.pts[i])
		// NearestSet leaves the keeper sorted nearest first, so the k-th
		// neighbour is the farthest finite entry.
		var far float64
		for _, c := range keeper.Heap {
			if !math.IsInf(c.Dist, 1) {
				far = max(far, c.Dist)
			}
		}
		return math.Sqrt(far)
	}
	sorted := slices.Clone(dm.row(i))
	slices.Sort(sorted)
	return sorted[k-1]
}

// minNeighbour returns the smallest distance between two distinct locations.
func (dm *distances) minNeighbour() float64 {
	best := math.Inf(1)
	for i := range dm.n {
		if dm.tree != nil {
			if d := dm.kth(i, 2); d < best {
				best = d
			}
			continue
		}
		for j, d := range dm.row(i) {
			if j != i && d < best {
				best = d
			}
		}
	}
	return best
}

// maxDistance returns the largest pairwise distance.
func (dm *distances) maxDistance() float64 {
	var best float64
	for _, d := range dm.d {
		best = max(best, d)
	}
	return best
}
