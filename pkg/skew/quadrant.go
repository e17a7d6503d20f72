package skew

import (
	"image"

	"github.com/feichai0017/document-deskew/pkg/imageops"
)

// DefaultAccuracy is the number of bright spectrum points gathered before the
// search stops.
const DefaultAccuracy = 1000

// Quadrants holds the bright points found around the centre of a square
// spectrum image. A point at (col, row) is stored as (col, -row) so that y grows
// upwards. Q1 is top-right, Q2 top-left, Q3 bottom-left and Q4 bottom-right.
type Quadrants struct {
	Q1, Q2, Q3, Q4 []image.Point
	// Found counts every bright point met, including the ones on the centre
	// row or column that belong to no quadrant.
	Found int
}

// Len returns the number of points over all quadrants.
func (q Quadrants) Len() int {
	return len(q.Q1) + len(q.Q2) + len(q.Q3) + len(q.Q4)
}

// add files (col, row) into its quadrant relative to centre. Points on the
// centre row or column belong to no quadrant and are dropped.
func (q *Quadrants) add(col, row, centre int) {
	p := image.Pt(col, -row)
	switch {
	case col > centre && row < centre:
		q.Q1 = append(q.Q1, p)
	case col < centre && row < centre:
		q.Q2 = append(q.Q2, p)
	case col < centre && row > centre:
		q.Q3 = append(q.Q3, p)
	case col > centre && row > centre:
		q.Q4 = append(q.Q4, p)
	}
}

// SpiralSearch walks square rings of growing size around the centre of img
// and collects the pixels whose green channel is 255 until accuracy of them
// have been found or the rings run out. img is expected to be square; a
// rectangle is searched over its shorter side.
//
// Each ring of odd size s = 2k+1 is walked clockwise starting at its top-left
// corner: the top edge left to right, the right edge downwards, the bottom edge
// right to left and the left edge upwards. Rings are visited in order of
// growing Chebyshev distance from the centre, which is itself never visited.
func SpiralSearch(img image.Image, accuracy int) Quadrants {
	src := imageops.ToNRGBA(img)
	w, h := imageops.Size(src)
	length := min(w, h)
	centre := length / 2

	var q Quadrants
	visit := func(col, row int) bool {
		if imageops.Intensity(src, col, row) == 255 {
			q.add(col, row, centre)
			q.Found++
		}
		return q.Found >= accuracy
	}

	if accuracy <= 0 {
		return q
	}

	for size := 1; size < length; size += 2 {
		k := size / 2
		top, bottom := centre-k, centre+k
		left, right := centre-k, centre+k

		for col := left; col < right; col++ {
			if visit(col, top) {
				return q
			}
		}
		for row := top; row < bottom; row++ {
			if visit(right, row) {
				return q
			}
		}
		for col := right; col > left; col-- {
			if visit(col, bottom) {
				return q
			}
		}
		for row := bottom; row > top; row-- {
			if visit(left, row) {
				return q
			}
		}
	}
	return q
}
