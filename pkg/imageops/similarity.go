package imageops

import (
	"image"

	"gonum.org/v1/gonum/floats"
)

// CosineSimilarity compares the gray levels of a and b over the area both
// images cover. Two black images are identical (1) and a black image has no
// similarity with anything else (0).
func CosineSimilarity(a, b image.Image) float64 {
	ga, gb := Grayscale(a), Grayscale(b)
	aw, ah := Size(ga)
	bw, bh := Size(gb)
	w, h := min(aw, bw), min(ah, bh)

	va := make([]float64, 0, w*h)
	vb := make([]float64, 0, w*h)
	for col := 0; col < w; col++ {
		for row := 0; row < h; row++ {
			va = append(va, float64(Intensity(ga, col, row)))
			vb = append(vb, float64(Intensity(gb, col, row)))
		}
	}

	na, nb := floats.Norm(va, 2), floats.Norm(vb, 2)
	switch {
	case na == 0 && nb == 0:
		return 1
	case na == 0 || nb == 0:
		return 0
	}
	return floats.Dot(va, vb) / (na * nb)
}
