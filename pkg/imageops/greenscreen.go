package imageops

import (
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// GreenScreen replaces a background screen with bg.
//
// The screen is the largest 8-connected region of pixels whose colour equals
// screen exactly. Inside the bounding box of that region every pixel of the
// screen colour is replaced by a pixel of bg, with bg anchored at the box's
// top-left corner and tiled when it is smaller than the box. Within a column
// the bg row only advances on replaced pixels.
func GreenScreen(img image.Image, screen color.Color, bg image.Image) (*image.NRGBA, error) {
	src := ToNRGBA(img)
	back := ToNRGBA(bg)
	bw, bh := Size(back)
	if bw == 0 || bh == 0 {
		return nil, fmt.Errorf("%w: empty background image", ErrImageProcessing)
	}

	key := color.NRGBAModel.Convert(screen).(color.NRGBA)
	want := ARGB{key.A, key.R, key.G, key.B}

	box, ok := largestRegion(src, want)
	if !ok {
		return nil, fmt.Errorf("%w: no pixel matches the screen colour", ErrImageProcessing)
	}

	dst := imaging.Clone(src)
	bgCol := 0
	for col := box.Min.X; col < box.Max.X; col++ {
		bgRow := 0
		for row := box.Min.Y; row < box.Max.Y; row++ {
			if Pixel(src, col, row) != want {
				continue
			}
			SetPixel(dst, col, row, Pixel(back, bgCol, bgRow))
			bgRow++
			if bgRow == bh {
				bgRow = 0
			}
		}
		bgCol++
		if bgCol == bw {
			bgCol = 0
		}
	}
	return dst, nil
}

// largestRegion returns the bounding box of the largest 8-connected region of
// pixels equal to want. Regions are grown with an explicit queue.
func largestRegion(img *image.NRGBA, want ARGB) (image.Rectangle, bool) {
	w, h := Size(img)
	visited := make([]bool, w*h)
	queue := make([]image.Point, 0, 64)

	var best image.Rectangle
	bestSize := 0

	for col := 0; col < w; col++ {
		for row := 0; row < h; row++ {
			if visited[row*w+col] || Pixel(img, col, row) != want {
				continue
			}

			visited[row*w+col] = true
			queue = append(queue[:0], image.Pt(col, row))
			box := image.Rect(col, row, col+1, row+1)
			size := 0

			for len(queue) > 0 {
				p := queue[0]
				queue = queue[1:]
				size++
				box = box.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

				for r := p.Y - 1; r <= p.Y+1; r++ {
					for c := p.X - 1; c <= p.X+1; c++ {
						if c < 0 || r < 0 || c >= w || r >= h || visited[r*w+c] {
							continue
						}
						if Pixel(img, c, r) != want {
							continue
						}
						visited[r*w+c] = true
						queue = append(queue, image.Pt(c, r))
					}
				}
			}

			if size > bestSize {
				best, bestSize = box, size
			}
		}
	}
	return best, bestSize > 0
}
