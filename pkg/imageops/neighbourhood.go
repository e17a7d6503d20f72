package imageops

import (
	"image"
	"slices"
)

// Denoise replaces each channel of every pixel with the median of that
// channel over the pixel's neighbours (the pixel itself is excluded). When the
// number of neighbours is even the two middle values are averaged.
func Denoise(img image.Image) *image.NRGBA {
	src := ToNRGBA(img)
	w, h := Size(src)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	var values [4][]int
	for ch := range values {
		values[ch] = make([]int, 0, 8)
	}

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			for ch := range values {
				values[ch] = values[ch][:0]
			}
			for r := row - 1; r <= row+1; r++ {
				for c := col - 1; c <= col+1; c++ {
					if c < 0 || r < 0 || c >= w || r >= h || (c == col && r == row) {
						continue
					}
					p := Pixel(src, c, r)
					for ch := range values {
						values[ch] = append(values[ch], int(p[ch]))
					}
				}
			}
			if len(values[0]) == 0 {
				SetPixel(dst, col, row, Pixel(src, col, row))
				continue
			}
			var out ARGB
			for ch := range values {
				out[ch] = uint8(median(values[ch]))
			}
			SetPixel(dst, col, row, out)
		}
	}
	return dst
}

func median(values []int) int {
	slices.Sort(values)
	n := len(values)
	if n%2 == 0 {
		return (values[n/2-1] + values[n/2]) / 2
	}
	return values[n/2]
}

// Weather replaces each channel of every pixel with the minimum of that
// channel over the 3x3 neighbourhood, the pixel included.
func Weather(img image.Image) *image.NRGBA {
	src := ToNRGBA(img)
	w, h := Size(src)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))

	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			out := Pixel(src, col, row)
			for r := max(row-1, 0); r <= min(row+1, h-1); r++ {
				for c := max(col-1, 0); c <= min(col+1, w-1); c++ {
					p := Pixel(src, c, r)
					for ch := range out {
						out[ch] = min(out[ch], p[ch])
					}
				}
			}
			SetPixel(dst, col, row, out)
		}
	}
	return dst
}

// BlockPaint splits img into blockSize x blockSize squares starting at the
// top-left corner and paints every square with the channel-wise mean of its
// pixels. Squares cut by the right or bottom edge are averaged over the
// pixels they actually cover. A blockSize below 1 is treated as 1.
func BlockPaint(img image.Image, blockSize int) *image.NRGBA {
	src := ToNRGBA(img)
	w, h := Size(src)
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	blockSize = max(blockSize, 1)

	for top := 0; top < h; top += blockSize {
		for left := 0; left < w; left += blockSize {
			bottom := min(top+blockSize, h)
			right := min(left+blockSize, w)

			var sum [4]int
			for r := top; r < bottom; r++ {
				for c := left; c < right; c++ {
					p := Pixel(src, c, r)
					for ch := range sum {
						sum[ch] += int(p[ch])
					}
				}
			}
			count := (bottom - top) * (right - left)
			var mean ARGB
			for ch := range sum {
				mean[ch] = uint8(sum[ch] / count)
			}
			for r := top; r < bottom; r++ {
				for c := left; c < right; c++ {
					SetPixel(dst, c, r, mean)
				}
			}
		}
	}
	return dst
}
