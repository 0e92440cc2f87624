package extract

import (
	"bytes"
	"image"
	_ "image/jpeg"
	"image/png"

	xdraw "golang.org/x/image/draw"

	"github.com/abeeha-baig/ocr/internal/llm"
)

// downscale re-encodes img with its longest edge capped at maxEdge, using a
// high-quality resampling kernel. Images already within the cap, or payloads
// that fail to decode, are returned unchanged.
func downscale(img llm.Image, maxEdge int) llm.Image {
	src, _, err := image.Decode(bytes.NewReader(img.Data))
	if err != nil {
		return img
	}

	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longest := w
	if h > longest {
		longest = h
	}
	if longest <= maxEdge {
		return img
	}

	scale := float64(maxEdge) / float64(longest)
	dst := image.NewRGBA(image.Rect(0, 0, int(float64(w)*scale), int(float64(h)*scale)))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Over, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return img
	}
	return llm.Image{Data: buf.Bytes(), MIME: "image/png"}
}
