package extractor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const jpegQuality = 90

// PrepareImage decodes an uploaded image and re-encodes it as JPEG, scaled
// down to fit within maxSize pixels on its longest side.
func PrepareImage(data []byte, maxSize int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := img.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()

	if maxSize <= 0 || (width <= maxSize && height <= maxSize) {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
			return nil, fmt.Errorf("failed to encode image: %w", err)
		}
		return buf.Bytes(), nil
	}

	newWidth, newHeight := fitWithin(width, height, maxSize)
	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode resized image: %w", err)
	}
	return buf.Bytes(), nil
}

// fitWithin scales width and height so the longer side equals maxSize.
func fitWithin(width, height, maxSize int) (int, int) {
	if width > height {
		return maxSize, max(1, int(float64(height)*float64(maxSize)/float64(width)))
	}
	return max(1, int(float64(width)*float64(maxSize)/float64(height))), maxSize
}
