package capture

import (
	"bytes"
	"image"
	"image/jpeg"
)

// EncodeJPEG encodes an image as JPEG at the given quality (1-100), clamped
// into range. image/jpeg is standard-library, a deliberate exception: no
// third-party JPEG encoder appears anywhere in the reference corpus.
func EncodeJPEG(img *image.RGBA, quality int) ([]byte, error) {
	if quality < 1 {
		quality = 1
	}
	if quality > 100 {
		quality = 100
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
