// Package imageio decodes untrusted image bytes without letting a bad file
// take the process down.
package imageio

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/sourcegraph/conc/panics"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/franz/bgdb/internal/util"
)

// MaxPixels bounds width*height of anything we decode (roughly 16k x 4k)
const MaxPixels = 64 << 20

// Decode decodes data into an image, applying EXIF orientation.
// Every failure, including a decoder panic, wraps util.ErrDecode.
func Decode(data []byte) (image.Image, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width*cfg.Height > MaxPixels {
		return nil, fmt.Errorf("%w: %s image %dx%d out of bounds", util.ErrDecode, format, cfg.Width, cfg.Height)
	}

	var img image.Image
	var pc panics.Catcher
	pc.Try(func() {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	})
	if r := pc.Recovered(); r != nil {
		return nil, fmt.Errorf("%w: %s decoder panic: %v", util.ErrDecode, format, r.Value)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrDecode, err)
	}
	return img, nil
}
