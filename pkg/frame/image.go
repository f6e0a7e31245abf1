package frame

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"

	pkgerrors "github.com/pkg/errors"

	"github.com/cams3/camnode/pkg/motion"
)

const DefaultJPEGQuality = 80

// ImageFileSource re-reads a PNG or JPEG file on every capture. Replacing
// the file between captures simulates a changing scene.
type ImageFileSource struct {
	path string
}

func NewImageFileSource(path string) *ImageFileSource {
	return &ImageFileSource{path: path}
}

func (s *ImageFileSource) Capture(_ context.Context) (*motion.Frame, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to read %s", s.path)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to decode %s", s.path)
	}
	return FromImage(img), nil
}

func (s *ImageFileSource) Close() error {
	return nil
}

// FromImage converts img to a packed RGB888 frame.
func FromImage(img image.Image) *motion.Frame {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	pix := make([]byte, 0, w*h*motion.DefaultBytesPerPixel)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			pix = append(pix, uint8(r>>8), uint8(g>>8), uint8(bl>>8))
		}
	}

	return &motion.Frame{
		Pix:           pix,
		Width:         w,
		Height:        h,
		BytesPerPixel: motion.DefaultBytesPerPixel,
	}
}

// EncodeJPEG renders f as a JPEG. Pixels missing from a short buffer are
// left black.
func EncodeJPEG(f *motion.Frame, quality int) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}

	bpp := f.BytesPerPixel
	if bpp == 0 {
		bpp = motion.DefaultBytesPerPixel
	}

	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	for y := 0; y < f.Height; y++ {
		for x := 0; x < f.Width; x++ {
			src := (y*f.Width + x) * bpp
			if src+2 >= len(f.Pix) {
				continue
			}
			dst := img.PixOffset(x, y)
			img.Pix[dst] = f.Pix[src]
			img.Pix[dst+1] = f.Pix[src+1]
			img.Pix[dst+2] = f.Pix[src+2]
			img.Pix[dst+3] = 0xff
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, pkgerrors.Wrap(err, "failed to encode jpeg")
	}
	return buf.Bytes(), nil
}
