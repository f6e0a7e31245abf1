package frame

import (
	"context"
	"fmt"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/cams3/camnode/pkg/motion"
)

const (
	DefaultDevice = "/dev/video0"
	DefaultWidth  = 640
	DefaultHeight = 480
)

// FFmpegSource grabs single frames from a V4L2 camera by running ffmpeg
// with raw rgb24 output.
type FFmpegSource struct {
	device string
	width  int
	height int
	run    commandFunc
}

func NewFFmpegSource(device string, width, height int) *FFmpegSource {
	if device == "" {
		device = DefaultDevice
	}
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	return &FFmpegSource{
		device: device,
		width:  width,
		height: height,
		run:    execOutput,
	}
}

func (s *FFmpegSource) Capture(ctx context.Context) (*motion.Frame, error) {
	out, err := s.run(ctx,
		"ffmpeg",
		"-hide_banner",
		"-loglevel", "error",
		"-f", "v4l2",
		"-video_size", fmt.Sprintf("%dx%d", s.width, s.height),
		"-i", s.device,
		"-vframes", "1",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-",
	)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to capture frame from %s", s.device)
	}

	want := s.width * s.height * motion.DefaultBytesPerPixel
	if len(out) < want {
		return nil, pkgerrors.Errorf("short frame from %s: got %d bytes, want %d", s.device, len(out), want)
	}
	if len(out) > want {
		logrus.WithFields(logrus.Fields{
			"device": s.device,
			"got":    len(out),
			"want":   want,
		}).Debug("discarding trailing frame bytes")
		out = out[:want]
	}

	return &motion.Frame{
		Pix:           out,
		Width:         s.width,
		Height:        s.height,
		BytesPerPixel: motion.DefaultBytesPerPixel,
	}, nil
}

func (s *FFmpegSource) Close() error {
	return nil
}
