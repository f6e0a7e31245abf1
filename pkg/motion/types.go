package motion

import "errors"

const (
	GridRows  = 8
	GridCols  = 8
	GridCells = GridRows * GridCols

	// DefaultBytesPerPixel is the stride of an interleaved RGB888 buffer.
	DefaultBytesPerPixel = 3

	// sampleStep is the pixel step in both axes when averaging a cell.
	sampleStep = 2
)

// ErrInvalidFrame is reported for an absent frame or one without usable
// dimensions. Detect treats it as "no motion".
var ErrInvalidFrame = errors.New("invalid frame")

// Grid is the downsampled luminance of one frame, row-major.
type Grid [GridCells]uint8

// At returns the sample of the cell at row r, column c.
func (g *Grid) At(r, c int) uint8 {
	return g[r*GridCols+c]
}

// Frame is a pixel buffer borrowed from a frame source. Pix holds Height
// rows of Width pixels, each BytesPerPixel bytes wide with the three color
// channels first. The engine never retains Pix.
type Frame struct {
	Pix           []byte
	Width         int
	Height        int
	BytesPerPixel int
}

// Validate reports ErrInvalidFrame for frames Detect cannot sample at all.
// A buffer shorter than Width*Height*BytesPerPixel is still valid; missing
// pixels are skipped.
func (f *Frame) Validate() error {
	if f == nil || f.Pix == nil || f.Width <= 0 || f.Height <= 0 {
		return ErrInvalidFrame
	}
	if f.BytesPerPixel != 0 && f.BytesPerPixel < 3 {
		return ErrInvalidFrame
	}
	return nil
}

func (f *Frame) stride() int {
	if f.BytesPerPixel == 0 {
		return DefaultBytesPerPixel
	}
	return f.BytesPerPixel
}

// Config holds the motion decision parameters.
type Config struct {
	// Threshold is the per-cell absolute difference that counts as a change.
	Threshold uint8
	// TriggerCount is the number of changed cells that makes a frame motion.
	// Values above GridCells can never trigger.
	TriggerCount uint8
}

// DefaultConfig returns the factory thresholds.
func DefaultConfig() Config {
	return Config{
		Threshold:    30,
		TriggerCount: 5,
	}
}

// Result describes the outcome of the last Detect call.
type Result struct {
	Motion       bool   `json:"motion"`
	ChangedCells int    `json:"changedCells"`
	Frames       uint64 `json:"frames"`
	Grid         Grid   `json:"grid"`
}
