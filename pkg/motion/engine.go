package motion

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Engine holds the grid of the previous frame and the motion thresholds.
// Detect must be called from a single goroutine; the query methods are safe
// from any goroutine.
type Engine struct {
	mu    sync.RWMutex
	cfg   Config
	prev  Grid
	ready bool
	last  Result
}

// NewEngine returns an engine with the given thresholds. It must be
// initialized before Detect reports anything.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Initialize zeroes the stored grid and marks the engine ready.
func (e *Engine) Initialize() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prev = Grid{}
	e.last = Result{}
	e.ready = true

	logrus.WithFields(logrus.Fields{
		"threshold":    e.cfg.Threshold,
		"triggerCount": e.cfg.TriggerCount,
	}).Debug("motion engine initialized")
}

// Detect samples f, compares it with the previous frame and stores it as the
// new baseline. It returns false without touching any state when the engine
// is not initialized or the frame is invalid.
func (e *Engine) Detect(f *Frame) bool {
	if err := f.Validate(); err != nil {
		logrus.WithError(err).Trace("frame skipped by motion engine")
		return false
	}

	e.mu.RLock()
	ready := e.ready
	e.mu.RUnlock()
	if !ready {
		return false
	}

	next := Sample(f)

	e.mu.Lock()
	defer e.mu.Unlock()

	changed := ChangedCells(&e.prev, &next, e.cfg.Threshold)
	motion := changed >= int(e.cfg.TriggerCount)

	e.prev = next
	e.last = Result{
		Motion:       motion,
		ChangedCells: changed,
		Frames:       e.last.Frames + 1,
		Grid:         next,
	}

	logrus.WithFields(logrus.Fields{
		"changedCells": changed,
		"motion":       motion,
	}).Trace("motion detect")

	return motion
}

// SetThreshold takes effect on the next Detect call.
func (e *Engine) SetThreshold(v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.Threshold = v
}

// SetTriggerCount takes effect on the next Detect call.
func (e *Engine) SetTriggerCount(v uint8) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cfg.TriggerCount = v
}

func (e *Engine) Config() Config {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cfg
}

// LastMotion returns the result of the most recent Detect call.
func (e *Engine) LastMotion() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last.Motion
}

// Snapshot returns a copy of the last result, including the stored grid.
func (e *Engine) Snapshot() Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.last
}

// Sample reduces f to a grid. The frame is split into equal cells by integer
// division; the remainder strip on the right and bottom is ignored. Pixels
// beyond the end of Pix are skipped, and a cell without any sampled pixel
// is 0.
func Sample(f *Frame) Grid {
	var g Grid

	cellW := f.Width / GridCols
	cellH := f.Height / GridRows
	bpp := f.stride()

	for row := 0; row < GridRows; row++ {
		for col := 0; col < GridCols; col++ {
			g[row*GridCols+col] = cellIntensity(f, col*cellW, row*cellH, cellW, cellH, bpp)
		}
	}

	return g
}

func cellIntensity(f *Frame, x0, y0, w, h, bpp int) uint8 {
	sum := 0
	count := 0

	for y := y0; y < y0+h; y += sampleStep {
		for x := x0; x < x0+w; x += sampleStep {
			idx := (y*f.Width + x) * bpp
			if idx+2 >= len(f.Pix) {
				continue
			}
			sum += Luma(f.Pix[idx], f.Pix[idx+1], f.Pix[idx+2])
			count++
		}
	}

	if count == 0 {
		return 0
	}
	return uint8(sum / count)
}

// Luma approximates luminance of one pixel as (c0 + 2*c1 + c2) / 4.
func Luma(c0, c1, c2 uint8) int {
	return (int(c0) + 2*int(c1) + int(c2)) >> 2
}

// ChangedCells counts cells whose absolute difference exceeds threshold.
func ChangedCells(prev, next *Grid, threshold uint8) int {
	changed := 0
	for i := range prev {
		diff := int(prev[i]) - int(next[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > int(threshold) {
			changed++
		}
	}
	return changed
}
