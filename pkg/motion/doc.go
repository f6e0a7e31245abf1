// Package motion decides whether a camera frame shows scene motion.
//
// A frame is reduced to a GridRows x GridCols grid of 8-bit intensity
// samples, each the average of every second pixel (in both axes) of its
// cell, weighted (c0 + 2*c1 + c2) / 4. The new grid is compared with the
// grid of the previous frame; a cell changed when its absolute difference
// exceeds the threshold, and the frame shows motion when at least
// TriggerCount cells changed. The stored grid is always replaced by the new
// one, so detection is frame-over-frame.
package motion
