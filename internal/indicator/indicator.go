// Package indicator computes moving averages over daily close series.
//
// The hot path is a sliding-window accumulator (running sum plus a fixed-size
// circular buffer of the last w closes), so a series is walked exactly once per
// window regardless of its length. All arithmetic is decimal, which keeps
// results identical across runs and platforms.
package indicator

import "strconv"

// Name returns the display name of a moving average window, e.g. "MA60".
func Name(window int) string {
	return "MA" + strconv.Itoa(window)
}
