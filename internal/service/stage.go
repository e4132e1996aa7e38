// Package service orchestrates the query pipeline, ingestion, the atlas,
// and evaluation on top of the repositories and model clients.
package service

import "time"

// timeStage runs fn and reports its wall-clock duration in milliseconds.
// Stage timings in the explanation trace all come from here.
func timeStage[T any](fn func() (T, error)) (T, float64, error) {
	start := time.Now()

	out, err := fn()

	return out, msSince(start), err
}

func msSince(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}
