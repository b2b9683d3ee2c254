package scene

import "math"

// DefaultSampleCount is the number of representative frames taken per scene.
const DefaultSampleCount = 3

// Sample picks count representative absolute frame numbers from a scene.
// The stride between samples is round(scene_length/count) and the first
// sample sits on the scene's start frame.
//
// Samples are not clamped to the scene end and are not deduplicated: a
// zero-length scene yields count copies of the start frame, and rounding
// can push the last sample onto or past the scene's end boundary. A sample
// that falls outside the video fails to decode and is skipped by the
// caller, frame by frame.
func Sample(b Boundary, count int) []int {
	if count < 1 {
		return nil
	}
	stride := int(math.Round(float64(b.Length()) / float64(count)))
	samples := make([]int, count)
	for k := 0; k < count; k++ {
		samples[k] = b.Start + stride*k
	}
	return samples
}
