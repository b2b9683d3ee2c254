// Package scene detects scene-cut boundaries in a video and picks
// representative frame samples from each scene.
package scene

// Boundary is one detected scene: a contiguous frame range
// [Start, End) judged visually continuous.
type Boundary struct {
	Start int // first frame of the scene
	End   int // frame after the last frame of the scene
}

// Length returns the number of frames the scene spans.
func (b Boundary) Length() int {
	if b.End < b.Start {
		return b.Start - b.End
	}
	return b.End - b.Start
}
