// Package video wraps ffmpeg and ffprobe for the decode operations the
// pipeline needs: probing stream properties, streaming downscaled frames
// for scene detection, and extracting single frames by absolute number.
package video

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNotFound is returned when the video path does not exist.
var ErrNotFound = errors.New("video: file not found")

// ErrDecodeFailed is returned when a specific frame cannot be decoded.
var ErrDecodeFailed = errors.New("video: frame decode failed")

// Detection stream geometry. Frames are downscaled to this size and
// converted to grayscale before content scoring; scene cuts survive heavy
// downscaling and the smaller buffers keep the pass cheap.
const (
	detectWidth  = 64
	detectHeight = 36
)

// Info holds the probed properties of a video stream.
type Info struct {
	FrameCount int
	FPS        float64
	Duration   float64 // seconds
}

// Decoder runs ffmpeg/ffprobe subprocesses against local video files.
type Decoder struct {
	logger *slog.Logger
}

func NewDecoder(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{logger: logger}
}

// CheckInstallation verifies ffmpeg and ffprobe are on PATH.
func CheckInstallation() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("video: %s is not installed or not in PATH: %w", bin, err)
		}
	}
	return nil
}

// Probe reads frame count, frame rate and duration from the first video
// stream. When the container does not carry an exact frame count the count
// is derived from duration and frame rate.
func (d *Decoder) Probe(ctx context.Context, path string) (Info, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=nb_frames,r_frame_rate,duration",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)
	output, err := cmd.Output()
	if err != nil {
		return Info{}, fmt.Errorf("video: ffprobe %s: %w", path, err)
	}

	var probe struct {
		Streams []struct {
			NbFrames  string `json:"nb_frames"`
			FrameRate string `json:"r_frame_rate"`
			Duration  string `json:"duration"`
		} `json:"streams"`
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(output, &probe); err != nil {
		return Info{}, fmt.Errorf("video: parse ffprobe output for %s: %w", path, err)
	}
	if len(probe.Streams) == 0 {
		return Info{}, fmt.Errorf("video: no video stream in %s", path)
	}

	stream := probe.Streams[0]
	info := Info{
		FPS:      parseFrameRate(stream.FrameRate),
		Duration: parseFloat(stream.Duration),
	}
	if info.Duration == 0 {
		info.Duration = parseFloat(probe.Format.Duration)
	}

	if n, err := strconv.Atoi(stream.NbFrames); err == nil {
		info.FrameCount = n
	} else if info.FPS > 0 && info.Duration > 0 {
		info.FrameCount = int(info.Duration * info.FPS)
	}

	d.logger.Debug("probed video",
		"path", path,
		"frames", info.FrameCount,
		"fps", info.FPS,
		"duration", info.Duration,
	)
	return info, nil
}

// parseFrameRate parses ffprobe's rational rate form, e.g. "30000/1001".
func parseFrameRate(rate string) float64 {
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		return parseFloat(rate)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// DetectionStream starts decoding the whole video as a stream of
// downscaled grayscale frames for scene detection. The returned stream
// must be drained to io.EOF or closed, or the ffmpeg child leaks.
func (d *Decoder) DetectionStream(ctx context.Context, path string) (*RawStream, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-vf", fmt.Sprintf("scale=%d:%d", detectWidth, detectHeight),
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-v", "error",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("video: pipe ffmpeg stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("video: start ffmpeg for %s: %w", path, err)
	}

	return &RawStream{
		cmd:       cmd,
		stdout:    stdout,
		stderr:    &stderr,
		frameSize: detectWidth * detectHeight,
	}, nil
}

// RawStream reads fixed-size raw frames off a running ffmpeg pipe.
type RawStream struct {
	cmd       *exec.Cmd
	stdout    io.ReadCloser
	stderr    *bytes.Buffer
	frameSize int
	done      bool
}

// Next returns the next raw frame, or io.EOF once the stream is drained
// and ffmpeg has exited cleanly.
func (r *RawStream) Next() ([]byte, error) {
	if r.done {
		return nil, io.EOF
	}
	frame := make([]byte, r.frameSize)
	_, err := io.ReadFull(r.stdout, frame)
	if err == nil {
		return frame, nil
	}
	r.done = true
	if errors.Is(err, io.EOF) {
		if werr := r.cmd.Wait(); werr != nil {
			return nil, fmt.Errorf("video: ffmpeg: %w: %s", werr, r.stderr.String())
		}
		return nil, io.EOF
	}
	_ = r.cmd.Wait()
	return nil, fmt.Errorf("video: short frame read: %w", err)
}

// Close terminates the ffmpeg child if the stream was not drained.
func (r *RawStream) Close() error {
	if r.done {
		return nil
	}
	r.done = true
	_ = r.stdout.Close()
	if r.cmd.Process != nil {
		_ = r.cmd.Process.Kill()
	}
	_ = r.cmd.Wait()
	return nil
}

// ReadFrame decodes the frame at the given absolute frame number and
// returns it as JPEG bytes.
func (d *Decoder) ReadFrame(ctx context.Context, path string, frameNumber int) ([]byte, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-i", path,
		"-vf", fmt.Sprintf("select=eq(n\\,%d)", frameNumber),
		"-frames:v", "1",
		"-f", "image2",
		"-c:v", "mjpeg",
		"-v", "error",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: frame %d of %s: %v: %s", ErrDecodeFailed, frameNumber, path, err, stderr.String())
	}
	if len(output) == 0 {
		return nil, fmt.Errorf("%w: frame %d of %s is out of range", ErrDecodeFailed, frameNumber, path)
	}
	return output, nil
}

// SaveFrame decodes the frame at the given absolute frame number and
// writes it to outPath as a JPEG file.
func (d *Decoder) SaveFrame(ctx context.Context, path string, frameNumber int, outPath string) error {
	data, err := d.ReadFrame(ctx, path, frameNumber)
	if err != nil {
		return err
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("video: write frame image %s: %w", outPath, err)
	}
	return nil
}
