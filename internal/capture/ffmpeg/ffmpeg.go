// Package ffmpeg implements internal/capture.Source by shelling out to
// the ffmpeg binary and reading an MJPEG stream from its stdout,
// avoiding a CGo video-capture binding and keeping the build pure Go.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/sudharshan/ppe-monitor/internal/capture"
)

func init() {
	capture.Register(capture.KindDevice, openDevice)
	capture.Register(capture.KindFile, openLoopingFile)
	capture.Register(capture.KindURL, openNetwork)
}

var jpegSOI = []byte{0xFF, 0xD8}
var jpegEOI = []byte{0xFF, 0xD9}

type source struct {
	cmd    *exec.Cmd
	reader *bufio.Reader
	loop   bool
	args   func() []string
}

func (s *source) NextFrame(ctx context.Context) ([]byte, error) {
	frame, err := readJPEGFrame(s.reader)
	if err == nil {
		return frame, nil
	}
	if err == io.EOF && s.loop {
		return nil, capture.ErrEOF
	}
	return nil, fmt.Errorf("%w: %v", capture.ErrTransientRead, err)
}

func (s *source) Close() error {
	if s.cmd.Process != nil {
		s.cmd.Process.Kill()
	}
	return s.cmd.Wait()
}

// readJPEGFrame scans stdout for one complete JPEG (SOI...EOI) frame
// from an ffmpeg `-f mjpeg` pipe.
func readJPEGFrame(r *bufio.Reader) ([]byte, error) {
	var buf bytes.Buffer
	started := false
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(b)
		n := buf.Len()
		if !started && n >= 2 && bytes.Equal(buf.Bytes()[n-2:], jpegSOI) {
			// Discard any bytes read before the SOI marker so a
			// misaligned pipe still yields a clean JPEG.
			buf.Reset()
			buf.Write(jpegSOI)
			started = true
			continue
		}
		if started && n >= 2 && bytes.Equal(buf.Bytes()[n-2:], jpegEOI) {
			return buf.Bytes(), nil
		}
	}
}

func spawn(ctx context.Context, args []string) (*source, error) {
	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &source{cmd: cmd, reader: bufio.NewReaderSize(stdout, 1<<20)}, nil
}

func ffmpegArgs(input string, minHeight int, loop bool) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if loop {
		args = append(args, "-stream_loop", "-1")
	}
	args = append(args, "-i", input)
	if minHeight > 0 {
		args = append(args, "-vf", "scale=-2:"+strconv.Itoa(minHeight))
	}
	args = append(args, "-f", "mjpeg", "-q:v", "2", "pipe:1")
	return args
}

func openDevice(ctx context.Context, resource string, minHeight int) (capture.Source, error) {
	src, err := spawn(ctx, ffmpegArgs("/dev/video"+resource, minHeight, false))
	if err != nil {
		return nil, err
	}
	return src, nil
}

func openLoopingFile(ctx context.Context, resource string, minHeight int) (capture.Source, error) {
	src, err := spawn(ctx, ffmpegArgs(resource, minHeight, true))
	if err != nil {
		return nil, err
	}
	src.loop = true
	return src, nil
}

func openNetwork(ctx context.Context, resource string, minHeight int) (capture.Source, error) {
	src, err := spawn(ctx, ffmpegArgs(resource, minHeight, false))
	if err != nil {
		return nil, err
	}
	return src, nil
}
