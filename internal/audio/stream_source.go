package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"

	"github.com/codev612/hearnow/pkg/logger"
)

// StreamSource adapts a blocking byte stream into the FrameSource pull API.
// The capture shim writes raw PCM to a named pipe; a reader goroutine
// re-blocks the stream into fixed-size frames so ReadFrame never blocks on
// the underlying reader.
type StreamSource struct {
	rc        io.ReadCloser
	frames    chan []byte
	done      chan struct{}
	logger    *logger.Logger
	closeOnce sync.Once
	closeErr  error
}

// NewStreamSource wraps rc and starts the frame reader. frameBytes is the
// size of a single capture frame.
func NewStreamSource(rc io.ReadCloser, frameBytes int, log *logger.Logger) *StreamSource {
	s := &StreamSource{
		rc:     rc,
		frames: make(chan []byte, 64),
		done:   make(chan struct{}),
		logger: log.Named("stream-source"),
	}
	go s.readLoop(frameBytes)
	return s
}

func (s *StreamSource) readLoop(frameBytes int) {
	defer close(s.frames)
	for {
		frame := make([]byte, frameBytes)
		if _, err := io.ReadFull(s.rc, frame); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, os.ErrClosed) {
				s.logger.Error("Frame read failed", Error(err))
			}
			return
		}
		select {
		case s.frames <- frame:
		case <-s.done:
			return
		}
	}
}

// ReadFrame returns the next buffered frame, nil when none is ready yet, or
// io.EOF once the underlying stream has ended.
func (s *StreamSource) ReadFrame(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return frame, nil
	default:
		return nil, nil
	}
}

// Close stops the reader and closes the underlying stream.
func (s *StreamSource) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}

// PipeCapture opens the named pipes the platform capture shim writes raw
// PCM frames to, one per source.
type PipeCapture struct {
	MicPath    string
	SystemPath string
	FrameBytes int
	Logger     *logger.Logger
}

// OpenMic opens the microphone pipe. The open blocks until the capture shim
// connects a writer.
func (p *PipeCapture) OpenMic(ctx context.Context) (FrameSource, error) {
	return p.open(ctx, p.MicPath)
}

// OpenSystem opens the system-audio loopback pipe.
func (p *PipeCapture) OpenSystem(ctx context.Context) (FrameSource, error) {
	return p.open(ctx, p.SystemPath)
}

func (p *PipeCapture) open(ctx context.Context, path string) (FrameSource, error) {
	type result struct {
		f   *os.File
		err error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := os.OpenFile(path, os.O_RDONLY, 0)
		ch <- result{f, err}
	}()

	select {
	case <-ctx.Done():
		// The open may still complete after cancellation; reap the
		// descriptor so it is not leaked.
		go func() {
			if res := <-ch; res.f != nil {
				res.f.Close()
			}
		}()
		return nil, ctx.Err()
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		p.Logger.Info("Opened capture pipe", String("path", path))
		return NewStreamSource(res.f, p.FrameBytes, p.Logger), nil
	}
}
