package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

func TestStreamSourceDeliversFrames(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewStreamSource(pr, 4, logger.NewNop())
	defer src.Close()

	go func() {
		pw.Write([]byte{1, 2, 3, 4, 5, 6, 7, 8})
		pw.Close()
	}()

	ctx := context.Background()
	frame := waitForFrame(t, ctx, src)
	if string(frame) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("first frame = %v, want [1 2 3 4]", frame)
	}
	frame = waitForFrame(t, ctx, src)
	if string(frame) != string([]byte{5, 6, 7, 8}) {
		t.Errorf("second frame = %v, want [5 6 7 8]", frame)
	}

	// After EOF the reader goroutine closes the frame channel.
	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err := src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame error = %v, want io.EOF", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for EOF")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamSourceReturnsNilWhenIdle(t *testing.T) {
	pr, _ := io.Pipe()
	src := NewStreamSource(pr, 4, logger.NewNop())
	defer src.Close()

	frame, err := src.ReadFrame(context.Background())
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if frame != nil {
		t.Errorf("frame = %v, want nil when no audio buffered", frame)
	}
}

func TestStreamSourceHonorsContext(t *testing.T) {
	pr, _ := io.Pipe()
	src := NewStreamSource(pr, 4, logger.NewNop())
	defer src.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := src.ReadFrame(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("ReadFrame error = %v, want context.Canceled", err)
	}
}

func TestStreamSourceDropsPartialTrailingFrame(t *testing.T) {
	pr, pw := io.Pipe()
	src := NewStreamSource(pr, 4, logger.NewNop())
	defer src.Close()

	go func() {
		pw.Write([]byte{1, 2, 3, 4, 5, 6})
		pw.Close()
	}()

	ctx := context.Background()
	frame := waitForFrame(t, ctx, src)
	if len(frame) != 4 {
		t.Errorf("frame length = %d, want 4", len(frame))
	}

	// The trailing two bytes never form a full frame.
	deadline := time.Now().Add(2 * time.Second)
	for {
		frame, err := src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadFrame error = %v", err)
		}
		if frame != nil {
			t.Fatalf("unexpected frame %v after partial write", frame)
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for EOF")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipeCaptureOpenCancelClosesLateFD(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mic.pcm")
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		t.Skipf("mkfifo not supported: %v", err)
	}

	capture := &PipeCapture{MicPath: path, FrameBytes: 4, Logger: logger.NewNop()}

	// With no writer attached the fifo open blocks; cancel while it waits.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := capture.OpenMic(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("OpenMic error = %v, want context.Canceled", err)
	}

	// Attaching a writer now completes the abandoned open. Its descriptor
	// must be closed rather than leaked, which surfaces to the writer as
	// EPIPE once the fifo has no readers left.
	w, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		t.Fatalf("writer open failed: %v", err)
	}
	defer w.Close()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := w.Write([]byte{0, 0, 0, 0}); err != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("writes kept succeeding; abandoned read descriptor was not closed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestPipeCaptureOpenDeliversFrames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "system.pcm")
	if err := syscall.Mkfifo(path, 0o600); err != nil {
		t.Skipf("mkfifo not supported: %v", err)
	}

	go func() {
		w, err := os.OpenFile(path, os.O_WRONLY, 0)
		if err != nil {
			return
		}
		w.Write([]byte{1, 2, 3, 4})
		w.Close()
	}()

	capture := &PipeCapture{SystemPath: path, FrameBytes: 4, Logger: logger.NewNop()}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	src, err := capture.OpenSystem(ctx)
	if err != nil {
		t.Fatalf("OpenSystem failed: %v", err)
	}
	defer src.(*StreamSource).Close()

	frame := waitForFrame(t, ctx, src.(*StreamSource))
	if string(frame) != string([]byte{1, 2, 3, 4}) {
		t.Errorf("frame = %v, want [1 2 3 4]", frame)
	}
}

func waitForFrame(t *testing.T, ctx context.Context, src *StreamSource) []byte {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			t.Fatalf("ReadFrame failed: %v", err)
		}
		if frame != nil {
			return frame
		}
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for frame")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
