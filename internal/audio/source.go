package audio

import (
	"context"
)

// FrameSource provides captured PCM16 audio frames on demand. The desktop
// capture shim exposes both capture sides this way: the process polls for
// the next frame instead of being pushed to.
//
// Implementations return a nil frame (and nil error) when no audio is
// buffered yet; the caller polls again after its poll interval.
type FrameSource interface {
	// ReadFrame returns the next captured frame. The returned slice is
	// owned by the caller.
	ReadFrame(ctx context.Context) ([]byte, error)

	// Close releases the underlying capture handle.
	Close() error
}

// Chunker accumulates fixed-size capture frames into larger chunks sized
// for the transcription provider. Sending each 40 ms frame individually
// wastes websocket overhead; the provider is happier with ~200 ms chunks.
type Chunker struct {
	chunkBytes int
	buf        []byte
}

// NewChunker creates a chunker that emits chunks of the given byte size.
func NewChunker(chunkBytes int) *Chunker {
	return &Chunker{
		chunkBytes: chunkBytes,
		buf:        make([]byte, 0, chunkBytes),
	}
}

// ChunkBytes returns the number of PCM bytes that make up one chunk of the
// given duration at the given sample parameters. bytesPerSample is fixed at
// 2 for PCM16.
func ChunkBytes(sampleRate, channels, chunkMs int) int {
	return sampleRate * channels * 2 * chunkMs / 1000
}

// Add appends a frame to the accumulation buffer and returns a full chunk
// when one is ready, or nil otherwise. The returned chunk is a fresh slice.
func (c *Chunker) Add(frame []byte) []byte {
	c.buf = append(c.buf, frame...)
	if len(c.buf) < c.chunkBytes {
		return nil
	}

	chunk := make([]byte, c.chunkBytes)
	copy(chunk, c.buf[:c.chunkBytes])
	c.buf = append(c.buf[:0], c.buf[c.chunkBytes:]...)
	return chunk
}

// Flush returns whatever partial chunk is buffered, or nil when empty.
// Called at session stop so trailing audio still reaches the provider.
func (c *Chunker) Flush() []byte {
	if len(c.buf) == 0 {
		return nil
	}
	chunk := make([]byte, len(c.buf))
	copy(chunk, c.buf)
	c.buf = c.buf[:0]
	return chunk
}
