package audio

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/codev612/hearnow/pkg/logger"
)

// Import logger functions
var (
	String = logger.String
	Int    = logger.Int
	Error  = logger.Error
)

// ChunkSink receives accumulated audio chunks. The transcription stream for
// a capture side implements this.
type ChunkSink interface {
	AppendAudio(chunk []byte) error
}

// SuppressionGate decides whether capture should be withheld at a given
// instant. The mic pump consults it before forwarding audio; the system
// pump runs without one.
type SuppressionGate interface {
	ShouldSuppressMicNow(now time.Time) bool
}

// PumpConfig contains configuration for a capture pump
type PumpConfig struct {
	SampleRate   int
	Channels     int
	ChunkMs      int
	PollInterval time.Duration
}

// Pump polls a frame source and forwards chunked audio to a sink. One pump
// runs per capture side for the lifetime of a recording session.
type Pump struct {
	id      string
	source  FrameSource
	sink    ChunkSink
	gate    SuppressionGate
	chunker *Chunker
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *logger.Logger

	pollInterval time.Duration

	mu             sync.Mutex
	isRunning      bool
	lastError      error
	lastActivity   time.Time
	bytesForwarded int
	done           chan struct{}
}

// NewPump creates a capture pump. gate may be nil for sources that are
// never suppressed.
func NewPump(
	ctx context.Context,
	id string,
	source FrameSource,
	sink ChunkSink,
	gate SuppressionGate,
	config PumpConfig,
	log *logger.Logger,
) *Pump {
	pumpCtx, pumpCancel := context.WithCancel(ctx)

	return &Pump{
		id:           id,
		source:       source,
		sink:         sink,
		gate:         gate,
		chunker:      NewChunker(ChunkBytes(config.SampleRate, config.Channels, config.ChunkMs)),
		ctx:          pumpCtx,
		cancel:       pumpCancel,
		logger:       log.Named("audio-pump").With(String("id", id)),
		pollInterval: config.PollInterval,
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
}

// Start starts the capture loop
func (p *Pump) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return nil
	}

	p.logger.Info("Starting audio pump",
		String("poll_interval", p.pollInterval.String()))

	p.isRunning = true
	go p.run()
	return nil
}

// Stop stops the capture loop and flushes any partial chunk to the sink
func (p *Pump) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	p.logger.Info("Stopping audio pump")
	p.cancel()
	<-p.done

	if chunk := p.chunker.Flush(); chunk != nil {
		if err := p.sink.AppendAudio(chunk); err != nil {
			p.logger.Warn("Failed to flush trailing audio", Error(err))
		}
	}

	if err := p.source.Close(); err != nil {
		return fmt.Errorf("failed to close frame source: %w", err)
	}
	return nil
}

// run is the capture loop: poll for a frame, gate it, chunk it, forward it.
func (p *Pump) run() {
	defer close(p.done)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	lastLogTime := time.Now()

	for {
		select {
		case <-p.ctx.Done():
			p.logger.Info("Context canceled, stopping capture loop",
				Int("total_bytes_forwarded", p.totalForwarded()))
			return
		case <-ticker.C:
			frame, err := p.source.ReadFrame(p.ctx)
			if err != nil {
				if p.ctx.Err() != nil {
					return
				}
				p.logger.Error("Error reading capture frame", Error(err))
				p.setLastError(err)
				continue
			}
			if len(frame) == 0 {
				continue
			}

			// Dropped frames never reach the provider, so suppressed
			// speaker audio cannot come back as mic transcript.
			if p.gate != nil && p.gate.ShouldSuppressMicNow(time.Now()) {
				continue
			}

			chunk := p.chunker.Add(frame)
			if chunk == nil {
				continue
			}

			if err := p.sink.AppendAudio(chunk); err != nil {
				p.logger.Error("Error forwarding audio chunk", Error(err))
				p.setLastError(err)
				continue
			}

			p.mu.Lock()
			p.bytesForwarded += len(chunk)
			p.lastActivity = time.Now()
			p.mu.Unlock()

			// Log progress every 30 seconds
			if time.Since(lastLogTime) > 30*time.Second {
				p.logger.Debug("Capture progress",
					Int("bytes_forwarded", p.totalForwarded()))
				lastLogTime = time.Now()
			}
		}
	}
}

// GetStatus returns the status of the pump
func (p *Pump) GetStatus() (string, time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.isRunning {
		return "stopped", p.lastActivity, nil
	}
	if p.lastError != nil {
		return "error", p.lastActivity, p.lastError
	}
	return "running", p.lastActivity, nil
}

func (p *Pump) setLastError(err error) {
	p.mu.Lock()
	p.lastError = err
	p.mu.Unlock()
}

func (p *Pump) totalForwarded() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bytesForwarded
}
