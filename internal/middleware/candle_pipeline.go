package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
)

// Proc is the minimal downstream interface the pipeline needs.
type Proc interface {
	ProcessCandle(ctx context.Context, c models.Candle) (models.Decision, error)
}

// CandlePipeline sits between the feed and the decision engine. It validates
// candle payloads, silently drops re-deliveries after a feed reconnect, and
// buffers candles when the downstream is transiently unavailable so a hiccup
// does not lose market data. Downstream cycles never interleave: direct
// processing and background flushing share one lock.
type CandlePipeline struct {
	proc    Proc
	metrics domrepo.Metrics
	bufSize int
	bufCh   chan models.Candle
	stopCh  chan struct{}
	started bool
	mu      sync.Mutex
	procMu  sync.Mutex // serializes calls into proc

	lastOpen time.Time // newest accepted open time
}

type PipelineOption func(*CandlePipeline)

// WithBufferSize sets the temporary buffer size when downstream is unavailable.
func WithBufferSize(n int) PipelineOption {
	return func(p *CandlePipeline) {
		if n > 0 {
			p.bufSize = n
		}
	}
}

// NewCandlePipeline creates a new pipeline.
func NewCandlePipeline(proc Proc, metrics domrepo.Metrics, opts ...PipelineOption) *CandlePipeline {
	p := &CandlePipeline{
		proc:    proc,
		metrics: metrics,
		bufSize: 1000,
		bufCh:   make(chan models.Candle, 1000),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.bufSize != cap(p.bufCh) {
		p.bufCh = make(chan models.Candle, p.bufSize)
	}
	return p
}

// Start launches background flushing of buffered candles.
func (p *CandlePipeline) Start(ctx context.Context) {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return
	}
	p.started = true
	p.mu.Unlock()

	go func() {
		backoff := 50 * time.Millisecond
		for {
			select {
			case <-p.stopCh:
				return
			case c := <-p.bufCh:
				p.procMu.Lock()
				_, err := p.proc.ProcessCandle(ctx, c)
				p.procMu.Unlock()
				if err != nil && !isDataError(err) {
					if backoff < 2*time.Second {
						backoff *= 2
					}
					p.recordError("pipeline_flush")
					time.Sleep(backoff)
					select {
					case p.bufCh <- c:
					default:
						p.recordError("pipeline_buffer_drop")
					}
				} else {
					backoff = 50 * time.Millisecond
				}
			}
		}
	}()
}

// Stop stops the background flushing.
func (p *CandlePipeline) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.mu.Unlock()
	close(p.stopCh)
}

// Process validates and forwards one closed candle downstream, buffering on
// transient errors. Re-delivered candles are dropped without error; a feed
// reconnect commonly replays the last closed kline.
func (p *CandlePipeline) Process(ctx context.Context, c models.Candle) error {
	if !c.Valid() {
		p.recordError("pipeline_validate")
		return fmt.Errorf("%w: %+v", models.ErrCandleMalformed, c)
	}

	p.mu.Lock()
	if !p.lastOpen.IsZero() && !c.OpenTime.After(p.lastOpen) {
		p.mu.Unlock()
		p.recordError("pipeline_replay_drop")
		return nil
	}
	p.lastOpen = c.OpenTime
	p.mu.Unlock()

	p.procMu.Lock()
	_, err := p.proc.ProcessCandle(ctx, c)
	p.procMu.Unlock()
	if err != nil {
		if isDataError(err) {
			return err
		}
		p.recordError("pipeline_process")
		select {
		case p.bufCh <- c:
		default:
			p.recordError("pipeline_buffer_full")
		}
		return fmt.Errorf("pipeline downstream: %w", err)
	}
	return nil
}

// isDataError reports whether err is a validation rejection that retrying can
// never fix.
func isDataError(err error) bool {
	return errors.Is(err, models.ErrCandleMalformed) ||
		errors.Is(err, models.ErrCandleDuplicate) ||
		errors.Is(err, models.ErrCandleOutOfOrder)
}

func (p *CandlePipeline) recordError(kind string) {
	if p.metrics != nil {
		p.metrics.RecordError(kind)
	}
}
