package middleware

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"PsiPulse/internal/domain/models"
)

type recordingProc struct {
	calls int
	err   error
}

func (p *recordingProc) ProcessCandle(context.Context, models.Candle) (models.Decision, error) {
	p.calls++
	return models.Decision{}, p.err
}

var pipeStart = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

func pipeCandle(i int) models.Candle {
	return models.Candle{
		OpenTime: pipeStart.Add(time.Duration(i) * time.Minute),
		Open:     100,
		High:     101,
		Low:      99,
		Close:    100.5,
		Volume:   10,
	}
}

func TestProcessForwardsValidCandles(t *testing.T) {
	proc := &recordingProc{}
	p := NewCandlePipeline(proc, nil)

	for i := 0; i < 3; i++ {
		if err := p.Process(context.Background(), pipeCandle(i)); err != nil {
			t.Fatalf("candle %d: %v", i, err)
		}
	}
	if proc.calls != 3 {
		t.Fatalf("downstream calls: got %d want 3", proc.calls)
	}
}

func TestProcessDropsRedeliveredCandles(t *testing.T) {
	proc := &recordingProc{}
	p := NewCandlePipeline(proc, nil)

	if err := p.Process(context.Background(), pipeCandle(1)); err != nil {
		t.Fatalf("first: %v", err)
	}
	// reconnect replays the same closed kline
	if err := p.Process(context.Background(), pipeCandle(1)); err != nil {
		t.Fatalf("replay should be dropped silently, got %v", err)
	}
	if err := p.Process(context.Background(), pipeCandle(0)); err != nil {
		t.Fatalf("older replay should be dropped silently, got %v", err)
	}
	if proc.calls != 1 {
		t.Fatalf("downstream calls: got %d want 1", proc.calls)
	}
}

func TestProcessRejectsMalformed(t *testing.T) {
	proc := &recordingProc{}
	p := NewCandlePipeline(proc, nil)

	bad := pipeCandle(0)
	bad.Low = bad.High + 1
	if err := p.Process(context.Background(), bad); !errors.Is(err, models.ErrCandleMalformed) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if proc.calls != 0 {
		t.Fatalf("malformed candle reached downstream")
	}
}

func TestProcessDoesNotBufferDataErrors(t *testing.T) {
	proc := &recordingProc{err: fmt.Errorf("store: %w", models.ErrCandleOutOfOrder)}
	p := NewCandlePipeline(proc, nil)

	if err := p.Process(context.Background(), pipeCandle(0)); !errors.Is(err, models.ErrCandleOutOfOrder) {
		t.Fatalf("expected data error passthrough, got %v", err)
	}
	if len(p.bufCh) != 0 {
		t.Fatalf("data error was buffered for retry")
	}
}

func TestProcessBuffersTransientErrors(t *testing.T) {
	proc := &recordingProc{err: errors.New("downstream busy")}
	p := NewCandlePipeline(proc, nil, WithBufferSize(4))

	if err := p.Process(context.Background(), pipeCandle(0)); err == nil {
		t.Fatalf("expected downstream error")
	}
	if len(p.bufCh) != 1 {
		t.Fatalf("transient failure not buffered: depth %d", len(p.bufCh))
	}
}

type overlapProc struct {
	inFlight  int32
	overlaps  int32
	failFirst int32
}

func (p *overlapProc) ProcessCandle(context.Context, models.Candle) (models.Decision, error) {
	if atomic.AddInt32(&p.inFlight, 1) > 1 {
		atomic.AddInt32(&p.overlaps, 1)
	}
	defer atomic.AddInt32(&p.inFlight, -1)
	time.Sleep(5 * time.Millisecond)
	if atomic.CompareAndSwapInt32(&p.failFirst, 1, 0) {
		return models.Decision{}, errors.New("downstream busy")
	}
	return models.Decision{}, nil
}

func TestFlushDoesNotInterleaveWithProcess(t *testing.T) {
	proc := &overlapProc{failFirst: 1}
	p := NewCandlePipeline(proc, nil, WithBufferSize(4))
	ctx := context.Background()

	// First candle fails downstream and lands in the retry buffer.
	if err := p.Process(ctx, pipeCandle(0)); err == nil {
		t.Fatal("expected downstream error")
	}
	p.Start(ctx)
	defer p.Stop()

	// Direct processing races the background flush of the buffered candle;
	// downstream must still see one cycle at a time.
	for i := 1; i <= 5; i++ {
		if err := p.Process(ctx, pipeCandle(i)); err != nil {
			t.Fatalf("candle %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&proc.overlaps); n != 0 {
		t.Fatalf("downstream cycles overlapped %d times", n)
	}
}
