package usecase

import (
	"context"
	"fmt"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
	"PsiPulse/pkg/logger"
)

// CandleProcessor is the downstream the collector feeds, normally the
// validation pipeline in front of the engine.
type CandleProcessor interface {
	Process(ctx context.Context, c models.Candle) error
}

// CandleCollector drives the feed: connect, stream candles into the
// processor, reconnect on failure. The in-flight cycle always completes
// before Start returns.
type CandleCollector struct {
	feed domrepo.CandleFeed
	pipe CandleProcessor
	log  *logger.Logger

	reconnectDelay time.Duration
}

// NewCandleCollector creates a collector.
func NewCandleCollector(feed domrepo.CandleFeed, pipe CandleProcessor, log *logger.Logger) *CandleCollector {
	if log == nil {
		log = logger.Nop()
	}
	return &CandleCollector{
		feed:           feed,
		pipe:           pipe,
		log:            log,
		reconnectDelay: 5 * time.Second,
	}
}

// Start consumes the feed until ctx is cancelled. Data-quality rejections are
// logged and skipped, never fatal.
func (cc *CandleCollector) Start(ctx context.Context) error {
	if err := cc.feed.Connect(ctx); err != nil {
		return fmt.Errorf("feed connect: %w", err)
	}

	for {
		candles, errs := cc.feed.Read(ctx)
	stream:
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case c, ok := <-candles:
				if !ok {
					break stream
				}
				if err := cc.pipe.Process(ctx, c); err != nil {
					cc.log.Warn("candle rejected",
						logger.Time("open_time", c.OpenTime),
						logger.Error(err))
				}
			case err, ok := <-errs:
				if !ok {
					break stream
				}
				if err != nil {
					cc.log.Error("feed error", logger.Error(err))
				}
				break stream
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		cc.log.Info("reconnecting feed")
		_ = cc.feed.Close()
		if err := cc.feed.Connect(ctx); err != nil {
			cc.log.Error("feed reconnect failed", logger.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(cc.reconnectDelay):
			}
		}
	}
}

// Shutdown closes the feed; the read loop then drains and exits.
func (cc *CandleCollector) Shutdown(context.Context) error {
	return cc.feed.Close()
}
