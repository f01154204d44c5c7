// Package stream provides candle feed backends: a WebSocket kline stream for
// live market data and a Kafka consumer for replay or relay topologies.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PsiPulse/internal/domain/models"
	domrepo "PsiPulse/internal/domain/repository"
	"PsiPulse/pkg/logger"

	"github.com/gorilla/websocket"
)

// WSFeed implements a CandleFeed backed by an exchange kline WebSocket.
// Only closed klines are forwarded; in-progress updates are skipped so the
// downstream pipeline sees each candle exactly once.
type WSFeed struct {
	url            string
	symbol         string
	interval       string
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *logger.Logger

	conn      *websocket.Conn
	connected bool
}

// NewWSFeed creates a kline WebSocket feed for one symbol and interval.
func NewWSFeed(url, symbol string, baseMinutes int, reconnectDelay, pingInterval time.Duration, log *logger.Logger) *WSFeed {
	return &WSFeed{
		url:            url,
		symbol:         symbol,
		interval:       intervalName(baseMinutes),
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

func intervalName(minutes int) string {
	switch {
	case minutes >= 60 && minutes%60 == 0:
		return fmt.Sprintf("%dh", minutes/60)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}

// Connect establishes the WebSocket connection to the kline stream.
func (f *WSFeed) Connect(ctx context.Context) error {
	u := fmt.Sprintf("%s/ws/%s@kline_%s", strings.TrimRight(f.url, "/"), strings.ToLower(f.symbol), f.interval)
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return fmt.Errorf("kline stream connect: %w", err)
	}
	f.conn = conn
	f.connected = true
	f.log.Info("kline stream connected", logger.String("url", u))
	return nil
}

type wsKline struct {
	Start  int64  `json:"t"` // ms
	Open   string `json:"o"`
	High   string `json:"h"`
	Low    string `json:"l"`
	Close  string `json:"c"`
	Volume string `json:"v"`
	Closed bool   `json:"x"`
}

type wsMessage struct {
	Event string  `json:"e"`
	Kline wsKline `json:"k"`
}

// Read streams closed candles and errors. The error channel carries at most
// one terminal error; the caller decides whether to Reconnect.
func (f *WSFeed) Read(ctx context.Context) (<-chan models.Candle, <-chan error) {
	candles := make(chan models.Candle, 256)
	errs := make(chan error, 1)

	// ping loop
	go func() {
		ticker := time.NewTicker(f.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if f.conn != nil {
					_ = f.conn.WriteMessage(websocket.PingMessage, nil)
				}
			}
		}
	}()

	// read loop
	go func() {
		defer close(candles)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if f.conn == nil {
					errs <- fmt.Errorf("kline stream conn nil")
					return
				}
				_, b, err := f.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("kline stream read: %w", err)
					return
				}
				var m wsMessage
				if err := json.Unmarshal(b, &m); err != nil {
					// ignore non-kline frames
					continue
				}
				if m.Event != "kline" || !m.Kline.Closed {
					continue
				}
				c, err := klineToCandle(m.Kline)
				if err != nil {
					f.log.Warn("malformed kline skipped", logger.Error(err))
					continue
				}
				select {
				case candles <- c:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return candles, errs
}

func klineToCandle(k wsKline) (models.Candle, error) {
	parse := func(name, s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s=%q", models.ErrCandleMalformed, name, s)
		}
		return v, nil
	}

	var c models.Candle
	var err error
	if c.Open, err = parse("open", k.Open); err != nil {
		return c, err
	}
	if c.High, err = parse("high", k.High); err != nil {
		return c, err
	}
	if c.Low, err = parse("low", k.Low); err != nil {
		return c, err
	}
	if c.Close, err = parse("close", k.Close); err != nil {
		return c, err
	}
	if c.Volume, err = parse("volume", k.Volume); err != nil {
		return c, err
	}
	c.OpenTime = time.UnixMilli(k.Start).UTC()
	return c, nil
}

// Reconnect closes and re-establishes the stream.
func (f *WSFeed) Reconnect(ctx context.Context) error {
	_ = f.Close()
	select {
	case <-time.After(f.reconnectDelay):
	case <-ctx.Done():
		return ctx.Err()
	}
	return f.Connect(ctx)
}

// Close closes the connection.
func (f *WSFeed) Close() error {
	f.connected = false
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// IsConnected reports connection status.
func (f *WSFeed) IsConnected() bool { return f.connected }

var _ domrepo.CandleFeed = (*WSFeed)(nil)
