package market

import (
	"fmt"
	"sync"
	"time"

	"PsiPulse/internal/domain/models"
)

// CandleStore is a bounded, append-only buffer of closed base-resolution
// candles for one instrument. Appends are validated: a candle that is
// malformed, duplicated, or out of order is rejected and no state advances.
type CandleStore struct {
	mu       sync.RWMutex
	symbol   string
	interval time.Duration
	buf      []models.Candle
	head     int // index of the oldest element when full
	size     int
	capacity int
	lastOpen time.Time
}

// NewCandleStore creates a ring buffer holding up to capacity base candles.
func NewCandleStore(symbol string, interval time.Duration, capacity int) *CandleStore {
	if capacity <= 0 {
		capacity = 512
	}
	return &CandleStore{
		symbol:   symbol,
		interval: interval,
		buf:      make([]models.Candle, capacity),
		capacity: capacity,
	}
}

// Append validates and stores a newly closed candle. The candle must open
// exactly one interval after the previous one; gaps and duplicates are
// surfaced as errors, never papered over.
func (s *CandleStore) Append(c models.Candle) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %+v", models.ErrCandleMalformed, c)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lastOpen.IsZero() {
		switch {
		case c.OpenTime.Equal(s.lastOpen):
			return fmt.Errorf("%w: open_time=%s", models.ErrCandleDuplicate, c.OpenTime)
		case c.OpenTime.Before(s.lastOpen):
			return fmt.Errorf("%w: open_time=%s before last=%s", models.ErrCandleOutOfOrder, c.OpenTime, s.lastOpen)
		case !c.OpenTime.Equal(s.lastOpen.Add(s.interval)):
			return fmt.Errorf("%w: gap between %s and %s", models.ErrCandleOutOfOrder, s.lastOpen, c.OpenTime)
		}
	}

	if s.size < s.capacity {
		s.buf[(s.head+s.size)%s.capacity] = c
		s.size++
	} else {
		s.buf[s.head] = c
		s.head = (s.head + 1) % s.capacity
	}
	s.lastOpen = c.OpenTime
	return nil
}

// Len returns the number of stored candles.
func (s *CandleStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

// Last returns the most recent candle and false if the store is empty.
func (s *CandleStore) Last() (models.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.size == 0 {
		return models.Candle{}, false
	}
	return s.buf[(s.head+s.size-1)%s.capacity], true
}

// Recent returns up to n most recent candles in chronological order. The
// returned slice is a copy; the buffer is never exposed.
func (s *CandleStore) Recent(n int) []models.Candle {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n > s.size {
		n = s.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]models.Candle, n)
	start := s.size - n
	for i := 0; i < n; i++ {
		out[i] = s.buf[(s.head+start+i)%s.capacity]
	}
	return out
}

// Symbol returns the instrument this store belongs to.
func (s *CandleStore) Symbol() string { return s.symbol }
