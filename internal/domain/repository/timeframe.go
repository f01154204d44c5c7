package repository

import (
	"fmt"
	"time"
)

// Timeframe identifies a candle aggregation interval.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF30m Timeframe = "30m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
)

// Duration returns the timeframe length.
func (tf Timeframe) Duration() (time.Duration, error) {
	switch tf {
	case TF1m:
		return time.Minute, nil
	case TF5m:
		return 5 * time.Minute, nil
	case TF15m:
		return 15 * time.Minute, nil
	case TF30m:
		return 30 * time.Minute, nil
	case TF1h:
		return time.Hour, nil
	case TF4h:
		return 4 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe: %s", tf)
	}
}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	_, err := tf.Duration()
	return err == nil
}

// ParseTimeframes converts minute counts into timeframes, rejecting
// unsupported values.
func ParseTimeframes(minutes []int) ([]Timeframe, error) {
	out := make([]Timeframe, 0, len(minutes))
	for _, m := range minutes {
		var tf Timeframe
		switch m {
		case 1:
			tf = TF1m
		case 5:
			tf = TF5m
		case 15:
			tf = TF15m
		case 30:
			tf = TF30m
		case 60:
			tf = TF1h
		case 240:
			tf = TF4h
		default:
			return nil, fmt.Errorf("unsupported timeframe minutes: %d", m)
		}
		out = append(out, tf)
	}
	return out, nil
}
