package models

import "time"

// FeatureSentinel encodes a statistic that upstream could not compute yet
// (insufficient history). The vector length is fixed, so missing values are
// encoded, never omitted. The classifiers were trained with the same sentinel.
const FeatureSentinel = 0.0

// FeatureVector is the fixed-shape input contract shared with both
// classifiers. Order and count are defined in one place only (the assembler);
// any change invalidates inference without retraining.
type FeatureVector struct {
	Names  []string
	Values []float64
	At     time.Time
}

// Len returns the feature count.
func (v FeatureVector) Len() int { return len(v.Values) }
