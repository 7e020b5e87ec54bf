package storage

import (
	"time"
)

// BuildRecord summarises one persisted continuous-series build.
type BuildRecord struct {
	Fingerprint string
	Underlying  string
	RollPolicy  string
	Adjustment  string
	RangeStart  time.Time
	RangeEnd    time.Time
	PointCount  int
	RollCount   int
	BuiltAt     time.Time
}
