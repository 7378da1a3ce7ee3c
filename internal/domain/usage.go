package domain

import "time"

// UsageLog is the per-batch accounting record: how much work a batch did and
// how much output space the encodes saved relative to the sources.
type UsageLog struct {
	UserID          string
	BatchID         string
	PhotosProcessed int64
	PixelsProcessed int64
	BytesSaved      int64
	ComputeTimeMS   int64
	CreatedAt       time.Time
}
