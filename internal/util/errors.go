package util

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound           = errors.New("record not found")
	ErrNoExtractableText  = errors.New("no extractable text found in document")
	ErrEmbeddingDimension = errors.New("embedding dimensionality mismatch")
)

// CapacityError signals a per-owner quota was exceeded before any write.
type CapacityError struct {
	OwnerID string
	Used    int
	Limit   int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("owner %s over capacity: %d of %d chunks used", e.OwnerID, e.Used, e.Limit)
}

// TimeoutError marks a hard operation cutoff, distinct from provider failures.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s exceeded %s deadline", e.Op, e.Limit)
}

func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
