package services

import (
	"time"

	"github.com/you/mimora/domain"
)

type systemClock struct{}

// SystemClock returns a domain.Clock backed by the time package
func SystemClock() domain.Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) domain.Timer {
	return time.AfterFunc(d, f)
}
