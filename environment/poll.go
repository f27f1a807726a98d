package environment

import (
	"context"
	"fmt"
	"time"
)

// TemperatureSensor is implemented by every sensor able to report a temperature in Celsius.
type TemperatureSensor interface {
	GetTemperature(ctx context.Context) (float32, error)
}

// ReadingFunc receives the result of every poll.
type ReadingFunc func(temp float32, err error)

// Poll reads the temperature right away and then once per interval until ctx is done.
// Read errors are handed to fn and do not stop polling. Poll returns ctx.Err().
func Poll(ctx context.Context, sensor TemperatureSensor, interval time.Duration, fn ReadingFunc) error {
	if interval <= 0 {
		return fmt.Errorf("poll: invalid interval %s", interval)
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fn(sensor.GetTemperature(ctx))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
