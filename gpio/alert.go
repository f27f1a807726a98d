package gpio

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/mklimuk/thermal"
)

var ErrPinNotFound = errors.New("gpio: pin not found")

var _ thermal.AlertPin = &AlertLine{}

// AlertLine is a host GPIO wired to an open-drain, active-low ALERT output.
// The line is polled; edge detection is not configured.
type AlertLine struct {
	pin gpio.PinIn
}

// NewAlertLine configures pin as an input with pull-up.
func NewAlertLine(pin gpio.PinIn) (*AlertLine, error) {
	if err := pin.In(gpio.PullUp, gpio.NoEdge); err != nil {
		return nil, fmt.Errorf("could not configure alert pin %s: %w", pin, err)
	}
	return &AlertLine{pin: pin}, nil
}

// OpenAlertLine initializes the host drivers and opens the GPIO by name (e.g. "GPIO17").
func OpenAlertLine(name string) (*AlertLine, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("could not init host: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("%w: %s", ErrPinNotFound, name)
	}
	return NewAlertLine(pin)
}

// Asserted returns true while the line is pulled low.
func (a *AlertLine) Asserted(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return a.pin.Read() == gpio.Low, nil
}

func (a *AlertLine) String() string {
	return a.pin.String()
}
