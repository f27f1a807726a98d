package thermal

import (
	"context"
	"fmt"

	"periph.io/x/conn/v3/physic"
)

var ErrBusBusy = fmt.Errorf("I2C engine is busy (command not completed)")

type AddressableReader interface {
	ReadFromAddr(ctx context.Context, address byte, buffer []byte) error
}

type AddressableWriter interface {
	WriteToAddr(ctx context.Context, address byte, buffer []byte) error
	Release(ctx context.Context) error
}

type I2CBus interface {
	AddressableReader
	AddressableWriter
}

// SpeedSetter is implemented by buses whose clock can be configured by the host.
type SpeedSetter interface {
	SetSpeed(f physic.Frequency) error
}

// AlertPin is a digital input wired to a sensor's ALERT output.
// Asserted reports the electrical level interpreted for an active-low open-drain line.
type AlertPin interface {
	Asserted(ctx context.Context) (bool, error)
}
