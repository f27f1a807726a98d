package i2c

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"gobot.io/x/gobot/v2/drivers/i2c"

	"github.com/mklimuk/thermal"
)

var _ thermal.I2CBus = &GobotBus{}

// GobotBus adapts a gobot I2C connector (e.g. the nanopi adaptor) to thermal.I2CBus.
// One generic gobot driver is started per slave address on first use.
type GobotBus struct {
	mx        sync.Mutex
	connector i2c.Connector
	busNr     int
	drivers   map[byte]*i2c.GenericDriver
}

func NewGobotBus(connector i2c.Connector, busNr int) *GobotBus {
	return &GobotBus{
		connector: connector,
		busNr:     busNr,
		drivers:   make(map[byte]*i2c.GenericDriver),
	}
}

func (b *GobotBus) driver(address byte) (*i2c.GenericDriver, error) {
	if d, ok := b.drivers[address]; ok {
		return d, nil
	}
	d := i2c.NewGenericDriver(b.connector, fmt.Sprintf("i2c-%#02x", address), int(address), func(c i2c.Config) {
		c.SetBus(b.busNr)
	})
	if err := d.Start(); err != nil {
		return nil, fmt.Errorf("start error: %w", err)
	}
	b.drivers[address] = d
	return d, nil
}

func (b *GobotBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	d, err := b.driver(address)
	if err != nil {
		return fmt.Errorf("could not read from gobot i2c bus %d addr %x: %w", b.busNr, address, err)
	}
	if err := d.Read(buffer); err != nil {
		return fmt.Errorf("could not read from gobot i2c bus %d addr %x: %w", b.busNr, address, err)
	}
	trace(ctx, "gobot i2c read", address, buffer)
	return nil
}

func (b *GobotBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	d, err := b.driver(address)
	if err != nil {
		return fmt.Errorf("could not write to gobot i2c bus %d addr %x: %w", b.busNr, address, err)
	}
	trace(ctx, "gobot i2c write", address, buffer)
	if err := d.Write(buffer); err != nil {
		return fmt.Errorf("could not write to gobot i2c bus %d addr %x: %w", b.busNr, address, err)
	}
	return nil
}

func (b *GobotBus) Release(ctx context.Context) error {
	return nil
}

// Close halts every driver started by the bus.
func (b *GobotBus) Close() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	var errs []error
	for addr, d := range b.drivers {
		if err := d.Halt(); err != nil {
			errs = append(errs, fmt.Errorf("halt %#02x: %w", addr, err))
		}
		delete(b.drivers, addr)
	}
	return errors.Join(errs...)
}
