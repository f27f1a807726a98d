package environment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/thermal"
)

var ErrNoAck = errors.New("nct7717u sim: no acknowledge")
var ErrReadOnlyRegister = errors.New("nct7717u sim: register is read only")

// Identification bytes and power-on values reported by the simulator.
const (
	SimChipID   byte = 0x50
	SimVendorID byte = 0x50
	SimDeviceID byte = 0x90

	SimPowerOnTemperature    int8           = 25
	SimPowerOnAlertThreshold int8           = 80
	SimPowerOnConversionRate ConversionRate = Rate16Hz
	SimPowerOnAlertMode      AlertMode      = AlertModeInterrupt
)

// writeAliases maps write-only register addresses to the register read back by the host.
var writeAliases = map[Register]Register{
	RegWriteConfig:         RegReadConfig,
	RegWriteConversionRate: RegReadConversionRate,
	RegWriteAlertThreshold: RegReadAlertThreshold,
	RegDataLog1:            RegDataLog1,
	RegDataLog2:            RegDataLog2,
	RegDataLog3:            RegDataLog3,
	RegAlertMode:           RegAlertMode,
	RegAlertModeAux:        RegAlertModeAux,
}

// SimTx is one transaction observed by the simulator.
type SimTx struct {
	Write   bool
	Address byte
	Data    []byte
}

func (tx SimTx) String() string {
	if tx.Write {
		return fmt.Sprintf("W %#02x % x", tx.Address, tx.Data)
	}
	return fmt.Sprintf("R %#02x % x", tx.Address, tx.Data)
}

// NCT7717USimulator is an in-memory NCT7717U register file behind an I2C bus.
// It can be used in place of hardware by the driver, the CLI and tests.
//
// Example usage:
//
//	sim := NewNCT7717USimulator()
//	sensor, _ := NewNCT7717U(sim, WithAlertPin(sim))
//	sim.SetTemperature(30)
type NCT7717USimulator struct {
	mx       sync.Mutex
	address  byte
	pointer  Register
	regs     map[Register]byte
	oneShots int
	speed    physic.Frequency
	txs      []SimTx
}

// NewNCT7717USimulator creates a simulator answering at the default address.
func NewNCT7717USimulator() *NCT7717USimulator {
	return NewNCT7717USimulatorAt(nct7717uDefaultAddress)
}

// NewNCT7717USimulatorAt creates a simulator answering at address.
func NewNCT7717USimulatorAt(address byte) *NCT7717USimulator {
	return &NCT7717USimulator{
		address: address,
		regs: map[Register]byte{
			RegTemperature:        byte(SimPowerOnTemperature),
			RegReadAlertThreshold: byte(SimPowerOnAlertThreshold),
			RegReadConversionRate: byte(SimPowerOnConversionRate),
			RegAlertMode:          byte(SimPowerOnAlertMode),
			RegChipID:             SimChipID,
			RegVendorID:           SimVendorID,
			RegDeviceID:           SimDeviceID,
		},
	}
}

func (s *NCT7717USimulator) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if address != s.address {
		return fmt.Errorf("write to %#02x: %w", address, ErrNoAck)
	}
	s.record(true, address, buffer)
	switch len(buffer) {
	case 0:
		return nil
	case 1:
		s.pointer = Register(buffer[0])
		return nil
	case 2:
		s.pointer = Register(buffer[0])
		return s.write(s.pointer, buffer[1])
	default:
		return fmt.Errorf("nct7717u sim: unsupported %d byte write", len(buffer))
	}
}

func (s *NCT7717USimulator) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if address != s.address {
		return fmt.Errorf("read from %#02x: %w", address, ErrNoAck)
	}
	for i := range buffer {
		buffer[i] = s.read(s.pointer)
	}
	s.record(false, address, buffer)
	return nil
}

func (s *NCT7717USimulator) Release(ctx context.Context) error {
	return nil
}

// SetSpeed records the bus frequency requested by the host.
func (s *NCT7717USimulator) SetSpeed(f physic.Frequency) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.speed = f
	return nil
}

// Speed returns the last frequency set with SetSpeed.
func (s *NCT7717USimulator) Speed() physic.Frequency {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.speed
}

// Asserted reports the simulated ALERT pin: active while the temperature is above
// the threshold and alerts are not masked.
func (s *NCT7717USimulator) Asserted(ctx context.Context) (bool, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	if Config(s.regs[RegReadConfig]).AlertMasked() {
		return false, nil
	}
	return s.aboveThreshold(), nil
}

// SetTemperature changes the measured temperature.
func (s *NCT7717USimulator) SetTemperature(t int8) {
	s.Poke(RegTemperature, byte(t))
}

// Poke stores a raw register value without recording a transaction.
func (s *NCT7717USimulator) Poke(reg Register, value byte) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.regs[reg] = value
}

// Peek returns a stored register value without recording a transaction.
func (s *NCT7717USimulator) Peek(reg Register) byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.regs[reg]
}

// OneShots returns the number of one-shot conversions performed while monitoring was stopped.
func (s *NCT7717USimulator) OneShots() int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.oneShots
}

// Transactions returns a copy of the transaction log.
func (s *NCT7717USimulator) Transactions() []SimTx {
	s.mx.Lock()
	defer s.mx.Unlock()
	txs := make([]SimTx, len(s.txs))
	copy(txs, s.txs)
	return txs
}

// Writes returns the payload of every write transaction.
func (s *NCT7717USimulator) Writes() [][]byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	var writes [][]byte
	for _, tx := range s.txs {
		if tx.Write {
			writes = append(writes, tx.Data)
		}
	}
	return writes
}

// ClearTransactions empties the transaction log.
func (s *NCT7717USimulator) ClearTransactions() {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.txs = nil
}

func (s *NCT7717USimulator) record(write bool, address byte, data []byte) {
	cp := make([]byte, len(data))
	copy(cp, data)
	s.txs = append(s.txs, SimTx{Write: write, Address: address, Data: cp})
}

func (s *NCT7717USimulator) write(reg Register, value byte) error {
	if reg == RegOneShot {
		if Config(s.regs[RegReadConfig]).MonitoringStopped() {
			s.oneShots++
		}
		return nil
	}
	target, ok := writeAliases[reg]
	if !ok {
		return fmt.Errorf("write %s: %w", reg, ErrReadOnlyRegister)
	}
	s.regs[target] = value
	return nil
}

func (s *NCT7717USimulator) read(reg Register) byte {
	if reg == RegAlertStatus {
		status := s.regs[RegAlertStatus] &^ alertStatusHigh
		if s.aboveThreshold() {
			status |= alertStatusHigh
		}
		return status
	}
	return s.regs[reg]
}

func (s *NCT7717USimulator) aboveThreshold() bool {
	return int8(s.regs[RegTemperature]) > int8(s.regs[RegReadAlertThreshold])
}

var _ thermal.I2CBus = &NCT7717USimulator{}
var _ thermal.SpeedSetter = &NCT7717USimulator{}
var _ thermal.AlertPin = &NCT7717USimulator{}
