package environment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/thermal"
)

var ErrOutOfRange = errors.New("nct7717u: parameter out of range")
var ErrNoAlertPin = errors.New("nct7717u: alert pin not connected")

// RangeError is returned when a parameter is rejected before any bus access.
type RangeError struct {
	Param string
	Value int
	Min   int
	Max   int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("nct7717u: %s %d out of range [%d,%d]", e.Param, e.Value, e.Min, e.Max)
}

func (e *RangeError) Unwrap() error {
	return ErrOutOfRange
}

// NCT7717U represents a Nuvoton NCT7717U local temperature sensor.
// See: https://www.nuvoton.com/export/resource-files/en-us--DS_NCT7717U_Datasheet_V111.pdf
//
// Usage: Instantiate with NewNCT7717U, then call GetTemperature(ctx)
//
// Every register access is one transaction: a pointer write followed by a
// one byte read, or a single two byte write. The driver serialises its own
// transactions but multi-register sequences (SetAlertMode) are not atomic.
type NCT7717U struct {
	mx        sync.Mutex
	transport thermal.I2CBus
	config    NCT7717UConfig
	buf       []byte
}

type NCT7717UConfig struct {
	Address   byte
	Frequency physic.Frequency
	AlertPin  thermal.AlertPin
	Debug     bool
	Logger    *slog.Logger
}

type NCT7717UOpt func(*NCT7717UConfig)

func WithAddress(address byte) NCT7717UOpt {
	return func(c *NCT7717UConfig) {
		c.Address = address
	}
}

func WithFrequency(f physic.Frequency) NCT7717UOpt {
	return func(c *NCT7717UConfig) {
		c.Frequency = f
	}
}

func WithAlertPin(pin thermal.AlertPin) NCT7717UOpt {
	return func(c *NCT7717UConfig) {
		c.AlertPin = pin
	}
}

// WithDebug enables diagnostics for rejected parameters.
func WithDebug(debug bool) NCT7717UOpt {
	return func(c *NCT7717UConfig) {
		c.Debug = debug
	}
}

func WithLogger(logger *slog.Logger) NCT7717UOpt {
	return func(c *NCT7717UConfig) {
		c.Logger = logger
	}
}

// NewNCT7717U creates a new NCT7717U connector on the given bus.
// If the bus supports it, the clock is set to the configured frequency (400 kHz by default).
func NewNCT7717U(trans thermal.I2CBus, opts ...NCT7717UOpt) (*NCT7717U, error) {
	config := NCT7717UConfig{
		Address:   nct7717uDefaultAddress,
		Frequency: 400 * physic.KiloHertz,
	}
	for _, opt := range opts {
		opt(&config)
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if setter, ok := trans.(thermal.SpeedSetter); ok && config.Frequency > 0 {
		if err := setter.SetSpeed(config.Frequency); err != nil {
			return nil, fmt.Errorf("nct7717u: could not set bus frequency to %s: %w", config.Frequency, err)
		}
	}
	return &NCT7717U{
		transport: trans,
		config:    config,
		buf:       make([]byte, 1),
	}, nil
}

// Address returns the 7-bit slave address of the device.
func (s *NCT7717U) Address() byte {
	return s.config.Address
}

func (s *NCT7717U) String() string {
	return fmt.Sprintf("nct7717u@%#02x", s.config.Address)
}

// ReadRegister writes the register address and reads one byte back.
func (s *NCT7717U) ReadRegister(ctx context.Context, reg Register) (byte, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	err := s.transport.WriteToAddr(ctx, s.config.Address, []byte{byte(reg)})
	if err != nil {
		return 0, fmt.Errorf("nct7717u: could not write %s register request: %w", reg, err)
	}
	s.buf[0] = 0
	err = s.transport.ReadFromAddr(ctx, s.config.Address, s.buf)
	if err != nil {
		return 0, fmt.Errorf("nct7717u: could not read %s register: %w", reg, err)
	}
	return s.buf[0], nil
}

// WriteRegister writes value to the register in a single frame.
func (s *NCT7717U) WriteRegister(ctx context.Context, reg Register, value byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	err := s.transport.WriteToAddr(ctx, s.config.Address, []byte{byte(reg), value})
	if err != nil {
		return fmt.Errorf("nct7717u: could not write %s register: %w", reg, err)
	}
	return nil
}

// GetRawTemperature returns the local temperature in whole degrees Celsius.
func (s *NCT7717U) GetRawTemperature(ctx context.Context) (int8, error) {
	v, err := s.ReadRegister(ctx, RegTemperature)
	if err != nil {
		return 0, err
	}
	// 2's complement
	return int8(v), nil
}

// GetTemperature reads the current temperature in Celsius.
func (s *NCT7717U) GetTemperature(ctx context.Context) (float32, error) {
	t, err := s.GetRawTemperature(ctx)
	if err != nil {
		return 0, err
	}
	return float32(t), nil
}

func (s *NCT7717U) GetChipID(ctx context.Context) (byte, error) {
	return s.ReadRegister(ctx, RegChipID)
}

func (s *NCT7717U) GetVendorID(ctx context.Context) (byte, error) {
	return s.ReadRegister(ctx, RegVendorID)
}

func (s *NCT7717U) GetDeviceID(ctx context.Context) (byte, error) {
	return s.ReadRegister(ctx, RegDeviceID)
}

// SetConfiguration writes the configuration register verbatim.
func (s *NCT7717U) SetConfiguration(ctx context.Context, conf Config) error {
	return s.WriteRegister(ctx, RegWriteConfig, byte(conf))
}

// GetConfiguration returns the configuration register with undefined bits cleared.
func (s *NCT7717U) GetConfiguration(ctx context.Context) (Config, error) {
	v, err := s.ReadRegister(ctx, RegReadConfig)
	if err != nil {
		return 0, err
	}
	return Config(v) & configMask, nil
}

// SetConversionRate sets the conversion rate. Rates above MaxConversionRate are
// rejected without touching the bus.
func (s *NCT7717U) SetConversionRate(ctx context.Context, rate ConversionRate) error {
	if !rate.Valid() {
		return s.reject("conversion rate", int(rate), int(Rate0_0625Hz), int(MaxConversionRate))
	}
	return s.WriteRegister(ctx, RegWriteConversionRate, byte(rate))
}

func (s *NCT7717U) GetConversionRate(ctx context.Context) (ConversionRate, error) {
	v, err := s.ReadRegister(ctx, RegReadConversionRate)
	if err != nil {
		return 0, err
	}
	return ConversionRate(v & conversionRateMask), nil
}

// SetAlertTemperature sets the high alert threshold in Celsius.
func (s *NCT7717U) SetAlertTemperature(ctx context.Context, temp int8) error {
	return s.WriteRegister(ctx, RegWriteAlertThreshold, byte(temp))
}

func (s *NCT7717U) GetAlertTemperature(ctx context.Context) (int8, error) {
	v, err := s.ReadRegister(ctx, RegReadAlertThreshold)
	if err != nil {
		return 0, err
	}
	return int8(v), nil
}

// OneShotConversion triggers a single conversion. It only has an effect while
// monitoring is stopped (see ConfigStopMonitor).
func (s *NCT7717U) OneShotConversion(ctx context.Context) error {
	return s.WriteRegister(ctx, RegOneShot, 0)
}

// SetDataLog stores data in customer data log register i (1 to 3).
func (s *NCT7717U) SetDataLog(ctx context.Context, i int, data byte) error {
	reg, err := s.dataLogRegister(i)
	if err != nil {
		return err
	}
	return s.WriteRegister(ctx, reg, data)
}

// GetDataLog reads customer data log register i (1 to 3). An invalid index
// returns 0 together with a *RangeError.
func (s *NCT7717U) GetDataLog(ctx context.Context, i int) (byte, error) {
	reg, err := s.dataLogRegister(i)
	if err != nil {
		return 0, err
	}
	return s.ReadRegister(ctx, reg)
}

func (s *NCT7717U) dataLogRegister(i int) (Register, error) {
	if i < minDataLogIndex || i > maxDataLogIndex {
		return 0, s.reject("data log index", i, minDataLogIndex, maxDataLogIndex)
	}
	return RegDataLog1 + Register(i-minDataLogIndex), nil
}

// SetAlertMode selects the alert mode. Any value other than AlertModeInterrupt
// is written as AlertModeComparator. Switching to interrupt mode takes a second
// write to the auxiliary register 0x21; the two writes are separate transactions
// and a failure of the second one leaves the mode register already updated.
func (s *NCT7717U) SetAlertMode(ctx context.Context, mode AlertMode) error {
	if mode != AlertModeInterrupt {
		mode = AlertModeComparator
	}
	err := s.WriteRegister(ctx, RegAlertMode, byte(mode))
	if err != nil {
		return err
	}
	if mode != AlertModeInterrupt {
		return nil
	}
	err = s.WriteRegister(ctx, RegAlertModeAux, 0)
	if err != nil {
		return fmt.Errorf("nct7717u: alert mode written but auxiliary register update failed: %w", err)
	}
	return nil
}

// GetAlertMode returns the raw alert mode register.
func (s *NCT7717U) GetAlertMode(ctx context.Context) (AlertMode, error) {
	v, err := s.ReadRegister(ctx, RegAlertMode)
	if err != nil {
		return 0, err
	}
	return AlertMode(v), nil
}

// GetAlertStatus returns 1 if the temperature is above the alert threshold, 0 otherwise.
func (s *NCT7717U) GetAlertStatus(ctx context.Context) (int, error) {
	v, err := s.ReadRegister(ctx, RegAlertStatus)
	if err != nil {
		return 0, err
	}
	if v&alertStatusHigh != 0 {
		return 1, nil
	}
	return 0, nil
}

// AlertAsserted polls the ALERT pin level. Interrupt driven alert handling is not supported.
func (s *NCT7717U) AlertAsserted(ctx context.Context) (bool, error) {
	if s.config.AlertPin == nil {
		return false, ErrNoAlertPin
	}
	asserted, err := s.config.AlertPin.Asserted(ctx)
	if err != nil {
		return false, fmt.Errorf("nct7717u: could not read alert pin: %w", err)
	}
	return asserted, nil
}

func (s *NCT7717U) reject(param string, value, min, max int) error {
	err := &RangeError{Param: param, Value: value, Min: min, Max: max}
	if s.config.Debug {
		s.config.Logger.Warn("nct7717u: rejected parameter", "param", param, "value", value, "min", min, "max", max)
	}
	return err
}
