package adapter

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karalabe/hid"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/thermal"
	"github.com/mklimuk/thermal/snsctx"
)

const VendorID = 0x04D8
const ProductID = 0x00DD

var ErrCommandUnsupported = errors.New("unsupported command")
var ErrCommandFailed = errors.New("command failed")
var ErrDeviceNotFound = errors.New("MCP2221 device not found")

// HID report commands (MCP2221 datasheet, section 3.1)
const (
	cmdStatusSetParams byte = 0x10
	cmdI2CGetData      byte = 0x40
	cmdGetGPIOValues   byte = 0x51
	cmdI2CWriteData    byte = 0x90
	cmdI2CReadData     byte = 0x91
	cmdSetSRAMSettings byte = 0x60
	cmdGetSRAMSettings byte = 0x61

	sramAlterGPIO     byte = 0x80
	gpDesignationMask byte = 0x07
	gpDesignationGPIO byte = 0x00

	paramCancelTransfer byte = 0x10
	paramSetSpeed       byte = 0x20

	speedAccepted byte = 0x20

	reportSize     = 64
	maxPayloadSize = 60
	readErrorCode  = 0x41
	gpioCount      = 4
)

// GP0..GP3 settings offsets in the SRAM settings reports
const (
	sramGPSettingsOut = 22
	sramGPSettingsIn  = 8
)

const mcp2221ClockHz = 12_000_000

var (
	_ thermal.I2CBus      = &MCP2221{}
	_ thermal.SpeedSetter = &MCP2221{}
	_ thermal.AlertPin    = &AlertPin{}
)

// MCP2221 is a Microchip MCP2221(A) USB to I2C/GPIO bridge driven over HID.
// Every command opens the HID device, exchanges one 64 byte report and closes it.
type MCP2221 struct {
	mx           sync.Mutex
	id           int
	request      []byte
	response     []byte
	responseWait time.Duration
}

type MCP2221Status struct {
	I2CDataBufferCounter   int    `yaml:"i2c_data_buffer_counter"`
	I2CSpeedDivider        int    `yaml:"i2c_speed_divider"`
	I2CTimeout             int    `yaml:"i2c_timeout"`
	CurrentAddress         string `yaml:"current_address"`
	LastWriteRequestedSize uint16 `yaml:"last_write_requested_size"`
	LastWriteSentSize      uint16 `yaml:"last_write_sent_size"`
	ReadPending            int    `yaml:"read_pending"`
}

type GPIOMode byte

const (
	GPIOModeOut         GPIOMode = 0b00000000
	GPIOModeIn          GPIOMode = 0b00001000
	GPIOModeNoOperation GPIOMode = 0xEF
)

func (m GPIOMode) String() string {
	switch m {
	case GPIOModeIn:
		return "INPUT"
	case GPIOModeOut:
		return "OUTPUT"
	default:
		return "NOOP"
	}
}

// MarshalYAML prints the mode name instead of its numeric value.
func (m GPIOMode) MarshalYAML() (interface{}, error) {
	return m.String(), nil
}

// GPIOLine is the state of one GP pin reported by the bridge.
type GPIOLine struct {
	Mode  GPIOMode `yaml:"mode"`
	Value byte     `yaml:"value"`
}

// MCP2221GPIOValues holds GP0 to GP3.
type MCP2221GPIOValues [gpioCount]GPIOLine

type MCP2221Opt func(*MCP2221)

// WithDeviceIndex selects one of several bridges attached to the host.
func WithDeviceIndex(id int) MCP2221Opt {
	return func(d *MCP2221) {
		d.id = id
	}
}

// WithResponseWait sets how long to wait between a request and its response.
func WithResponseWait(wait time.Duration) MCP2221Opt {
	return func(d *MCP2221) {
		d.responseWait = wait
	}
}

func NewMCP2221(opts ...MCP2221Opt) *MCP2221 {
	d := &MCP2221{
		id:           -1,
		request:      make([]byte, reportSize),
		response:     make([]byte, reportSize),
		responseWait: 50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Init checks that the bridge is attached.
func (d *MCP2221) Init() error {
	_, err := d.deviceInfo()
	return err
}

func (d *MCP2221) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxPayloadSize {
		return fmt.Errorf("write to %x failed: payload of %d bytes exceeds %d", address, len(buffer), maxPayloadSize)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.prepare(cmdI2CWriteData)
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address << 1
	copy(d.request[4:], buffer)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("write to %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		snsctx.Logger(ctx).Debug("adapter busy", "addr", fmt.Sprintf("%#02x", address))
		return thermal.ErrBusBusy
	}
	return nil
}

func (d *MCP2221) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	if len(buffer) > maxPayloadSize {
		return fmt.Errorf("bus read from %x failed: %d bytes exceeds %d", address, len(buffer), maxPayloadSize)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.prepare(cmdI2CReadData)
	binary.LittleEndian.PutUint16(d.request[1:3], uint16(len(buffer)))
	d.request[3] = address<<1 | 1
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("bus read from %x failed: %w", address, err)
	}
	if d.response[1] == 0x01 {
		return thermal.ErrBusBusy
	}
	d.prepare(cmdI2CGetData)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("error getting read data from adapter: %w", err)
	}
	if d.response[1] == readErrorCode {
		return fmt.Errorf("error reading the I2C slave data from the I2C engine")
	}
	if d.response[3] == 127 || int(d.response[3]) != len(buffer) {
		return fmt.Errorf("invalid data size byte; expected %d, got %d", len(buffer), d.response[3])
	}
	copy(buffer, d.response[4:4+len(buffer)])
	return nil
}

// SetSpeed programs the I2C clock divider. The bridge refuses while a transfer is pending.
func (d *MCP2221) SetSpeed(f physic.Frequency) error {
	divider, err := speedDivider(f)
	if err != nil {
		return err
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	d.prepare(cmdStatusSetParams)
	d.request[3] = paramSetSpeed
	d.request[4] = divider
	if err := d.send(context.Background()); err != nil {
		return fmt.Errorf("set speed request failed: %w", err)
	}
	if d.response[3] != speedAccepted {
		return fmt.Errorf("could not set speed to %s: %w", f, thermal.ErrBusBusy)
	}
	return nil
}

// speedDivider computes the clock divider: 12 MHz / f - 3.
func speedDivider(f physic.Frequency) (byte, error) {
	if f <= 0 {
		return 0, fmt.Errorf("invalid i2c speed %s", f)
	}
	hz := int64(f / physic.Hertz)
	if hz <= 0 {
		return 0, fmt.Errorf("invalid i2c speed %s", f)
	}
	div := mcp2221ClockHz/hz - 3
	if div < 1 || div > 0xFF {
		return 0, fmt.Errorf("i2c speed %s out of MCP2221 range", f)
	}
	return byte(div), nil
}

// ReadGPIO returns the direction and value of every GP pin.
func (d *MCP2221) ReadGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	return d.readGPIO(ctx)
}

func (d *MCP2221) readGPIO(ctx context.Context) (MCP2221GPIOValues, error) {
	d.prepare(cmdGetGPIOValues)
	if err := d.send(ctx); err != nil {
		return MCP2221GPIOValues{}, fmt.Errorf("read GPIO values command failed: %w", err)
	}
	if d.response[1] == 0x01 {
		return MCP2221GPIOValues{}, ErrCommandFailed
	}
	return parseGPIOValues(d.response), nil
}

func parseGPIOValues(buf []byte) MCP2221GPIOValues {
	var res MCP2221GPIOValues
	for i := range res {
		value, dir := buf[2+2*i], buf[3+2*i]
		res[i] = GPIOLine{Mode: GPIOModeNoOperation, Value: value}
		if dir != byte(GPIOModeNoOperation) {
			res[i].Mode = GPIOMode(dir << 3)
		}
	}
	return res
}

// ConfigureGPIOInput makes GP pin gp a GPIO input in the bridge SRAM settings.
// The change applies immediately and is lost on power cycle. Flash is never written
// and nothing is sent when the pin already is an input.
func (d *MCP2221) ConfigureGPIOInput(ctx context.Context, gp int) error {
	if gp < 0 || gp >= gpioCount {
		return fmt.Errorf("invalid GP pin %d", gp)
	}
	d.mx.Lock()
	defer d.mx.Unlock()
	values, err := d.readGPIO(ctx)
	if err != nil {
		return err
	}
	if values[gp].Mode == GPIOModeIn {
		return nil
	}

	d.prepare(cmdGetSRAMSettings)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("get SRAM settings failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	settings := gpInputSettings(parseSRAMGPSettings(d.response), gp)

	d.prepare(cmdSetSRAMSettings)
	fillSetSRAMGPSettings(d.request, settings)
	if err := d.send(ctx); err != nil {
		return fmt.Errorf("set SRAM settings failed: %w", err)
	}
	if d.response[1] != 0x00 {
		return ErrCommandFailed
	}
	return nil
}

func parseSRAMGPSettings(buf []byte) [gpioCount]byte {
	var settings [gpioCount]byte
	copy(settings[:], buf[sramGPSettingsOut:sramGPSettingsOut+gpioCount])
	return settings
}

// gpInputSettings turns pin gp into a GPIO input and keeps the other pins as they are.
func gpInputSettings(current [gpioCount]byte, gp int) [gpioCount]byte {
	settings := current
	settings[gp] = settings[gp]&^gpDesignationMask | gpDesignationGPIO | byte(GPIOModeIn)
	return settings
}

// fillSetSRAMGPSettings alters only the GPIO configuration; every other SRAM field keeps its value.
func fillSetSRAMGPSettings(req []byte, settings [gpioCount]byte) {
	req[0] = cmdSetSRAMSettings
	req[sramGPSettingsIn-1] = sramAlterGPIO
	copy(req[sramGPSettingsIn:], settings[:])
}

func (d *MCP2221) Status(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.prepare(cmdStatusSetParams)
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return parseStatus(d.response), nil
}

// Release cancels any pending I2C transfer, freeing the bus.
func (d *MCP2221) Release(ctx context.Context) error {
	_, err := d.ReleaseBus(ctx)
	return err
}

func (d *MCP2221) ReleaseBus(ctx context.Context) (*MCP2221Status, error) {
	d.mx.Lock()
	defer d.mx.Unlock()
	d.prepare(cmdStatusSetParams)
	d.request[2] = paramCancelTransfer
	if err := d.send(ctx); err != nil {
		return nil, fmt.Errorf("cancel transfer request failed: %w", err)
	}
	return parseStatus(d.response), nil
}

func parseStatus(buf []byte) *MCP2221Status {
	/*
		9-10:  requested I2C transfer length (LE)
		11-12: already transferred number of bytes (LE)
		13: internal I2C data buffer counter
		14: current I2C communication speed divider value
		15: current I2C timeout value
		16-17: I2C address being used
		25: read pending
	*/
	return &MCP2221Status{
		LastWriteRequestedSize: binary.LittleEndian.Uint16(buf[9:11]),
		LastWriteSentSize:      binary.LittleEndian.Uint16(buf[11:13]),
		I2CDataBufferCounter:   int(buf[13]),
		I2CSpeedDivider:        int(buf[14]),
		I2CTimeout:             int(buf[15]),
		CurrentAddress:         hex.EncodeToString(buf[16:18]),
		ReadPending:            int(buf[25]),
	}
}

func (d *MCP2221) deviceInfo() (hid.DeviceInfo, error) {
	devs := hid.Enumerate(VendorID, ProductID)
	switch {
	case len(devs) == 0:
		return hid.DeviceInfo{}, ErrDeviceNotFound
	case d.id < 0 && len(devs) > 1:
		return hid.DeviceInfo{}, fmt.Errorf("ambiguous device identification: %d bridges attached", len(devs))
	case d.id < 0:
		return devs[0], nil
	case d.id >= len(devs):
		return hid.DeviceInfo{}, fmt.Errorf("no device with id %d", d.id)
	default:
		return devs[d.id], nil
	}
}

func (d *MCP2221) send(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := d.deviceInfo()
	if err != nil {
		return err
	}
	dev, err := info.Open()
	if err != nil {
		return fmt.Errorf("error opening device: %w", err)
	}
	defer func() { _ = dev.Close() }()

	logger := snsctx.Logger(ctx)
	verbose := snsctx.IsVerbose(ctx)
	if verbose {
		logger.Debug("sending message to adapter", "report", hex.EncodeToString(d.request))
	}
	n, err := dev.Write(d.request)
	if err != nil {
		return fmt.Errorf("could not write request: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short write: %d", n)
	}
	time.Sleep(d.responseWait)
	n, err = dev.Read(d.response)
	if err != nil {
		return fmt.Errorf("could not read response: %w", err)
	}
	if n != reportSize {
		return fmt.Errorf("short read: %d", n)
	}
	if verbose {
		logger.Debug("read message from adapter", "report", hex.EncodeToString(d.response))
	}
	return nil
}

func (d *MCP2221) prepare(cmd byte) {
	clear(d.request)
	clear(d.response)
	d.request[0] = cmd
}

// AlertPin reads a sensor ALERT output wired to one of the bridge GP pins.
// The pin must be configured as a GPIO input (see ConfigureGPIOInput).
type AlertPin struct {
	bridge *MCP2221
	gp     int
}

func NewAlertPin(bridge *MCP2221, gp int) (*AlertPin, error) {
	if gp < 0 || gp >= gpioCount {
		return nil, fmt.Errorf("invalid GP pin %d", gp)
	}
	return &AlertPin{bridge: bridge, gp: gp}, nil
}

// Asserted returns true while the GP pin reads low.
func (p *AlertPin) Asserted(ctx context.Context) (bool, error) {
	values, err := p.bridge.ReadGPIO(ctx)
	if err != nil {
		return false, err
	}
	line := values[p.gp]
	if line.Mode != GPIOModeIn {
		return false, fmt.Errorf("GP%d is not configured as input (%s)", p.gp, line.Mode)
	}
	return line.Value == 0, nil
}
