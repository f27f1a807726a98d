package adapter

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
	"periph.io/x/conn/v3/physic"
)

func TestSpeedDivider(t *testing.T) {
	tests := []struct {
		given    physic.Frequency
		expected byte
		err      bool
	}{
		{400 * physic.KiloHertz, 27, false},
		{100 * physic.KiloHertz, 117, false},
		{50 * physic.KiloHertz, 237, false},
		{20 * physic.KiloHertz, 0, true},
		{4 * physic.MegaHertz, 0, true},
		{0, 0, true},
	}
	for _, test := range tests {
		t.Run(test.given.String(), func(t *testing.T) {
			div, err := speedDivider(test.given)
			if test.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expected, div)
		})
	}
}

func TestParseStatus(t *testing.T) {
	buf := make([]byte, reportSize)
	buf[9], buf[10] = 0x02, 0x00
	buf[11], buf[12] = 0x01, 0x00
	buf[13] = 3
	buf[14] = 27
	buf[15] = 5
	buf[16], buf[17] = 0x90, 0x00
	buf[25] = 1

	status := parseStatus(buf)
	assert.Equal(t, &MCP2221Status{
		I2CDataBufferCounter:   3,
		I2CSpeedDivider:        27,
		I2CTimeout:             5,
		CurrentAddress:         "9000",
		LastWriteRequestedSize: 2,
		LastWriteSentSize:      1,
		ReadPending:            1,
	}, status)
}

func TestParseGPIOValues(t *testing.T) {
	buf := make([]byte, reportSize)
	// GP0 output high, GP1 input low, GP2 not a GPIO, GP3 input high
	copy(buf[2:], []byte{0x01, 0x00, 0x00, 0x01, 0xEE, byte(GPIOModeNoOperation), 0x01, 0x01})

	values := parseGPIOValues(buf)
	assert.Equal(t, GPIOLine{Mode: GPIOModeOut, Value: 1}, values[0])
	assert.Equal(t, GPIOLine{Mode: GPIOModeIn, Value: 0}, values[1])
	assert.Equal(t, GPIOModeNoOperation, values[2].Mode)
	assert.Equal(t, GPIOLine{Mode: GPIOModeIn, Value: 1}, values[3])

	out, err := yaml.Marshal(values[1])
	require.NoError(t, err)
	assert.Equal(t, "mode: INPUT\nvalue: 0\n", string(out))
}

func TestNewAlertPin(t *testing.T) {
	_, err := NewAlertPin(NewMCP2221(), 4)
	assert.Error(t, err)
	pin, err := NewAlertPin(NewMCP2221(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, pin.gp)
}

func TestGPInputSettings(t *testing.T) {
	// GP0 GPIO output high, GP1 SSPND, GP2 ADC, GP3 LED_I2C
	current := [gpioCount]byte{0x10, 0x01, 0x02, 0x01}

	tests := []struct {
		gp       int
		expected [gpioCount]byte
	}{
		{0, [gpioCount]byte{0x18, 0x01, 0x02, 0x01}},
		{1, [gpioCount]byte{0x10, 0x08, 0x02, 0x01}},
		{3, [gpioCount]byte{0x10, 0x01, 0x02, 0x08}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("GP%d", test.gp), func(t *testing.T) {
			assert.Equal(t, test.expected, gpInputSettings(current, test.gp))
		})
	}
	assert.Equal(t, [gpioCount]byte{0x10, 0x01, 0x02, 0x01}, current)
}

func TestSRAMGPSettings(t *testing.T) {
	resp := make([]byte, reportSize)
	copy(resp[22:], []byte{0x10, 0x01, 0x02, 0x01})
	settings := parseSRAMGPSettings(resp)
	assert.Equal(t, [gpioCount]byte{0x10, 0x01, 0x02, 0x01}, settings)

	req := make([]byte, reportSize)
	fillSetSRAMGPSettings(req, gpInputSettings(settings, 1))
	expected := make([]byte, reportSize)
	expected[0] = 0x60
	expected[7] = 0x80
	copy(expected[8:], []byte{0x10, 0x08, 0x02, 0x01})
	assert.Equal(t, expected, req)
}

func TestParseGPIOValues_InputAfterSRAMUpdate(t *testing.T) {
	buf := make([]byte, reportSize)
	// direction byte 1 is input, as reported once the SRAM settings are applied
	copy(buf[2:], []byte{0x01, 0x00, 0x00, 0x01, 0xEE, 0x00, 0x00, 0x00})
	values := parseGPIOValues(buf)
	assert.Equal(t, GPIOModeIn, values[1].Mode)
	assert.Equal(t, GPIOModeOut, values[0].Mode)
}
