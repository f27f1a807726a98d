package environment

import (
	"fmt"
	"strings"
	"time"

	"periph.io/x/conn/v3/physic"
)

const nct7717uDefaultAddress = 0x48

// Register is a one-byte NCT7717U register address.
// The chip exposes separate read and write addresses for its configuration,
// conversion rate and alert threshold registers.
type Register byte

const (
	RegTemperature         Register = 0x00
	RegAlertStatus         Register = 0x02
	RegReadConfig          Register = 0x03
	RegReadConversionRate  Register = 0x04
	RegReadAlertThreshold  Register = 0x05
	RegWriteConfig         Register = 0x09
	RegWriteConversionRate Register = 0x0A
	RegWriteAlertThreshold Register = 0x0B
	RegOneShot             Register = 0x0F
	RegAlertModeAux        Register = 0x21
	RegDataLog1            Register = 0x2D
	RegDataLog2            Register = 0x2E
	RegDataLog3            Register = 0x2F
	RegAlertMode           Register = 0xBF
	RegChipID              Register = 0xFD
	RegVendorID            Register = 0xFE
	RegDeviceID            Register = 0xFF
)

var registerNames = map[Register]string{
	RegTemperature:         "temperature",
	RegAlertStatus:         "alert_status",
	RegReadConfig:          "config(r)",
	RegReadConversionRate:  "conversion_rate(r)",
	RegReadAlertThreshold:  "alert_threshold(r)",
	RegWriteConfig:         "config(w)",
	RegWriteConversionRate: "conversion_rate(w)",
	RegWriteAlertThreshold: "alert_threshold(w)",
	RegOneShot:             "one_shot",
	RegAlertModeAux:        "alert_mode_aux",
	RegDataLog1:            "data_log1",
	RegDataLog2:            "data_log2",
	RegDataLog3:            "data_log3",
	RegAlertMode:           "alert_mode",
	RegChipID:              "chip_id",
	RegVendorID:            "vendor_id",
	RegDeviceID:            "device_id",
}

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return fmt.Sprintf("%s(%#02x)", name, byte(r))
	}
	return fmt.Sprintf("%#02x", byte(r))
}

// Config is the value of the configuration register.
// Only bits 7, 6 and 0 carry meaning; the rest read back as undefined.
type Config byte

const (
	ConfigAlertMask   Config = 0x80
	ConfigStopMonitor Config = 0x40
	ConfigFaultQueue  Config = 0x01

	configMask Config = ConfigAlertMask | ConfigStopMonitor | ConfigFaultQueue
)

// AlertMasked reports whether the ALERT output is masked.
func (c Config) AlertMasked() bool { return c&ConfigAlertMask != 0 }

// MonitoringStopped reports whether periodic conversions are stopped.
// One-shot conversions only have an effect in this state.
func (c Config) MonitoringStopped() bool { return c&ConfigStopMonitor != 0 }

// FaultQueueEnabled reports whether the alert fault queue is enabled.
func (c Config) FaultQueueEnabled() bool { return c&ConfigFaultQueue != 0 }

func (c Config) String() string {
	var flags []string
	if c.AlertMasked() {
		flags = append(flags, "ALERT_MSK")
	}
	if c.MonitoringStopped() {
		flags = append(flags, "STOP_MNT")
	}
	if c.FaultQueueEnabled() {
		flags = append(flags, "EN_FAULTQ")
	}
	if len(flags) == 0 {
		return fmt.Sprintf("%#02x", byte(c))
	}
	return fmt.Sprintf("%#02x [%s]", byte(c), strings.Join(flags, "|"))
}

// ConversionRate selects how often the chip converts, from 0.0625 Hz (0) to 16 Hz (8).
// Each step doubles the frequency.
type ConversionRate byte

const (
	Rate0_0625Hz ConversionRate = iota
	Rate0_125Hz
	Rate0_25Hz
	Rate0_5Hz
	Rate1Hz
	Rate2Hz
	Rate4Hz
	Rate8Hz
	Rate16Hz

	conversionRateMask = 0x0F
)

// MaxConversionRate is the highest value accepted by the conversion rate register.
const MaxConversionRate = Rate16Hz

const slowestConversionPeriod = 16 * time.Second

// Valid reports whether the rate is within the datasheet range.
func (r ConversionRate) Valid() bool {
	return r <= MaxConversionRate
}

// Frequency returns the conversion frequency. Invalid rates return 0.
func (r ConversionRate) Frequency() physic.Frequency {
	if !r.Valid() {
		return 0
	}
	return 62500 * physic.MicroHertz << r
}

// Period returns the time between two conversions. Invalid rates return 0.
func (r ConversionRate) Period() time.Duration {
	if !r.Valid() {
		return 0
	}
	return slowestConversionPeriod >> r
}

func (r ConversionRate) String() string {
	if !r.Valid() {
		return fmt.Sprintf("invalid(%d)", byte(r))
	}
	return fmt.Sprintf("%d (%s)", byte(r), r.Frequency())
}

// AlertMode selects how the ALERT output behaves when the threshold is crossed.
type AlertMode byte

const (
	// AlertModeInterrupt is the interrupt / SMBus alert mode.
	AlertModeInterrupt AlertMode = 0
	// AlertModeComparator keeps ALERT asserted while the temperature is above the threshold.
	AlertModeComparator AlertMode = 1
)

func (m AlertMode) String() string {
	switch m {
	case AlertModeInterrupt:
		return "interrupt"
	case AlertModeComparator:
		return "comparator"
	default:
		return fmt.Sprintf("unknown(%#02x)", byte(m))
	}
}

const alertStatusHigh = 0x40

const (
	minDataLogIndex = 1
	maxDataLogIndex = 3
)
