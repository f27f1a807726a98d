package environment

import (
	"context"
	"fmt"
)

// NCT7717UStatus is a snapshot of every readable NCT7717U register.
type NCT7717UStatus struct {
	ChipID           string `yaml:"chip_id"`
	VendorID         string `yaml:"vendor_id"`
	DeviceID         string `yaml:"device_id"`
	Temperature      int8   `yaml:"temperature_c"`
	AlertThreshold   int8   `yaml:"alert_threshold_c"`
	AlertStatus      int    `yaml:"alert_status"`
	AlertMode        string `yaml:"alert_mode"`
	Configuration    string `yaml:"configuration"`
	ConversionRate   string `yaml:"conversion_rate"`
	ConversionPeriod string `yaml:"conversion_period"`
	DataLog          []int  `yaml:"data_log,flow"`
}

// Status reads all readable registers. It stops at the first bus error.
func (s *NCT7717U) Status(ctx context.Context) (*NCT7717UStatus, error) {
	status := &NCT7717UStatus{}
	ids := []struct {
		reg Register
		dst *string
	}{
		{RegChipID, &status.ChipID},
		{RegVendorID, &status.VendorID},
		{RegDeviceID, &status.DeviceID},
	}
	for _, id := range ids {
		v, err := s.ReadRegister(ctx, id.reg)
		if err != nil {
			return nil, err
		}
		*id.dst = fmt.Sprintf("%#02x", v)
	}
	var err error
	if status.Temperature, err = s.GetRawTemperature(ctx); err != nil {
		return nil, err
	}
	if status.AlertThreshold, err = s.GetAlertTemperature(ctx); err != nil {
		return nil, err
	}
	if status.AlertStatus, err = s.GetAlertStatus(ctx); err != nil {
		return nil, err
	}
	mode, err := s.GetAlertMode(ctx)
	if err != nil {
		return nil, err
	}
	status.AlertMode = mode.String()
	conf, err := s.GetConfiguration(ctx)
	if err != nil {
		return nil, err
	}
	status.Configuration = conf.String()
	rate, err := s.GetConversionRate(ctx)
	if err != nil {
		return nil, err
	}
	status.ConversionRate = rate.String()
	status.ConversionPeriod = rate.Period().String()
	for i := minDataLogIndex; i <= maxDataLogIndex; i++ {
		v, err := s.GetDataLog(ctx, i)
		if err != nil {
			return nil, err
		}
		status.DataLog = append(status.DataLog, int(v))
	}
	return status, nil
}
