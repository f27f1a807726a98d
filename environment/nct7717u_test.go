package environment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/physic"

	"github.com/mklimuk/thermal"
)

// MockI2CBus is a mock implementation of thermal.I2CBus using testify/mock
type MockI2CBus struct {
	mock.Mock
}

func (m *MockI2CBus) WriteToAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	return args.Error(0)
}

func (m *MockI2CBus) ReadFromAddr(ctx context.Context, address byte, buffer []byte) error {
	args := m.Called(ctx, address, buffer)
	if data, ok := args.Get(0).([]byte); ok && len(data) <= len(buffer) {
		copy(buffer, data)
	}
	return args.Error(1)
}

func (m *MockI2CBus) Release(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// speedBus adds a failing SetSpeed to the mock
type speedBus struct {
	MockI2CBus
	err error
}

func (b *speedBus) SetSpeed(f physic.Frequency) error {
	return b.err
}

func newSensor(t *testing.T, bus thermal.I2CBus, opts ...NCT7717UOpt) *NCT7717U {
	t.Helper()
	sensor, err := NewNCT7717U(bus, opts...)
	require.NoError(t, err)
	return sensor
}

func expectRead(bus *MockI2CBus, reg Register, value byte) {
	bus.On("WriteToAddr", mock.Anything, byte(nct7717uDefaultAddress), []byte{byte(reg)}).Return(nil).Once()
	bus.On("ReadFromAddr", mock.Anything, byte(nct7717uDefaultAddress), mock.Anything).Return([]byte{value}, nil).Once()
}

func TestNCT7717U_DefaultConstruction(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()

	assert.Equal(t, byte(0x48), sensor.Address())
	assert.Equal(t, 400*physic.KiloHertz, sim.Speed())
	assert.Equal(t, "nct7717u@0x48", sensor.String())

	cid, err := sensor.GetChipID(ctx)
	require.NoError(t, err)
	assert.Equal(t, SimChipID, cid)
	vid, err := sensor.GetVendorID(ctx)
	require.NoError(t, err)
	assert.Equal(t, SimVendorID, vid)
	did, err := sensor.GetDeviceID(ctx)
	require.NoError(t, err)
	assert.Equal(t, SimDeviceID, did)

	mode, err := sensor.GetAlertMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, SimPowerOnAlertMode, mode)
}

func TestNCT7717U_Frequency(t *testing.T) {
	sim := NewNCT7717USimulator()
	newSensor(t, sim, WithFrequency(100*physic.KiloHertz))
	assert.Equal(t, 100*physic.KiloHertz, sim.Speed())

	bus := &speedBus{err: errors.New("unsupported clock")}
	_, err := NewNCT7717U(bus)
	assert.ErrorContains(t, err, "unsupported clock")
	bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
}

func TestNCT7717U_RegisterFraming(t *testing.T) {
	bus := new(MockI2CBus)
	sensor := newSensor(t, bus)
	ctx := context.Background()

	expectRead(bus, RegAlertMode, 0x01)
	v, err := sensor.ReadRegister(ctx, RegAlertMode)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), v)

	bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{0x2E, 0xAB}).Return(nil).Once()
	require.NoError(t, sensor.WriteRegister(ctx, RegDataLog2, 0xAB))

	bus.AssertExpectations(t)
}

func TestNCT7717U_BusErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("pointer write", func(t *testing.T) {
		bus := new(MockI2CBus)
		sensor := newSensor(t, bus)
		bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{byte(RegTemperature)}).Return(thermal.ErrBusBusy).Once()
		_, err := sensor.GetTemperature(ctx)
		assert.ErrorIs(t, err, thermal.ErrBusBusy)
		bus.AssertNotCalled(t, "ReadFromAddr", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("data read", func(t *testing.T) {
		bus := new(MockI2CBus)
		sensor := newSensor(t, bus)
		bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{byte(RegTemperature)}).Return(nil).Once()
		bus.On("ReadFromAddr", mock.Anything, byte(0x48), mock.Anything).Return(nil, errors.New("nack")).Once()
		_, err := sensor.GetRawTemperature(ctx)
		assert.ErrorContains(t, err, "nack")
	})

	t.Run("wrong address", func(t *testing.T) {
		sensor := newSensor(t, NewNCT7717USimulator(), WithAddress(0x49))
		_, err := sensor.GetChipID(ctx)
		assert.ErrorIs(t, err, ErrNoAck)
	})

	t.Run("read only register", func(t *testing.T) {
		sensor := newSensor(t, NewNCT7717USimulator())
		err := sensor.WriteRegister(ctx, RegChipID, 0x01)
		assert.ErrorIs(t, err, ErrReadOnlyRegister)
	})
}

func TestNCT7717U_Temperature(t *testing.T) {
	tests := []struct {
		raw      int8
		expected float32
	}{
		{0, 0},
		{25, 25},
		{127, 127},
		{-1, -1},
		{-40, -40},
		{-128, -128},
	}
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()
	for _, test := range tests {
		t.Run(fmt.Sprint(test.raw), func(t *testing.T) {
			sim.SetTemperature(test.raw)
			raw, err := sensor.GetRawTemperature(ctx)
			require.NoError(t, err)
			assert.Equal(t, test.raw, raw)
			temp, err := sensor.GetTemperature(ctx)
			require.NoError(t, err)
			assert.Equal(t, test.expected, temp)
		})
	}
}

func TestNCT7717U_ConfigurationMask(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()
	for raw := 0; raw <= 0xFF; raw++ {
		sim.Poke(RegReadConfig, byte(raw))
		conf, err := sensor.GetConfiguration(ctx)
		require.NoError(t, err)
		assert.Equal(t, conf, conf&0xC1)
		assert.Equal(t, Config(raw)&0xC1, conf)
	}
}

func TestNCT7717U_SetConfiguration(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()

	require.NoError(t, sensor.SetConfiguration(ctx, ConfigStopMonitor|ConfigFaultQueue|0x02))
	assert.Equal(t, [][]byte{{0x09, 0x43}}, sim.Writes())
	conf, err := sensor.GetConfiguration(ctx)
	require.NoError(t, err)
	assert.Equal(t, ConfigStopMonitor|ConfigFaultQueue, conf)
	assert.True(t, conf.MonitoringStopped())
	assert.True(t, conf.FaultQueueEnabled())
	assert.False(t, conf.AlertMasked())
}

func TestNCT7717U_SetConversionRate(t *testing.T) {
	ctx := context.Background()
	for rate := 0; rate <= 0xFF; rate++ {
		bus := new(MockI2CBus)
		sensor := newSensor(t, bus)
		if rate <= 8 {
			bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{0x0A, byte(rate)}).Return(nil).Once()
			assert.NoError(t, sensor.SetConversionRate(ctx, ConversionRate(rate)))
			bus.AssertExpectations(t)
			continue
		}
		err := sensor.SetConversionRate(ctx, ConversionRate(rate))
		assert.ErrorIs(t, err, ErrOutOfRange)
		var rangeErr *RangeError
		require.ErrorAs(t, err, &rangeErr)
		assert.Equal(t, rate, rangeErr.Value)
		assert.Equal(t, 8, rangeErr.Max)
		bus.AssertNotCalled(t, "WriteToAddr", mock.Anything, mock.Anything, mock.Anything)
	}
}

func TestNCT7717U_ConversionRateMask(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()
	for raw := 0; raw <= 0xFF; raw++ {
		sim.Poke(RegReadConversionRate, byte(raw))
		rate, err := sensor.GetConversionRate(ctx)
		require.NoError(t, err)
		assert.True(t, rate <= 15, "rate %d", rate)
		assert.Equal(t, ConversionRate(raw&0x0F), rate)
	}
}

func TestNCT7717U_RejectionDiagnostics(t *testing.T) {
	rejected := []struct {
		name  string
		param string
		call  func(ctx context.Context, sensor *NCT7717U) error
	}{
		{"conversion rate 9", "conversion rate", func(ctx context.Context, sensor *NCT7717U) error {
			return sensor.SetConversionRate(ctx, 9)
		}},
		{"set data log 4", "data log index", func(ctx context.Context, sensor *NCT7717U) error {
			return sensor.SetDataLog(ctx, 4, 0x5A)
		}},
		{"get data log 0", "data log index", func(ctx context.Context, sensor *NCT7717U) error {
			_, err := sensor.GetDataLog(ctx, 0)
			return err
		}},
	}
	for _, op := range rejected {
		for _, debug := range []bool{true, false} {
			t.Run(fmt.Sprintf("%s debug %t", op.name, debug), func(t *testing.T) {
				var out bytes.Buffer
				logger := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
				sim := NewNCT7717USimulator()
				sensor := newSensor(t, sim, WithDebug(debug), WithLogger(logger))

				err := op.call(context.Background(), sensor)
				assert.ErrorIs(t, err, ErrOutOfRange)
				var rangeErr *RangeError
				require.ErrorAs(t, err, &rangeErr)
				assert.Equal(t, op.param, rangeErr.Param)
				assert.Empty(t, sim.Transactions())
				assert.Equal(t, debug, bytes.Contains(out.Bytes(), []byte("rejected parameter")))
				if debug {
					assert.Contains(t, out.String(), op.param)
				}
			})
		}
	}
}

func TestNCT7717U_DataLog(t *testing.T) {
	ctx := context.Background()
	for i := -1; i <= 5; i++ {
		t.Run(fmt.Sprintf("index %d", i), func(t *testing.T) {
			sim := NewNCT7717USimulator()
			sensor := newSensor(t, sim)
			value := byte(0xA0 + i)

			err := sensor.SetDataLog(ctx, i, value)
			if i < 1 || i > 3 {
				assert.ErrorIs(t, err, ErrOutOfRange)
				v, err := sensor.GetDataLog(ctx, i)
				assert.ErrorIs(t, err, ErrOutOfRange)
				assert.Zero(t, v)
				assert.Empty(t, sim.Transactions())
				return
			}
			require.NoError(t, err)
			reg := RegDataLog1 + Register(i-1)
			assert.Equal(t, [][]byte{{byte(reg), value}}, sim.Writes())
			assert.Equal(t, value, sim.Peek(reg))

			v, err := sensor.GetDataLog(ctx, i)
			require.NoError(t, err)
			assert.Equal(t, value, v)
		})
	}
}

func TestNCT7717U_AlertThreshold(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()

	require.NoError(t, sensor.SetAlertTemperature(ctx, -5))
	assert.Equal(t, [][]byte{{0x0B, 0xFB}}, sim.Writes())
	th, err := sensor.GetAlertTemperature(ctx)
	require.NoError(t, err)
	assert.Equal(t, int8(-5), th)
}

func TestNCT7717U_AlertStatus(t *testing.T) {
	ctx := context.Background()
	for raw := 0; raw <= 0xFF; raw++ {
		bus := new(MockI2CBus)
		sensor := newSensor(t, bus)
		expectRead(bus, RegAlertStatus, byte(raw))
		status, err := sensor.GetAlertStatus(ctx)
		require.NoError(t, err)
		expected := 0
		if raw&0x40 != 0 {
			expected = 1
		}
		assert.Equal(t, expected, status, "raw %#02x", raw)
	}
}

func TestNCT7717U_AlertStatusFollowsThreshold(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim, WithAlertPin(sim))
	ctx := context.Background()

	require.NoError(t, sensor.SetAlertTemperature(ctx, 30))
	sim.SetTemperature(30)
	status, err := sensor.GetAlertStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	asserted, err := sensor.AlertAsserted(ctx)
	require.NoError(t, err)
	assert.False(t, asserted)

	sim.SetTemperature(31)
	status, err = sensor.GetAlertStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, status)
	asserted, err = sensor.AlertAsserted(ctx)
	require.NoError(t, err)
	assert.True(t, asserted)

	require.NoError(t, sensor.SetConfiguration(ctx, ConfigAlertMask))
	asserted, err = sensor.AlertAsserted(ctx)
	require.NoError(t, err)
	assert.False(t, asserted)
}

func TestNCT7717U_AlertPinNotConnected(t *testing.T) {
	sensor := newSensor(t, NewNCT7717USimulator())
	_, err := sensor.AlertAsserted(context.Background())
	assert.ErrorIs(t, err, ErrNoAlertPin)
}

func TestNCT7717U_SetAlertMode(t *testing.T) {
	ctx := context.Background()
	for mode := 1; mode <= 0xFF; mode++ {
		sim := NewNCT7717USimulator()
		sensor := newSensor(t, sim)
		require.NoError(t, sensor.SetAlertMode(ctx, AlertMode(mode)))
		assert.Equal(t, [][]byte{{0xBF, 0x01}}, sim.Writes(), "mode %d", mode)
	}

	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	require.NoError(t, sensor.SetAlertMode(ctx, AlertModeInterrupt))
	assert.Equal(t, [][]byte{{0xBF, 0x00}, {0x21, 0x00}}, sim.Writes())
	mode, err := sensor.GetAlertMode(ctx)
	require.NoError(t, err)
	assert.Equal(t, AlertModeInterrupt, mode)
}

func TestNCT7717U_SetAlertModePartialFailure(t *testing.T) {
	bus := new(MockI2CBus)
	sensor := newSensor(t, bus)
	bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{0xBF, 0x00}).Return(nil).Once()
	bus.On("WriteToAddr", mock.Anything, byte(0x48), []byte{0x21, 0x00}).Return(thermal.ErrBusBusy).Once()

	err := sensor.SetAlertMode(context.Background(), AlertModeInterrupt)
	assert.ErrorIs(t, err, thermal.ErrBusBusy)
	assert.ErrorContains(t, err, "auxiliary register")
	bus.AssertExpectations(t)
}

func TestNCT7717U_OneShot(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()

	require.NoError(t, sensor.OneShotConversion(ctx))
	assert.Equal(t, 0, sim.OneShots())

	require.NoError(t, sensor.SetConfiguration(ctx, ConfigStopMonitor))
	require.NoError(t, sensor.OneShotConversion(ctx))
	assert.Equal(t, 1, sim.OneShots())
	assert.Equal(t, []byte{0x0F, 0x00}, sim.Writes()[2])
}

func TestNCT7717U_RoundTrip(t *testing.T) {
	ctx := context.Background()
	t.Run("same address", func(t *testing.T) {
		for _, reg := range []Register{RegDataLog1, RegDataLog2, RegDataLog3, RegAlertMode, RegAlertModeAux} {
			sim := NewNCT7717USimulator()
			sensor := newSensor(t, sim)
			for _, v := range []byte{0x00, 0x01, 0x5A, 0xFF} {
				require.NoError(t, sensor.WriteRegister(ctx, reg, v))
				got, err := sensor.ReadRegister(ctx, reg)
				require.NoError(t, err)
				assert.Equal(t, v, got, "register %s", reg)
			}
		}
	})
	t.Run("write alias", func(t *testing.T) {
		pairs := map[Register]Register{
			RegWriteConfig:         RegReadConfig,
			RegWriteConversionRate: RegReadConversionRate,
			RegWriteAlertThreshold: RegReadAlertThreshold,
		}
		for w, r := range pairs {
			sensor := newSensor(t, NewNCT7717USimulator())
			require.NoError(t, sensor.WriteRegister(ctx, w, 0x07))
			got, err := sensor.ReadRegister(ctx, r)
			require.NoError(t, err)
			assert.Equal(t, byte(0x07), got, "register %s", w)
		}
	})
}

func TestNCT7717U_SerializedTransactions(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()

	const workers = 8
	const reads = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		reg := RegChipID
		if w%2 == 0 {
			reg = RegTemperature
		}
		go func() {
			defer wg.Done()
			for i := 0; i < reads; i++ {
				_, err := sensor.ReadRegister(ctx, reg)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	txs := sim.Transactions()
	require.Len(t, txs, workers*reads*2)
	for i := 0; i < len(txs); i += 2 {
		require.True(t, txs[i].Write, "tx %d: %s", i, txs[i])
		require.False(t, txs[i+1].Write, "tx %d: %s", i+1, txs[i+1])
		switch Register(txs[i].Data[0]) {
		case RegChipID:
			assert.Equal(t, []byte{SimChipID}, txs[i+1].Data)
		case RegTemperature:
			assert.Equal(t, []byte{byte(SimPowerOnTemperature)}, txs[i+1].Data)
		}
	}
}

func TestNCT7717U_Status(t *testing.T) {
	sim := NewNCT7717USimulator()
	sensor := newSensor(t, sim)
	ctx := context.Background()
	sim.Poke(RegDataLog3, 0x33)
	sim.SetTemperature(-3)

	status, err := sensor.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0x50", status.ChipID)
	assert.Equal(t, "0x90", status.DeviceID)
	assert.Equal(t, int8(-3), status.Temperature)
	assert.Equal(t, int8(80), status.AlertThreshold)
	assert.Equal(t, 0, status.AlertStatus)
	assert.Equal(t, "interrupt", status.AlertMode)
	assert.Equal(t, "62.5ms", status.ConversionPeriod)
	assert.Equal(t, []int{0, 0, 0x33}, status.DataLog)

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_, err = sensor.Status(cctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConversionRate(t *testing.T) {
	tests := []struct {
		rate      ConversionRate
		frequency physic.Frequency
		period    time.Duration
	}{
		{Rate0_0625Hz, 62500 * physic.MicroHertz, 16 * time.Second},
		{Rate0_125Hz, 125 * physic.MilliHertz, 8 * time.Second},
		{Rate0_5Hz, 500 * physic.MilliHertz, 2 * time.Second},
		{Rate1Hz, physic.Hertz, time.Second},
		{Rate4Hz, 4 * physic.Hertz, 250 * time.Millisecond},
		{Rate16Hz, 16 * physic.Hertz, 62500 * time.Microsecond},
		{9, 0, 0},
	}
	for _, test := range tests {
		t.Run(fmt.Sprint(byte(test.rate)), func(t *testing.T) {
			assert.Equal(t, test.frequency, test.rate.Frequency())
			assert.Equal(t, test.period, test.rate.Period())
			assert.Equal(t, test.rate <= 8, test.rate.Valid())
		})
	}
}

func TestConfigString(t *testing.T) {
	assert.Equal(t, "0x00", Config(0).String())
	assert.Equal(t, "0xc1 [ALERT_MSK|STOP_MNT|EN_FAULTQ]", Config(0xC1).String())
	assert.Equal(t, "0x40 [STOP_MNT]", ConfigStopMonitor.String())
}

func TestRegisterString(t *testing.T) {
	assert.Equal(t, "temperature(0x00)", RegTemperature.String())
	assert.Equal(t, "alert_mode(0xbf)", RegAlertMode.String())
	assert.Equal(t, "0x10", Register(0x10).String())
}
