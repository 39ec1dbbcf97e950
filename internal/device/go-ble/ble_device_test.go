package goble

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/srg/blesense/internal/device"
)

type MockPairingChecker struct {
	mock.Mock
}

func (m *MockPairingChecker) Paired(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func platformWith(client GATTClient, dialErr error, pairing PairingChecker) *Platform {
	p := NewPlatform(quietLogger(), pairing)
	p.dial = func(context.Context, string) (GATTClient, error) {
		if dialErr != nil {
			return nil, dialErr
		}
		return client, nil
	}
	return p
}

func TestPlatformOpen(t *testing.T) {
	tests := []struct {
		name       string
		paired     bool
		pairingErr error
		wantPaired bool
	}{
		{name: "paired device", paired: true, wantPaired: true},
		{name: "unpaired device", paired: false, wantPaired: false},
		{name: "pairing state unavailable", pairingErr: errors.New("no system bus"), wantPaired: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &MockGATTClient{}
			client.On("Name").Return("Thermo-Hygrometer")
			client.On("CancelConnection").Return(nil)

			pairing := &MockPairingChecker{}
			pairing.On("Paired", mock.Anything, "AA:BB:CC:DD:EE:FF").Return(tt.paired, tt.pairingErr)

			session, err := platformWith(client, nil, pairing).Open(context.Background(), "AA:BB:CC:DD:EE:FF")
			require.NoError(t, err)
			defer session.Close()

			assert.Equal(t, "AA:BB:CC:DD:EE:FF", session.ID())
			assert.Equal(t, "Thermo-Hygrometer", session.Name())
			assert.Equal(t, tt.wantPaired, session.Paired())
			assert.True(t, session.Connected(), "a freshly opened session MUST be connected")
			pairing.AssertExpectations(t)
		})
	}
}

func TestPlatformOpenDialFailure(t *testing.T) {
	_, err := platformWith(nil, errors.New("device not connected"), nil).Open(context.Background(), "AA:BB:CC:DD:EE:FF")

	require.Error(t, err)
	assert.ErrorIs(t, err, device.ErrNotConnected, "dial errors MUST be normalized")
	assert.Contains(t, err.Error(), `address "AA:BB:CC:DD:EE:FF"`)
}

func TestPlatformHostDeviceFactoryFailure(t *testing.T) {
	original := DeviceFactory
	defer func() { DeviceFactory = original }()
	DeviceFactory = func() (ble.Device, error) { return nil, errors.New("adapter missing") }

	p := NewPlatform(quietLogger(), nil)
	_, err := p.Open(context.Background(), "AA:BB:CC:DD:EE:FF")

	assert.ErrorContains(t, err, "failed to create BLE device: adapter missing")
	assert.NoError(t, p.Stop(), "Stop without a host device MUST be a no-op")
}

func TestNormalizeError(t *testing.T) {
	assert.Nil(t, NormalizeError(nil))
	assert.ErrorIs(t, NormalizeError(errors.New("Bluetooth is turned off")), device.ErrUnreachable)
	assert.ErrorIs(t, NormalizeError(errors.New("connection is not initialized")), device.ErrNotConnected)

	var cerr *device.CommunicationError
	require.ErrorAs(t, NormalizeError(ble.ErrInsuffEnc), &cerr)
	assert.Equal(t, device.StatusAccessDenied, cerr.Status)

	plain := errors.New("boom")
	assert.Same(t, plain, NormalizeError(plain), "unknown errors MUST pass through")
}
