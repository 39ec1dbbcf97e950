package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/srg/blesense/internal/catalog"
	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/testutils"
)

type SetupTestSuite struct {
	testutils.MockPeripheralSuite
	ctx     context.Context
	session *testutils.FakeSession
	catalog *catalog.Catalog
	setup   *catalog.Setup
}

func (s *SetupTestSuite) SetupTest() {
	s.MockPeripheralSuite.SetupTest()
	s.ctx = context.Background()

	sess, err := s.Platform.Open(s.ctx, testutils.DefaultDeviceID)
	s.Require().NoError(err)
	s.session = sess.(*testutils.FakeSession)
	s.catalog = catalog.New(sess, s.Logger, 50*time.Millisecond)
	s.setup = catalog.NewSetup(s.catalog)
	s.catalog.DiscoverServices(s.ctx)
}

func (s *SetupTestSuite) service(name string) *catalog.Service {
	svc, ok := s.catalog.Service(name)
	s.Require().True(ok, "service %s MUST be discovered", name)
	return svc
}

func (s *SetupTestSuite) TestEnableSubscribesAndRoutesNotifications() {
	// GOAL: Verify a successful enable writes notify before the handler is live
	//
	// TEST SCENARIO: enable Temperature → calls in order → notification reaches handler

	var got []byte
	sub, err := s.setup.Enable(s.ctx, s.service("EnvSensing"), "Temperature", func(data []byte) { got = data })
	s.Require().NoError(err)
	s.True(sub.Active())
	s.Equal("Temperature", sub.Characteristic.Name)

	s.Equal([]string{
		"discover_services",
		"discover_characteristics:181a",
		"discover_descriptors:2a6e",
		"write_client_config:2a6e:notify",
	}, s.session.Calls())
	s.Equal(device.ClientConfigNotify, s.session.ClientConfig("2a6e"))

	s.True(s.session.Notify("2a6e", []byte{0x29, 0x09}))
	s.Equal([]byte{0x29, 0x09}, got)
}

func (s *SetupTestSuite) TestEnableFailuresRegisterNothing() {
	// GOAL: Verify no handler is registered when any step fails
	//
	// TEST SCENARIO: inject a failure per step → typed error → zero handlers

	tests := []struct {
		name  string
		key   string
		err   error
		check func(err error)
	}{
		{
			name: "characteristic discovery error reads as missing",
			key:  "discover_characteristics:181a",
			err:  errors.New("gatt: unlikely error"),
			check: func(err error) {
				s.ErrorIs(err, device.ErrCharacteristicMissing)
			},
		},
		{
			name: "descriptor discovery",
			key:  "discover_descriptors:2a6e",
			err:  errors.New("insufficient authentication"),
			check: func(err error) {
				var descErr *device.DescriptorDiscoveryError
				s.Require().ErrorAs(err, &descErr)
				s.Equal(device.StatusAccessDenied, descErr.Status)
				s.Equal(device.StatusAccessDenied, device.StatusOf(err))
			},
		},
		{
			name: "client configuration write",
			key:  "write_client_config:2a6e:notify",
			err:  errors.New("gatt: write failed"),
			check: func(err error) {
				s.Equal(device.StatusProtocolError, device.StatusOf(err))
				s.Contains(err.Error(), "enable notifications on Temperature")
			},
		},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Platform.Fail(tt.key, tt.err)
			defer s.Platform.Heal(tt.key)

			sub, err := s.setup.Enable(s.ctx, s.service("EnvSensing"), "Temperature", func([]byte) {})

			s.Nil(sub)
			s.Require().Error(err)
			tt.check(err)
			s.Zero(s.session.HandlerCount(), "handler MUST not be registered on failure")
		})
	}
}

func (s *SetupTestSuite) TestEnableMissingCharacteristic() {
	_, err := s.setup.Enable(s.ctx, s.service("EnvSensing"), "Pressure", func([]byte) {})

	var nf *device.NotFoundError
	s.Require().ErrorAs(err, &nf)
	s.Equal([]string{"EnvSensing", "Pressure"}, nf.Names)
	s.Equal(`characteristic "Pressure" not found in service "EnvSensing"`, err.Error())
}

func (s *SetupTestSuite) TestEnableNotifyUnsupported() {
	_, err := s.setup.Enable(s.ctx, s.service("DeviceInformation"), "FirmwareRevisionString", func([]byte) {})

	s.ErrorIs(err, device.ErrNotifyUnsupported)
	s.Zero(s.session.HandlerCount())
	s.NotContains(s.session.Calls(), "write_client_config:2a26:notify", "MUST not touch the descriptor")
}

func (s *SetupTestSuite) TestEnableCharacteristicDiscoveryTimeout() {
	s.Platform.Delay("discover_characteristics:181a", time.Minute)

	_, err := s.setup.Enable(s.ctx, s.service("EnvSensing"), "Temperature", func([]byte) {})

	s.Equal(device.StatusTimeout, device.StatusOf(err), "timeout MUST not be reported as a missing characteristic")
}

func (s *SetupTestSuite) TestEnableOnStaleService() {
	svc := s.service("EnvSensing")
	s.catalog.Clear()

	_, err := s.setup.Enable(s.ctx, svc, "Temperature", func([]byte) {})
	s.ErrorIs(err, catalog.ErrStaleAttribute)
}

func (s *SetupTestSuite) TestDisableIsIdempotentAndBestEffort() {
	// GOAL: Verify disable always releases even when the device refuses the write
	//
	// TEST SCENARIO: enable → make writes of none fail → disable twice → handler gone, handle released once

	sub, err := s.setup.Enable(s.ctx, s.service("EnvSensing"), "Humidity", func([]byte) {})
	s.Require().NoError(err)

	s.Platform.Fail("write_client_config:2a6f:none", errors.New("gatt: write failed"))

	s.setup.Disable(s.ctx, sub)
	s.setup.Disable(s.ctx, sub)
	s.setup.Disable(s.ctx, nil)

	s.False(sub.Active())
	s.False(s.session.HasHandler("2a6f"))
	s.Equal(1, s.session.Released("2a6f"))
	s.Contains(s.Logs(), "Failed to disable notifications")

	s.catalog.Clear()
	s.Equal(1, s.session.Released("2a6f"), "Clear MUST not release a disabled subscription again")
}

func TestSetupTestSuite(t *testing.T) {
	suite.Run(t, new(SetupTestSuite))
}
