package main

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/testutils"
)

type CommandsTestSuite struct {
	CommandTestSuite
}

func TestCommandsSuite(t *testing.T) {
	suite.Run(t, new(CommandsTestSuite))
}

func (s *CommandsTestSuite) TestInfoJSON() {
	// GOAL: Verify info connects, reads every device information string and prints JSON
	//
	// TEST SCENARIO: run info --json → output matches profile → session closed

	out, err := s.ExecuteCommand("info", testutils.DefaultDeviceID, "--json", "--timeout", "200ms")
	s.Require().NoError(err, "info MUST succeed against the sensor profile")

	testutils.NewJSONAsserter(s.T()).Assert(out, `{
		"device_id": "AA:BB:CC:DD:EE:FF",
		"name": "Thermo-Hygrometer",
		"manufacturer": "Acme",
		"model_number": "TH-1",
		"serial_number": "SN007",
		"firmware": "1.2.3",
		"hardware": "revB",
		"battery_percent": 87
	}`)
	s.True(s.Platform.Session().Closed(), "info MUST close the session before exiting")
}

func (s *CommandsTestSuite) TestInfoText() {
	out, err := s.ExecuteCommand("info", testutils.DefaultDeviceID, "--timeout", "200ms")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, `
Device:        AA:BB:CC:DD:EE:FF
Name:          Thermo-Hygrometer
Manufacturer:  Acme
Model:         TH-1
Serial:        SN007
Hardware:      revB
Firmware:      1.2.3
Battery:       87%
`)
}

func (s *CommandsTestSuite) TestInfoUnknownDevice() {
	_, err := s.ExecuteCommand("info", "11:22:33:44:55:66", "--timeout", "200ms")

	s.Require().Error(err)
	s.Equal(`device "11:22:33:44:55:66" not found; check the device address`, FormatUserError(err))
}

func (s *CommandsTestSuite) TestMonitorStreamsReadings() {
	// GOAL: Verify monitor prints connection transitions and decoded readings as JSON lines
	//
	// TEST SCENARIO: start monitor → wait for subscriptions → push temperature → duration elapses → disconnect

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.Eventually(func() bool {
			sess := s.Platform.Session()
			return sess != nil && sess.HasHandler("2A6F")
		}, s.TestTimeout, 5*time.Millisecond, "humidity subscription MUST be established")

		// let the session reach the connected state
		time.Sleep(50 * time.Millisecond)
		s.Platform.Session().Notify("2A6E", []byte{0x29, 0x09})
	}()

	out, err := s.ExecuteCommand("monitor", testutils.DefaultDeviceID, "--json", "--duration", "400ms", "--timeout", "200ms")
	wg.Wait()
	s.Require().NoError(err, "monitor MUST stop cleanly when the duration elapses")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	s.Require().Len(lines, 3, "output MUST hold connected, temperature and disconnected events: %q", out)

	ja := testutils.NewJSONAsserter(s.T())
	ja.Assert(lines[0], `{"type": "connection_status_changed", "is_connected": true}`)
	ja.Assert(lines[1], `{"type": "temperature_changed", "temperature": 23.45}`)
	ja.Assert(lines[2], `{"type": "connection_status_changed", "is_connected": false}`)
}

func (s *CommandsTestSuite) TestMonitorText() {
	out, err := s.ExecuteCommand("monitor", testutils.DefaultDeviceID, "--duration", "50ms", "--timeout", "200ms")
	s.Require().NoError(err)

	testutils.NewTextAsserter(s.T()).Assert(out, `
Connecting to AA:BB:CC:DD:EE:FF...
connected
Monitoring Thermo-Hygrometer (AA:BB:CC:DD:EE:FF)
disconnected
Stopped after 0s
`)
}

func (s *CommandsTestSuite) TestMonitorPartialSetupKeepsStreaming() {
	// GOAL: Verify a humidity setup failure after temperature succeeded does not abort monitoring
	//
	// TEST SCENARIO: humidity subscribe fails → connect reports failure in Partial state → command keeps monitoring

	s.Platform.Fail("write_client_config:2a6f:notify", errors.New("gatt: write failed"))

	out, err := s.ExecuteCommand("monitor", testutils.DefaultDeviceID, "--duration", "50ms", "--timeout", "200ms")
	s.Require().NoError(err, "a partial setup MUST keep the monitor running")
	s.Contains(out, "Monitoring Thermo-Hygrometer (AA:BB:CC:DD:EE:FF)")
}

func (s *CommandsTestSuite) TestMonitorConnectionLost() {
	go func() {
		s.Eventually(func() bool {
			sess := s.Platform.Session()
			return sess != nil && sess.HasHandler("2A6F")
		}, s.TestTimeout, 5*time.Millisecond)
		time.Sleep(50 * time.Millisecond)
		s.Platform.Session().SetConnected(false)
	}()

	_, err := s.ExecuteCommand("monitor", testutils.DefaultDeviceID, "--timeout", "200ms", "--duration", "5s")
	s.ErrorIs(err, ErrConnectionLost, "a platform-side drop MUST end the command")
}

func (s *CommandsTestSuite) TestMonitorUnpaired() {
	s.Platform = s.WithPeripheral().Unpaired().Build()

	_, err := s.ExecuteCommand("monitor", testutils.DefaultDeviceID, "--timeout", "200ms")
	s.ErrorIs(err, device.ErrNotPaired)
	s.Equal("device is not paired; pair it with the operating system first", FormatUserError(err))
}

func (s *CommandsTestSuite) TestConfigFileAndFlags() {
	path := filepath.Join(s.T().TempDir(), "blesense.yaml")
	s.Require().NoError(os.WriteFile(path, []byte("monitor:\n  step_timeout: 0s\n"), 0o600))

	_, err := s.ExecuteCommand("info", testutils.DefaultDeviceID, "--config", path)
	s.ErrorContains(err, "step_timeout must be positive")

	_, err = s.ExecuteCommand("info", testutils.DefaultDeviceID, "--log-level", "loud")
	s.ErrorContains(err, "invalid log level: loud")
}

func TestFormatUserError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unreachable", device.ErrUnreachable, "device is unreachable; check that it is switched on and in range"},
		{"busy", device.ErrOperationInProgress, "another connect or disconnect is in progress"},
		{"missing service", &device.NotFoundError{Resource: "service", Names: []string{"EnvSensing"}},
			`service "EnvSensing" not found; the device does not look like an environmental sensor`},
		{"timeout", &device.CommunicationError{Op: "discover services", Status: device.StatusTimeout},
			"timed out waiting for the device (discover services); try a larger --timeout"},
		{"access denied", &device.CommunicationError{Op: "read 2a19", Status: device.StatusAccessDenied},
			"access denied by the device (read 2a19); re-pair it and retry"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUserError(tt.err))
		})
	}
}

func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v1.2.0", formatVersion("1.2.0"))
	assert.Equal(t, "dev", formatVersion("dev"))
}
