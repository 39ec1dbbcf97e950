package testutils

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
)

// MockPeripheralSuite provides a reusable test suite backed by a FakePlatform.
//
// Basic usage (automatic setup with the default environmental sensor):
//
//	type MonitorSuite struct {
//	    testutils.MockPeripheralSuite
//	}
//
//	func TestMonitorSuite(t *testing.T) {
//	    suite.Run(t, new(MonitorSuite))
//	}
//
// Custom device profile usage:
//
//	func (s *HeartRateSuite) SetupTest() {
//	    s.WithPeripheral().
//	        WithService("180D").
//	        WithCharacteristic("2A37", "notify", nil)
//
//	    s.MockPeripheralSuite.SetupTest() // Call parent last to apply configuration
//	}
type MockPeripheralSuite struct {
	suite.Suite

	// Core test utilities
	Helper *TestHelper
	Logger *logrus.Logger

	TestTimeout time.Duration // Default bound for waiting on asynchronous effects

	// Mock peripheral configuration
	PeripheralBuilder *PeripheralDeviceBuilder
	Platform          *FakePlatform
}

// SetupSuite initializes the test suite.
// Called once before all tests in the suite.
func (s *MockPeripheralSuite) SetupSuite() {
	s.TestTimeout = 5 * time.Second
}

// SetupTest builds the fake platform before each test.
// Called before each test method.
func (s *MockPeripheralSuite) SetupTest() {
	s.Helper = NewTestHelper(s.T())
	s.Logger = s.Helper.Logger

	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = CreateSensorDevice()
	}
	s.Platform = s.PeripheralBuilder.Build()

	s.Logger.Debug("Test setup completed - ready for execution")
}

// TearDownTest resets the peripheral builder after each test.
func (s *MockPeripheralSuite) TearDownTest() {
	s.PeripheralBuilder = nil
	s.Platform = nil
}

// WithPeripheral returns the peripheral builder for fluent configuration.
// Use this method to configure custom device profiles in the test setup.
func (s *MockPeripheralSuite) WithPeripheral() *PeripheralDeviceBuilder {
	if s.PeripheralBuilder == nil {
		s.PeripheralBuilder = NewPeripheralDeviceBuilder()
	}
	return s.PeripheralBuilder
}

// Logs returns everything logged during the current test.
func (s *MockPeripheralSuite) Logs() string {
	return s.Helper.Logs.String()
}
