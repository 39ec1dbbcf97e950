package testutils

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
)

// Identity of the default fake peripheral.
const (
	DefaultDeviceID   = "AA:BB:CC:DD:EE:FF"
	DefaultDeviceName = "Thermo-Hygrometer"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
	Logs   *bytes.Buffer
}

// NewTestHelper creates a test helper whose logger writes into Logs.
func NewTestHelper(t *testing.T) *TestHelper {
	logs := &bytes.Buffer{}
	logger := logrus.New()
	logger.SetOutput(logs)
	logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	return &TestHelper{
		T:      t,
		Logger: logger,
		Logs:   logs,
	}
}

func CreateMockPeripheralDevice() *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder()
}

func CreateMockPeripheralDeviceFromJSON(jsonStrFmt string, args ...interface{}) *PeripheralDeviceBuilder {
	return NewPeripheralDeviceBuilder().FromJSON(jsonStrFmt, args...)
}

// CreateSensorDevice creates the default environmental sensor: temperature and
// humidity under Environmental Sensing, device information strings and a
// battery level of 87%.
func CreateSensorDevice() *PeripheralDeviceBuilder {
	return CreateMockPeripheralDeviceFromJSON(`{
		"services": [
			{
				"uuid": "181A",
				"characteristics": [
					{ "uuid": "2A6E", "properties": "read,notify", "value": [0, 0] },
					{ "uuid": "2A6F", "properties": "read,notify", "value": [0, 0] }
				]
			},
			{
				"uuid": "180A",
				"characteristics": [
					{ "uuid": "2A29", "properties": "read", "value": [65, 99, 109, 101] },
					{ "uuid": "2A24", "properties": "read", "value": [84, 72, 45, 49] },
					{ "uuid": "2A25", "properties": "read", "value": [83, 78, 48, 48, 55] },
					{ "uuid": "2A26", "properties": "read", "value": [49, 46, 50, 46, 51] },
					{ "uuid": "2A27", "properties": "read", "value": [114, 101, 118, 66] }
				]
			},
			{
				"uuid": "180F",
				"characteristics": [
					{ "uuid": "2A19", "properties": "read,notify", "value": [87] }
				]
			}
		]
	}`)
}
