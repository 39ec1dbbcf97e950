package main

import (
	"bytes"

	"github.com/sirupsen/logrus"

	"github.com/srg/blesense/internal/device"
	"github.com/srg/blesense/internal/testutils"
	"github.com/srg/blesense/pkg/config"
)

// CommandTestSuite extends MockPeripheralSuite with command testing utilities.
// The command under test talks to the suite's FakePlatform.
type CommandTestSuite struct {
	testutils.MockPeripheralSuite

	originalPlatformFactory func(config.PlatformConfig, *logrus.Logger) (device.Platform, func(), error)
	Stderr                  *bytes.Buffer
}

func (s *CommandTestSuite) SetupTest() {
	s.MockPeripheralSuite.SetupTest()

	s.originalPlatformFactory = PlatformFactory
	PlatformFactory = func(config.PlatformConfig, *logrus.Logger) (device.Platform, func(), error) {
		return s.Platform, func() {}, nil
	}
}

func (s *CommandTestSuite) TearDownTest() {
	PlatformFactory = s.originalPlatformFactory
	s.MockPeripheralSuite.TearDownTest()
}

// ExecuteCommand runs the root command with args and returns its stdout.
// Logs go to s.Stderr.
func (s *CommandTestSuite) ExecuteCommand(args ...string) (string, error) {
	out := new(bytes.Buffer)
	s.Stderr = new(bytes.Buffer)

	root := newRootCmd()
	root.SetOut(out)
	root.SetErr(s.Stderr)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}
