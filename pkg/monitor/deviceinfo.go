package monitor

import (
	"context"

	"github.com/srg/blesense/internal/catalog"
	"github.com/srg/blesense/internal/payload"
)

const (
	deviceInformationService   = "DeviceInformation"
	batteryService             = "Battery"
	batteryLevelCharacteristic = "BatteryLevel"
)

// DeviceInfo describes the connected device. Fields the device does not expose
// or that could not be read are empty.
type DeviceInfo struct {
	DeviceID       string `json:"device_id"`
	Name           string `json:"name"`
	Firmware       string `json:"firmware"`
	Hardware       string `json:"hardware"`
	Manufacturer   string `json:"manufacturer"`
	SerialNumber   string `json:"serial_number"`
	ModelNumber    string `json:"model_number"`
	BatteryPercent int    `json:"battery_percent"`
}

func (m *Monitor) deviceInfo(ctx context.Context) DeviceInfo {
	s := m.active
	if s == nil || !m.State().live() {
		return DeviceInfo{}
	}

	info := DeviceInfo{
		DeviceID: s.dev.ID(),
		Name:     s.dev.Name(),
	}

	if svc, ok := s.catalog.Service(deviceInformationService); ok {
		chars, _ := s.catalog.DiscoverCharacteristics(ctx, svc)
		info.Firmware = m.readString(ctx, s, chars, "FirmwareRevisionString")
		info.Hardware = m.readString(ctx, s, chars, "HardwareRevisionString")
		info.Manufacturer = m.readString(ctx, s, chars, "ManufacturerNameString")
		info.SerialNumber = m.readString(ctx, s, chars, "SerialNumberString")
		info.ModelNumber = m.readString(ctx, s, chars, "ModelNumberString")
		s.catalog.Release(chars...)
	} else {
		s.log.Debug("No device information service")
	}

	if svc, ok := s.catalog.Service(batteryService); ok {
		chars, _ := s.catalog.DiscoverCharacteristics(ctx, svc)
		if data, ok := m.read(ctx, s, chars, batteryLevelCharacteristic); ok {
			info.BatteryPercent = min(int(payload.BatteryLevel(data)), 100)
		}
		s.catalog.Release(chars...)
	}

	return info
}

func (m *Monitor) readString(ctx context.Context, s *session, chars []*catalog.Characteristic, name string) string {
	data, ok := m.read(ctx, s, chars, name)
	if !ok {
		return ""
	}
	return payload.String(data)
}

func (m *Monitor) read(ctx context.Context, s *session, chars []*catalog.Characteristic, name string) ([]byte, bool) {
	ch, ok := catalog.FindCharacteristic(chars, name)
	if !ok {
		s.log.WithField("characteristic", name).Debug("Characteristic not exposed")
		return nil, false
	}
	data, err := s.catalog.Read(ctx, ch)
	if err != nil {
		s.log.WithField("characteristic", name).WithError(err).Warn("Read failed")
		return nil, false
	}
	return data, true
}
