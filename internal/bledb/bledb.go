// Package bledb maps Bluetooth SIG assigned numbers to human-readable names.
//
// Two names are kept per entry: the SIG display name ("Environmental Sensing") and
// the short identifier ("EnvSensing") that the rest of the module uses to look
// attributes up by name.
package bledb

import "strings"

// sigBaseSuffix is the tail of the Bluetooth SIG base UUID 0000xxxx-0000-1000-8000-00805f9b34fb.
const sigBaseSuffix = "00001000800000805f9b34fb"

type entry struct {
	name  string
	ident string
}

var services = map[string]entry{
	"1800": {"Generic Access", "GenericAccess"},
	"1801": {"Generic Attribute", "GenericAttribute"},
	"1809": {"Health Thermometer", "HealthThermometer"},
	"180a": {"Device Information", "DeviceInformation"},
	"180d": {"Heart Rate", "HeartRate"},
	"180f": {"Battery Service", "Battery"},
	"181a": {"Environmental Sensing", "EnvSensing"},
}

var characteristics = map[string]entry{
	"2a00": {"Device Name", "DeviceName"},
	"2a01": {"Appearance", "Appearance"},
	"2a05": {"Service Changed", "ServiceChanged"},
	"2a19": {"Battery Level", "BatteryLevel"},
	"2a1c": {"Temperature Measurement", "TemperatureMeasurement"},
	"2a1d": {"Temperature Type", "TemperatureType"},
	"2a24": {"Model Number String", "ModelNumberString"},
	"2a25": {"Serial Number String", "SerialNumberString"},
	"2a26": {"Firmware Revision String", "FirmwareRevisionString"},
	"2a27": {"Hardware Revision String", "HardwareRevisionString"},
	"2a28": {"Software Revision String", "SoftwareRevisionString"},
	"2a29": {"Manufacturer Name String", "ManufacturerNameString"},
	"2a37": {"Heart Rate Measurement", "HeartRateMeasurement"},
	"2a38": {"Body Sensor Location", "BodySensorLocation"},
	"2a6e": {"Temperature", "Temperature"},
	"2a6f": {"Humidity", "Humidity"},
}

var descriptors = map[string]entry{
	"2900": {"Characteristic Extended Properties", "ExtendedProperties"},
	"2901": {"Characteristic User Descriptor", "UserDescription"},
	"2902": {"Client Characteristic Configuration", "ClientCharacteristicConfiguration"},
	"2904": {"Characteristic Presentation Format", "PresentationFormat"},
	"290c": {"Environmental Sensing Measurement", "EnvSensingMeasurement"},
}

// NormalizeUUID converts a UUID to its canonical lookup form: lowercase, no
// dashes, braces or 0x prefix, and SIG-based UUIDs shortened to 16 bits.
func NormalizeUUID(uuid string) string {
	u := strings.ToLower(strings.TrimSpace(uuid))
	u = strings.Trim(u, "{}")
	u = strings.TrimPrefix(u, "0x")
	u = strings.ReplaceAll(u, "-", "")

	switch {
	case len(u) == 32 && strings.HasPrefix(u, "0000") && strings.HasSuffix(u, sigBaseSuffix):
		return u[4:8]
	case len(u) == 8 && strings.HasPrefix(u, "0000"):
		return u[4:]
	}
	return u
}

// LookupService returns the SIG name of a service, or "" if unknown.
func LookupService(uuid string) string {
	return services[NormalizeUUID(uuid)].name
}

// LookupCharacteristic returns the SIG name of a characteristic, or "" if unknown.
func LookupCharacteristic(uuid string) string {
	return characteristics[NormalizeUUID(uuid)].name
}

// LookupDescriptor returns the SIG name of a descriptor, or "" if unknown.
func LookupDescriptor(uuid string) string {
	return descriptors[NormalizeUUID(uuid)].name
}

// ServiceIdent returns the short identifier of a service. Unknown services are
// identified by their normalized UUID.
func ServiceIdent(uuid string) string {
	return ident(services, uuid)
}

// CharacteristicIdent returns the short identifier of a characteristic. Unknown
// characteristics are identified by their normalized UUID.
func CharacteristicIdent(uuid string) string {
	return ident(characteristics, uuid)
}

func ident(table map[string]entry, uuid string) string {
	n := NormalizeUUID(uuid)
	if e, ok := table[n]; ok {
		return e.ident
	}
	return n
}
