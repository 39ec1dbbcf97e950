package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/blesense/internal/bledb"
)

// BLECharacteristic wraps a discovered go-ble characteristic
type BLECharacteristic struct {
	uuid    string
	key     string // service/characteristic, unique within a session
	BLEChar *ble.Characteristic
}

func newCharacteristic(svc *BLEService, c *ble.Characteristic) *BLECharacteristic {
	uuid := bledb.NormalizeUUID(c.UUID.String())
	return &BLECharacteristic{
		uuid:    uuid,
		key:     svc.uuid + "/" + uuid,
		BLEChar: c,
	}
}

func (c *BLECharacteristic) UUID() string {
	return c.uuid
}

func (c *BLECharacteristic) CanNotify() bool {
	return c.BLEChar.Property&ble.CharNotify != 0
}

func (c *BLECharacteristic) CanIndicate() bool {
	return c.BLEChar.Property&ble.CharIndicate != 0
}

func (c *BLECharacteristic) CanRead() bool {
	return c.BLEChar.Property&ble.CharRead != 0
}
