package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/blesense/internal/bledb"
)

// BLEDescriptor wraps a discovered go-ble descriptor
type BLEDescriptor struct {
	uuid    string
	BLEDesc *ble.Descriptor
}

func newDescriptor(d *ble.Descriptor) *BLEDescriptor {
	return &BLEDescriptor{
		uuid:    bledb.NormalizeUUID(d.UUID.String()),
		BLEDesc: d,
	}
}

func (d *BLEDescriptor) UUID() string {
	return d.uuid
}
