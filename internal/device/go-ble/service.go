package goble

import (
	"github.com/go-ble/ble"

	"github.com/srg/blesense/internal/bledb"
)

// BLEService wraps a discovered go-ble service
type BLEService struct {
	uuid   string
	BLESvc *ble.Service
}

func newService(s *ble.Service) *BLEService {
	return &BLEService{
		uuid:   bledb.NormalizeUUID(s.UUID.String()),
		BLESvc: s,
	}
}

func (s *BLEService) UUID() string {
	return s.uuid
}
