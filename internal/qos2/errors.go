package qos2

import "github.com/cockroachdb/errors"

func errDuplicatePacketID(id uint16) error {
	return errors.Newf("qos2: packet id %d is already in flight", id)
}
