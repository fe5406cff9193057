package qos1

import "github.com/cockroachdb/errors"

func errDuplicatePacketID(id uint16) error {
	return errors.Newf("qos1: packet id %d is already in flight", id)
}

func errRejectedByBroker(id uint16) error {
	return errors.Newf("qos1: broker rejected packet id %d", id)
}
