package ackwait

import "github.com/cockroachdb/errors"

func errConnectRefused(code uint8) error {
	return errors.Newf("ackwait: broker refused connect, return code %d", code)
}

func errSubscribeRefused(packetID uint16) error {
	return errors.Newf("ackwait: broker refused one or more subscriptions for packet id %d", packetID)
}
