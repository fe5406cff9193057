package session

import "github.com/cockroachdb/errors"

var errNotConnected = errors.New("session: not connected")
