// Package topic implements MQTT 3.1.1 topic name/filter validation and
// client-side wildcard matching. The client facade applies the validators
// before building PUBLISH and SUBSCRIBE packets; the Router uses Match to
// dispatch inbound PUBLISHes.
package topic

import (
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// Default limits, used when a client option leaves the corresponding field
// at zero.
const (
	DefaultMaxTopicLength = 65535
	DefaultMaxPayloadSize = 268435455
	MaxClientIDLength     = 23
)

// Limit returns configured if positive, else fallback.
func Limit(configured, fallback int) int {
	if configured > 0 {
		return configured
	}
	return fallback
}

// ValidatePublish validates a topic name used on the publish path: no
// wildcards, no NUL, valid UTF-8, within maxLen.
func ValidatePublish(name string, maxLen int) error {
	if name == "" {
		return errors.New("topic: publish topic must not be empty")
	}
	if len(name) > maxLen {
		return errors.Newf("topic: length %d exceeds maximum %d", len(name), maxLen)
	}
	if strings.ContainsAny(name, "+#") {
		return errors.New("topic: publish topic must not contain wildcard characters")
	}
	if strings.IndexByte(name, 0) >= 0 {
		return errors.New("topic: publish topic must not contain a NUL byte")
	}
	if !utf8.ValidString(name) {
		return errors.New("topic: publish topic must be valid UTF-8")
	}
	if strings.HasPrefix(name, "$") {
		return errors.New("topic: publish topic must not begin with '$'")
	}
	return nil
}

// ValidateFilter validates a topic filter used on the subscribe path:
// wildcards permitted only in terminal or whole-segment position, '#' only
// as the final segment, no NUL, valid UTF-8, within maxLen.
func ValidateFilter(filter string, maxLen int) error {
	if filter == "" {
		return errors.New("topic: subscribe filter must not be empty")
	}
	if len(filter) > maxLen {
		return errors.Newf("topic: length %d exceeds maximum %d", len(filter), maxLen)
	}
	if strings.IndexByte(filter, 0) >= 0 {
		return errors.New("topic: subscribe filter must not contain a NUL byte")
	}
	if !utf8.ValidString(filter) {
		return errors.New("topic: subscribe filter must be valid UTF-8")
	}

	segments := strings.Split(filter, "/")
	for i, seg := range segments {
		if strings.Contains(seg, "+") && seg != "+" {
			return errors.New("topic: '+' must occupy its entire level")
		}
		if strings.Contains(seg, "#") {
			if seg != "#" {
				return errors.New("topic: '#' must occupy its entire level")
			}
			if i != len(segments)-1 {
				return errors.New("topic: '#' must be the last level")
			}
		}
	}
	return nil
}

// ValidatePayload checks payload size against maxSize.
func ValidatePayload(payload []byte, maxSize int) error {
	if len(payload) > maxSize {
		return errors.Newf("topic: payload size %d exceeds maximum %d", len(payload), maxSize)
	}
	return nil
}

// ValidateClientID enforces the MQTT 3.1.1 recommended character set
// (ASCII letters/digits, length <= MaxClientIDLength) unless empty, which
// defers assignment to the server.
func ValidateClientID(id string) error {
	if id == "" {
		return nil
	}
	if len(id) > MaxClientIDLength {
		return errors.Newf("topic: client id length %d exceeds recommended maximum %d", len(id), MaxClientIDLength)
	}
	for _, r := range id {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		default:
			return errors.Newf("topic: client id character %q outside the MQTT 3.1.1 recommended set", r)
		}
	}
	return nil
}

// Match reports whether topic matches filter, applying MQTT wildcard rules
// ('+' single level, '#' multi-level-terminal) and the MQTT-4.7.2-1
// exclusion of '$'-prefixed topics from wildcard-initial filters.
func Match(filter, name string) bool {
	if len(name) > 0 && name[0] == '$' && len(filter) > 0 && (filter[0] == '+' || filter[0] == '#') {
		return false
	}

	fIdx, tIdx := 0, 0
	fLen, tLen := len(filter), len(name)

	for fIdx <= fLen {
		var fLevel string
		var fNext int
		if idx := strings.IndexByte(filter[fIdx:], '/'); idx >= 0 {
			fNext = fIdx + idx
			fLevel = filter[fIdx:fNext]
		} else {
			fNext = fLen
			fLevel = filter[fIdx:]
		}

		if fLevel == "#" {
			return true
		}
		if tIdx > tLen {
			return false
		}

		var tLevel string
		var tNext int
		if idx := strings.IndexByte(name[tIdx:], '/'); idx >= 0 {
			tNext = tIdx + idx
			tLevel = name[tIdx:tNext]
		} else {
			tNext = tLen
			tLevel = name[tIdx:]
		}

		if fLevel != "+" && fLevel != tLevel {
			return false
		}

		if fNext == fLen {
			fIdx = fLen + 1
		} else {
			fIdx = fNext + 1
		}
		if tNext == tLen {
			tIdx = tLen + 1
		} else {
			tIdx = tNext + 1
		}
	}
	return tIdx > tLen
}
