package validation

import "fmt"

// Room and username strings are embedded verbatim in store keys, so the
// rules below are what keep the key tuple encoding unambiguous: no
// separator bytes, no control bytes, bounded length.
const maxNameLen = 64

func checkName(kind, s string) error {
	if s == "" {
		return fmt.Errorf("%s must not be empty", kind)
	}
	if len(s) > maxNameLen {
		return fmt.Errorf("%s exceeds %d bytes", kind, maxNameLen)
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == ':' {
			return fmt.Errorf("%s must not contain ':'", kind)
		}
		if c < 0x20 || c == 0x7f {
			return fmt.Errorf("%s must not contain control bytes", kind)
		}
	}
	return nil
}

// RoomName validates a room name for use inside store keys.
func RoomName(s string) error { return checkName("room name", s) }

// Username validates a username for use inside store keys.
func Username(s string) error { return checkName("username", s) }
