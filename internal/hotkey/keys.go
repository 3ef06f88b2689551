package hotkey

import (
	"fmt"
	"strings"
)

// Key is a Linux input event key code (input-event-codes.h).
type Key uint16

// Key codes the daemon references directly.
const (
	KeyA          Key = 30
	KeyLeftShift  Key = 42
	KeyZ          Key = 44
	KeyV          Key = 47
	KeyRightShift Key = 54
	KeyLeftMeta   Key = 125
	KeyRightMeta  Key = 126
)

// keyNames maps config key names to their event codes. Names follow the
// kernel constants with the KEY_ prefix dropped and lowercased.
var keyNames = map[string]Key{
	"esc": 1,
	"1":   2, "2": 3, "3": 4, "4": 5, "5": 6,
	"6": 7, "7": 8, "8": 9, "9": 10, "0": 11,
	"minus": 12, "equal": 13, "backspace": 14, "tab": 15,
	"q": 16, "w": 17, "e": 18, "r": 19, "t": 20, "y": 21,
	"u": 22, "i": 23, "o": 24, "p": 25,
	"leftbrace": 26, "rightbrace": 27, "enter": 28, "leftctrl": 29,
	"a": 30, "s": 31, "d": 32, "f": 33, "g": 34, "h": 35,
	"j": 36, "k": 37, "l": 38,
	"semicolon": 39, "apostrophe": 40, "grave": 41, "leftshift": 42,
	"backslash": 43,
	"z": 44, "x": 45, "c": 46, "v": 47, "b": 48, "n": 49, "m": 50,
	"comma": 51, "dot": 52, "slash": 53, "rightshift": 54,
	"leftalt": 56, "space": 57, "capslock": 58,
	"f1": 59, "f2": 60, "f3": 61, "f4": 62, "f5": 63,
	"f6": 64, "f7": 65, "f8": 66, "f9": 67, "f10": 68,
	"f11": 87, "f12": 88,
	"rightctrl": 97, "rightalt": 100,
	"leftmeta": 125, "rightmeta": 126,
}

// codeNames is the reverse of keyNames, for logging.
var codeNames = func() map[Key]string {
	m := make(map[Key]string, len(keyNames))
	for name, code := range keyNames {
		m[code] = name
	}
	return m
}()

// ParseKey resolves a config key name to its event code. Names are matched
// case-insensitively and an optional KEY_ prefix is accepted, so "leftmeta",
// "LeftMeta" and "KEY_LEFTMETA" all resolve to 125.
func ParseKey(name string) (Key, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.TrimPrefix(n, "key_")
	if code, ok := keyNames[n]; ok {
		return code, nil
	}
	return 0, fmt.Errorf("unknown key name %q", name)
}

// String returns the config name of the key, or its numeric code if the key
// is outside the known table.
func (k Key) String() string {
	if name, ok := codeNames[k]; ok {
		return name
	}
	return fmt.Sprintf("key(%d)", uint16(k))
}
