package main

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownConsole = errors.New("listing: unknown console")

// Console identifies the target platform of a save archive. Each console
// fixes the byte order of its archive listing and region envelopes; the
// chunk interior keeps its own endian discipline regardless of console.
type Console int

const (
	Xbox360 Console = iota
	PS3
	RPCS3
	Vita
	PS4
	WiiU
	Switch
)

var consoleNames = map[Console]string{
	Xbox360: "xbox360",
	PS3:     "ps3",
	RPCS3:   "rpcs3",
	Vita:    "vita",
	PS4:     "ps4",
	WiiU:    "wiiu",
	Switch:  "switch",
}

func (c Console) String() string {
	if name, ok := consoleNames[c]; ok {
		return name
	}
	return fmt.Sprintf("console(%d)", int(c))
}

// LittleEndian reports whether the console's archive listing and region
// envelope integers are little-endian.
func (c Console) LittleEndian() bool {
	switch c {
	case Vita, PS4, Switch:
		return true
	default:
		return false
	}
}

func ParseConsole(s string) (Console, error) {
	for c, name := range consoleNames {
		if name == strings.ToLower(s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownConsole, s)
}

// newConsoleCursor wraps buf with the console's listing byte order applied.
func newConsoleCursor(buf []byte, c Console) *Cursor {
	cur := NewCursor(buf)
	if c.LittleEndian() {
		cur.SetLittleEndian()
	}
	return cur
}
