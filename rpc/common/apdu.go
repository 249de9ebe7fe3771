package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// ISO 7816-4 status words used by the relay
const (
	SWSuccess uint16 = 0x9000
	// SWUnknown ("no precise diagnosis") is answered whenever the relay has no response
	SWUnknown uint16 = 0x6F00
	// SWConditionsNotSatisfied is answered by the responder when it rejects a request
	SWConditionsNotSatisfied uint16 = 0x6985
)

// StatusWord returns the two byte encoding of sw
func StatusWord(sw uint16) []byte {
	return []byte{byte(sw >> 8), byte(sw)}
}

// TrailingStatusWord returns the last two bytes of resp as status word
func TrailingStatusWord(resp []byte) (uint16, bool) {
	if len(resp) < 2 {
		return 0, false
	}
	return uint16(resp[len(resp)-2])<<8 | uint16(resp[len(resp)-1]), true
}

// FormatAPDU returns b as upper case hex with a space between bytes
func FormatAPDU(b []byte) string {
	if len(b) == 0 {
		return "<empty>"
	}
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(fmt.Sprintf("%02X", c))
	}
	return sb.String()
}

// ParseAPDU parses hex input. Spaces, colons and an optional 0x prefix are ignored.
func ParseAPDU(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.NewReplacer(" ", "", ":", "", "\t", "", "\n", "").Replace(s)

	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex APDU: %w", err)
	}
	return b, nil
}
