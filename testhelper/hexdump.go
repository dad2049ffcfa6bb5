package testhelper

import (
	"fmt"
	"strings"
)

// Hexdump formats data in the same format as the debugfs utility from
// e2fsprogs: octal addresses, hex data in 16-bit columns, an ASCII gutter,
// and all-zero lines collapsed to "*".
func Hexdump(data []byte) string {
	var sb strings.Builder
	lastOmitted := false
	for offset := 0; offset < len(data); offset += 16 {
		end := offset + 16
		if end > len(data) {
			end = len(data)
		}
		chunk := data[offset:end]

		allZero := true
		for _, b := range chunk {
			if b != 0 {
				allZero = false
				break
			}
		}
		if allZero {
			if !lastOmitted {
				sb.WriteString("*\n")
			}
			lastOmitted = true
			continue
		}
		lastOmitted = false

		fmt.Fprintf(&sb, "%04o  ", offset)
		for i := 0; i < 16; i++ {
			if i < len(chunk) {
				fmt.Fprintf(&sb, "%02X", chunk[i])
			} else {
				sb.WriteString("  ")
			}
			if i%2 == 1 {
				sb.WriteString(" ")
			}
		}
		sb.WriteString("  ")
		for _, b := range chunk {
			if b >= 0x20 && b < 0x7f {
				sb.WriteByte(b)
			} else {
				sb.WriteString(".")
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// DumpByteSlicesWithDiffs reports whether actual and expected differ and, if
// they do, hex-dumps actual followed by expected.
func DumpByteSlicesWithDiffs(actual, expected []byte) (bool, string) {
	if len(actual) == len(expected) {
		same := true
		for i := range actual {
			if actual[i] != expected[i] {
				same = false
				break
			}
		}
		if same {
			return false, ""
		}
	}
	return true, fmt.Sprintf("actual:\n%s\nexpected:\n%s", Hexdump(actual), Hexdump(expected))
}
