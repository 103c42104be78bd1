package sessionhost

// incompleteTail returns the index where a trailing incomplete ANSI escape
// sequence or truncated UTF-8 rune starts, or -1 when the chunk can be sent
// as-is. Bytes from that index on must be held back and prepended to the next
// read so renderers never see a split sequence.
//
// Sequences considered:
//   - CSI: ESC [ ... final byte in 0x40..0x7E
//   - OSC: ESC ] ... BEL or ESC \
//   - DCS: ESC P ... ESC \
//   - lone ESC at the end of the chunk
//
// Only the last 256 bytes are scanned; a sequence longer than that is broken
// anyway.
func incompleteTail(data []byte) int {
	if len(data) == 0 {
		return -1
	}

	start := 0
	if len(data) > 256 {
		start = len(data) - 256
	}

	for i := len(data) - 1; i >= start; i-- {
		if data[i] != 0x1b {
			continue
		}
		rest := data[i:]
		if len(rest) < 2 {
			return i
		}
		switch rest[1] {
		case '[':
			if len(rest) == 2 {
				return i
			}
			terminated := false
			for _, c := range rest[2:] {
				if c >= 0x40 && c <= 0x7e {
					terminated = true
					break
				}
			}
			if !terminated {
				return i
			}
		case ']':
			terminated := false
			for j := 2; j < len(rest); j++ {
				if rest[j] == 0x07 {
					terminated = true
					break
				}
				if rest[j] == 0x1b && j+1 < len(rest) && rest[j+1] == '\\' {
					terminated = true
					break
				}
			}
			if !terminated {
				return i
			}
		case 'P':
			terminated := false
			for j := 2; j < len(rest); j++ {
				if rest[j] == 0x1b && j+1 < len(rest) && rest[j+1] == '\\' {
					terminated = true
					break
				}
			}
			if !terminated {
				return i
			}
		}
	}

	// Truncated multi-byte UTF-8 at the very end.
	last := data[len(data)-1]
	if last >= 0xc0 {
		return len(data) - 1
	}
	if len(data) >= 2 {
		if b := data[len(data)-2]; b >= 0xe0 && last >= 0x80 && last < 0xc0 {
			return len(data) - 2
		}
	}
	if len(data) >= 3 {
		if b := data[len(data)-3]; b >= 0xf0 && data[len(data)-2] >= 0x80 && last >= 0x80 {
			return len(data) - 3
		}
	}
	return -1
}
