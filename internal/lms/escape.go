package lms

import "strings"

const upperHex = "0123456789ABCDEF"

func isUnreserved(b byte) bool {
	switch {
	case 'a' <= b && b <= 'z', 'A' <= b && b <= 'Z', '0' <= b && b <= '9':
		return true
	case b == '-', b == '.', b == '_', b == '~':
		return true
	}
	return false
}

// Escape percent-encodes every byte of raw outside A-Z a-z 0-9 - . _ ~ so the
// result travels as a single protocol token.
func Escape(raw string) string {
	n := 0
	for i := 0; i < len(raw); i++ {
		if !isUnreserved(raw[i]) {
			n++
		}
	}
	if n == 0 {
		return raw
	}

	var sb strings.Builder
	sb.Grow(len(raw) + 2*n)

	for i := 0; i < len(raw); i++ {
		b := raw[i]
		if isUnreserved(b) {
			sb.WriteByte(b)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperHex[b>>4])
		sb.WriteByte(upperHex[b&0x0f])
	}

	return sb.String()
}

func unhex(b byte) (byte, bool) {
	switch {
	case '0' <= b && b <= '9':
		return b - '0', true
	case 'a' <= b && b <= 'f':
		return b - 'a' + 10, true
	case 'A' <= b && b <= 'F':
		return b - 'A' + 10, true
	}
	return 0, false
}

// Unescape decodes %XX sequences. Malformed sequences are copied through
// unchanged and '+' stays a plus sign.
func Unescape(token string) string {
	if strings.IndexByte(token, '%') < 0 {
		return token
	}

	out := make([]byte, 0, len(token))

	for i := 0; i < len(token); i++ {
		b := token[i]
		if b == '%' && i+2 < len(token) {
			hi, ok1 := unhex(token[i+1])
			lo, ok2 := unhex(token[i+2])
			if ok1 && ok2 {
				out = append(out, hi<<4|lo)
				i += 2
				continue
			}
		}
		out = append(out, b)
	}

	return string(out)
}

// escapeWords escapes each space separated word of a command on its own, so
// "mixer volume" goes out as two tokens.
func escapeWords(command string) string {
	words := strings.Fields(command)
	for i, w := range words {
		words[i] = Escape(w)
	}
	return strings.Join(words, " ")
}
