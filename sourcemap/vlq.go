package sourcemap

import "fmt"

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

const (
	vlqBaseShift       = 5
	vlqBase            = 1 << vlqBaseShift // 32
	vlqBaseMask        = vlqBase - 1       // 0b11111
	vlqContinuationBit = vlqBase
)

var base64Values [256]int8

func init() {
	for i := range base64Values {
		base64Values[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		base64Values[base64Chars[i]] = int8(i)
	}
}

// decodeVLQ reads one signed base64 VLQ value starting at pos and returns it
// together with the position of the next unread byte.
func decodeVLQ(s string, pos int) (value int, next int, err error) {
	result := 0
	shift := 0
	for {
		if pos >= len(s) {
			return 0, pos, fmt.Errorf("unterminated VLQ sequence")
		}
		digit := base64Values[s[pos]]
		if digit < 0 {
			return 0, pos, fmt.Errorf("invalid VLQ character %q", s[pos])
		}
		pos++
		result += (int(digit) & vlqBaseMask) << shift
		if int(digit)&vlqContinuationBit == 0 {
			break
		}
		shift += vlqBaseShift
	}
	// lowest bit carries the sign
	if result&1 != 0 {
		return -(result >> 1), pos, nil
	}
	return result >> 1, pos, nil
}

// encodeVLQ writes one signed value in base64 VLQ form. The consumer only
// decodes; encoding exists for building map fixtures in tests.
func encodeVLQ(value int) string {
	vlq := value << 1
	if value < 0 {
		vlq = (-value << 1) | 1
	}
	var out []byte
	for {
		digit := vlq & vlqBaseMask
		vlq >>= vlqBaseShift
		if vlq > 0 {
			digit |= vlqContinuationBit
		}
		out = append(out, base64Chars[digit])
		if vlq == 0 {
			return string(out)
		}
	}
}
