// Package timeutil collects the timestamp, codec, and deadline-parsing
// helpers shared across the core: RFC3339 formatting, base36 encoding,
// content hashing, and relative/natural-language duration parsing.
package timeutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/en"
)

// FormatRFC3339 renders t as a Z-suffixed RFC3339 timestamp in UTC.
func FormatRFC3339(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ParseRFC3339 parses an RFC3339 timestamp, accepting any zone offset and
// truncating (never rounding) fractional seconds below the second.
func ParseRFC3339(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	return t.UTC().Truncate(time.Second), nil
}

const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// EncodeBase36 converts data to a base36 string padded/truncated to length,
// keeping the least-significant digits when truncation is required.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var b strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		b.WriteByte(chars[i])
	}
	str := b.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// DecodeBase36 parses a base36 string back into a big integer.
func DecodeBase36(s string) (*big.Int, error) {
	result := new(big.Int)
	base := big.NewInt(36)
	for _, r := range s {
		idx := strings.IndexRune(base36Alphabet, r)
		if idx < 0 {
			return nil, fmt.Errorf("invalid base36 digit %q", r)
		}
		result.Mul(result, base)
		result.Add(result, big.NewInt(int64(idx)))
	}
	return result, nil
}

// ContentHash returns the hex-encoded SHA-256 digest of the given fields,
// joined with NUL separators. Empty strings are hashed as-is.
func ContentHash(fields ...string) string {
	h := sha256.New()
	for i, f := range fields {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(f))
	}
	return hex.EncodeToString(h.Sum(nil))
}

var compactDurationRe = regexp.MustCompile(`^([+-])(\d+)([hdwmy])$`)

// ParseCompactDuration parses relative offsets like "+6h", "-1d", "+2w",
// "+3m" (months), "+1y" (years) relative to now.
func ParseCompactDuration(input string, now time.Time) (time.Time, error) {
	m := compactDurationRe.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return time.Time{}, fmt.Errorf("invalid compact duration %q", input)
	}
	n, err := strconv.Atoi(m[2])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid compact duration %q: %w", input, err)
	}
	if m[1] == "-" {
		n = -n
	}
	switch m[3] {
	case "h":
		return now.Add(time.Duration(n) * time.Hour), nil
	case "d":
		return now.AddDate(0, 0, n), nil
	case "w":
		return now.AddDate(0, 0, n*7), nil
	case "m":
		return now.AddDate(0, n, 0), nil
	case "y":
		return now.AddDate(n, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("invalid compact duration unit %q", m[3])
	}
}

// ParseNaturalLanguage parses English relative-date phrases such as
// "tomorrow", "next monday", or "in 3 days" relative to now.
func ParseNaturalLanguage(input string, now time.Time) (time.Time, error) {
	w := when.New(nil)
	w.Add(en.All...)
	r, err := w.Parse(input, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q: %w", input, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("could not parse deadline phrase %q", input)
	}
	return r.Time, nil
}
