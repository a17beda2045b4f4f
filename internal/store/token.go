package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"fractalnote/internal/domain"
)

// Token is the version of a store: the modification time of its backing
// file in nanoseconds since the epoch. Any two reads that see the same token
// saw the same committed state.
type Token int64

// TokenFromTime converts a file modification time into a token
func TokenFromTime(t time.Time) Token {
	return Token(t.UnixNano())
}

// Time returns the modification time the token encodes
func (t Token) Time() time.Time {
	return time.Unix(0, int64(t)).UTC()
}

func (t Token) String() string {
	return strconv.FormatInt(int64(t), 10)
}

// ParseToken reads a token as printed by String
func ParseToken(s string) (Token, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, domain.InvalidArgumentf("version token %q: %v", s, err)
	}
	if v < 0 {
		return 0, domain.InvalidArgumentf("version token %q is negative", s)
	}
	return Token(v), nil
}

// MarshalText lets tokens travel in JSON and YAML as strings, since int64
// nanoseconds exceed what JavaScript numbers hold exactly.
func (t Token) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a token written by MarshalText
func (t *Token) UnmarshalText(b []byte) error {
	v, err := ParseToken(string(b))
	if err != nil {
		return fmt.Errorf("unmarshal token: %w", err)
	}
	*t = v
	return nil
}
