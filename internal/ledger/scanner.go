package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Record grammar limits. A record is a configured three-letter currency code
// that does not follow an ASCII letter or digit, then up to maxSeparators of
// ' ', '\t', ':' or '=', then an amount of the form D+(.D+)?.
const (
	maxSeparators     = 4
	maxIntegerDigits  = 15
	maxFractionDigits = 8

	// Window bounds the bytes needed to decide whether a record starts at a
	// position, lookahead included.
	Window = 64
)

// Scanner recognizes records across a sequence of chunks. Positions closer
// than Window to the end of the buffered data are held back until more data
// arrives or Flush is called, so results do not depend on chunk size.
type Scanner struct {
	codes   map[string]struct{}
	prev    byte
	pending []byte
}

// NewScanner builds a scanner recognizing the given currency codes.
func NewScanner(codes []string) *Scanner {
	set := make(map[string]struct{}, len(codes))
	for _, code := range codes {
		if len(code) == 3 {
			set[code] = struct{}{}
		}
	}
	return &Scanner{codes: set}
}

// SetBoundary seeds the byte preceding the first byte that will be fed. A run
// resuming at offset B passes the byte at B-1.
func (s *Scanner) SetBoundary(prev byte) {
	s.prev = prev
}

// Pending reports how many fed bytes are held back for the next call.
func (s *Scanner) Pending() int {
	return len(s.pending)
}

// Reset discards held-back bytes and the boundary byte.
func (s *Scanner) Reset() {
	s.prev = 0
	s.pending = s.pending[:0]
}

// Feed folds every record decidable from the held-back bytes plus chunk into b.
// It returns the number of records folded.
func (s *Scanner) Feed(chunk []byte, b Balances, now time.Time) int {
	return s.scan(chunk, b, now, false)
}

// Flush folds the remaining held-back bytes at end of input.
func (s *Scanner) Flush(b Balances, now time.Time) int {
	return s.scan(nil, b, now, true)
}

func (s *Scanner) scan(chunk []byte, b Balances, now time.Time, final bool) int {
	buf := chunk
	if len(s.pending) > 0 {
		buf = append(s.pending, chunk...)
	}

	folded := 0
	i := 0
	for i < len(buf) {
		if !final && i+Window > len(buf) {
			break
		}
		prev := s.prev
		if i > 0 {
			prev = buf[i-1]
		}
		code, amount, n := s.match(buf, i, prev)
		if n == 0 {
			i++
			continue
		}
		if amount.IsPositive() {
			b.Fold(code, amount, now)
			folded++
		}
		i += n
	}

	if i > 0 {
		s.prev = buf[i-1]
	}
	rest := buf[i:]
	if cap(s.pending) < len(rest) {
		s.pending = make([]byte, 0, Window)
	}
	s.pending = append(s.pending[:0], rest...)
	return folded
}

// match returns the currency, amount and byte length of a record starting at i,
// or n == 0 when none starts there.
func (s *Scanner) match(buf []byte, i int, prev byte) (string, decimal.Decimal, int) {
	if isAlnum(prev) || i+3 > len(buf) || !isUpper(buf[i]) {
		return "", decimal.Decimal{}, 0
	}
	code := string(buf[i : i+3])
	if _, ok := s.codes[code]; !ok {
		return "", decimal.Decimal{}, 0
	}

	j := i + 3
	for sep := 0; j < len(buf) && isSeparator(buf[j]); sep++ {
		if sep == maxSeparators {
			return "", decimal.Decimal{}, 0
		}
		j++
	}

	start := j
	for j < len(buf) && isDigit(buf[j]) && j-start <= maxIntegerDigits {
		j++
	}
	if j == start || j-start > maxIntegerDigits {
		return "", decimal.Decimal{}, 0
	}
	if j+1 < len(buf) && buf[j] == '.' && isDigit(buf[j+1]) {
		fracStart := j + 1
		j = fracStart
		for j < len(buf) && isDigit(buf[j]) && j-fracStart <= maxFractionDigits {
			j++
		}
		if j-fracStart > maxFractionDigits {
			return "", decimal.Decimal{}, 0
		}
	}

	amount, err := decimal.NewFromString(string(buf[start:j]))
	if err != nil {
		return "", decimal.Decimal{}, 0
	}
	return code, amount, j - i
}

// Accumulate folds every record in data into b as one complete input.
func Accumulate(codes []string, data []byte, b Balances, now time.Time) int {
	s := NewScanner(codes)
	return s.Feed(data, b, now) + s.Flush(b, now)
}

func isSeparator(c byte) bool { return c == ' ' || c == '\t' || c == ':' || c == '=' }

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

func isAlnum(c byte) bool { return isDigit(c) || isUpper(c) || (c >= 'a' && c <= 'z') }
