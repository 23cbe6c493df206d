package common

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
)

var (
	ErrIDSyntax     = errors.New("invalid id syntax")
	ErrIDOutOfRange = errors.New("id out of range")
)

// TraceID is an unsigned 64 or 128 bit trace identifier. Zero means absent.
type TraceID struct {
	High uint64
	Low  uint64
}

func TraceIDFromUint64(low uint64) TraceID {
	return TraceID{Low: low}
}

func (t TraceID) IsZero() bool {
	return t.High == 0 && t.Low == 0
}

func (t TraceID) Is128() bool {
	return t.High != 0
}

func (t TraceID) Big() *big.Int {

	b := new(big.Int).SetUint64(t.High)
	b.Lsh(b, 64)
	return b.Or(b, new(big.Int).SetUint64(t.Low))
}

// String returns the decimal representation.
func (t TraceID) String() string {

	if t.High == 0 {
		return strconv.FormatUint(t.Low, 10)
	}
	return t.Big().String()
}

func (t TraceID) Hex() string {
	return fmt.Sprintf("%016x%016x", t.High, t.Low)
}

func (t TraceID) HighHex() string {
	return fmt.Sprintf("%016x", t.High)
}

func parseError(s string, err error) error {

	var numErr *strconv.NumError
	if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
		return fmt.Errorf("%w: %q", ErrIDOutOfRange, s)
	}
	return fmt.Errorf("%w: %q", ErrIDSyntax, s)
}

// ParseTraceID parses s in the given base and rejects values outside [0, 2^bits-1].
// bits must be 64 or 128.
func ParseTraceID(s string, base, bits int) (TraceID, error) {

	if s == "" || s[0] == '+' {
		return TraceID{}, fmt.Errorf("%w: %q", ErrIDSyntax, s)
	}
	if s[0] == '-' {
		return TraceID{}, fmt.Errorf("%w: %q", ErrIDOutOfRange, s)
	}

	if bits <= 64 {
		low, err := strconv.ParseUint(s, base, 64)
		if err != nil {
			return TraceID{}, parseError(s, err)
		}
		return TraceID{Low: low}, nil
	}

	b, ok := new(big.Int).SetString(s, base)
	if !ok {
		return TraceID{}, fmt.Errorf("%w: %q", ErrIDSyntax, s)
	}
	if b.Sign() < 0 || b.BitLen() > bits {
		return TraceID{}, fmt.Errorf("%w: %q", ErrIDOutOfRange, s)
	}

	mask := new(big.Int).SetUint64(^uint64(0))
	low := new(big.Int).And(b, mask).Uint64()
	high := new(big.Int).Rsh(b, 64).Uint64()
	return TraceID{High: high, Low: low}, nil
}

func TraceIDFromHex(s string) (TraceID, error) {
	return ParseTraceID(s, 16, 128)
}

// ParseSpanID parses an unsigned 64 bit span id in the given base.
func ParseSpanID(s string, base int) (uint64, error) {

	if s == "" || s[0] == '+' {
		return 0, fmt.Errorf("%w: %q", ErrIDSyntax, s)
	}
	if s[0] == '-' {
		return 0, fmt.Errorf("%w: %q", ErrIDOutOfRange, s)
	}

	id, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return 0, parseError(s, err)
	}
	return id, nil
}

func TraceIDUint64ToHex(id uint64) string {
	return TraceIDFromUint64(id).Hex()
}

func TraceIDHexToUint64(s string) uint64 {

	id, err := TraceIDFromHex(s)
	if err != nil {
		return 0
	}
	return id.Low
}

func SpanIDUint64ToHex(id uint64) string {
	return fmt.Sprintf("%016x", id)
}

func SpanIDHexToUint64(s string) uint64 {

	id, err := ParseSpanID(s, 16)
	if err != nil {
		return 0
	}
	return id
}
