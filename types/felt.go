package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"slices"
	"strings"

	"github.com/holiman/uint256"
	"github.com/neotheprogramist/dojo/sayaerrors"
)

// FeltPrime is the Starknet field modulus 2^251 + 17*2^192 + 1.
var FeltPrime = uint256.MustFromHex("0x800000000000011000000000000000000000000000000000000000000000001")

// Felt is a Starknet field element. The zero value is 0.
type Felt struct {
	v uint256.Int
}

var (
	FeltZero = Felt{}
	FeltOne  = NewFelt(1)
)

func NewFelt(u uint64) Felt {
	var f Felt
	f.v.SetUint64(u)
	return f
}

// FeltFromBytes interprets b as a big-endian integer reduced modulo FeltPrime.
func FeltFromBytes(b []byte) Felt {
	var f Felt
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	f.v.SetBytes(b)
	f.v.Mod(&f.v, FeltPrime)
	return f
}

// FeltFromString parses a 0x-prefixed hex or a decimal string. Values must be below FeltPrime.
func FeltFromString(s string) (Felt, error) {
	s = strings.TrimSpace(s)
	b := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		hex := s[2:]
		if hex == "" {
			hex = "0"
		}
		_, ok = b.SetString(hex, 16)
	} else {
		_, ok = b.SetString(s, 10)
	}
	if !ok || b.Sign() < 0 {
		return Felt{}, fmt.Errorf("%w: %q", sayaerrors.ErrIMalformedFelt, s)
	}
	u, overflow := uint256.FromBig(b)
	if overflow || u.Cmp(FeltPrime) >= 0 {
		return Felt{}, fmt.Errorf("%w: %q out of range", sayaerrors.ErrIMalformedFelt, s)
	}
	return Felt{v: *u}, nil
}

// FeltFromShortString encodes an ASCII string of at most 31 bytes as a felt, as Cairo
// short strings are (chain ids, transaction prefixes).
func FeltFromShortString(s string) (Felt, error) {
	if len(s) > 31 {
		return Felt{}, fmt.Errorf("%w: short string %q longer than 31 bytes", sayaerrors.ErrIMalformedFelt, s)
	}
	return FeltFromBytes([]byte(s)), nil
}

// MustFelt is FeltFromString for constants.
func MustFelt(s string) Felt {
	f, err := FeltFromString(s)
	if err != nil {
		panic(err)
	}
	return f
}

func (f Felt) Add(o Felt) Felt {
	var out Felt
	out.v.AddMod(&f.v, &o.v, FeltPrime)
	return out
}

func (f Felt) AddUint64(u uint64) Felt {
	return f.Add(NewFelt(u))
}

func (f Felt) Cmp(o Felt) int    { return f.v.Cmp(&o.v) }
func (f Felt) Equal(o Felt) bool { return f.v.Eq(&o.v) }
func (f Felt) IsZero() bool      { return f.v.IsZero() }
func (f Felt) IsUint64() bool    { return f.v.IsUint64() }
func (f Felt) Uint64() uint64    { return f.v.Uint64() }
func (f Felt) Bytes32() [32]byte { return f.v.Bytes32() }
func (f Felt) BigInt() *big.Int  { return f.v.ToBig() }
func (f Felt) Hex() string       { return f.v.Hex() }
func (f Felt) String() string    { return f.v.Hex() }
func (f Felt) Decimal() string   { return f.v.Dec() }

func (f Felt) MarshalText() ([]byte, error) {
	return []byte(f.Hex()), nil
}

func (f *Felt) UnmarshalText(b []byte) error {
	parsed, err := FeltFromString(string(b))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Felt) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Hex())
}

// UnmarshalJSON accepts a hex or decimal string, or a bare JSON number.
func (f *Felt) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		return f.UnmarshalText([]byte(s))
	}
	return f.UnmarshalText(b)
}

// SortFelts sorts in ascending numeric order, in place.
func SortFelts(fs []Felt) {
	slices.SortFunc(fs, func(a, b Felt) int { return a.Cmp(b) })
}

// FeltsToStrings renders felts as hex strings, as used in log lines.
func FeltsToStrings(fs []Felt) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Hex()
	}
	return out
}
