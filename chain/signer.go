package chain

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"math/big"

	starkcurve "github.com/consensys/gnark-crypto/ecc/stark-curve"
	"github.com/consensys/gnark-crypto/ecc/stark-curve/fr"
	"github.com/neotheprogramist/dojo/sayaerrors"
	"github.com/neotheprogramist/dojo/types"
)

// invokePrefix is the short string "invoke".
var invokePrefix = types.MustFelt("0x696e766f6b65")

// r and 1/s of a Stark signature must both fit in 251 bits.
var signatureBound = new(big.Int).Lsh(big.NewInt(1), 251)

// LocalSigner holds the account key in process and signs INVOKE v1 transactions with
// Stark curve ECDSA. Nonces are derived deterministically (RFC 6979, HMAC-SHA256).
type LocalSigner struct {
	key     *big.Int
	pub     starkcurve.G1Affine
	chainID types.Felt
	maxFee  types.Felt
}

var _ Signer = (*LocalSigner)(nil)

func NewLocalSigner(privateKey, chainID, maxFee types.Felt) (*LocalSigner, error) {
	d := privateKey.BigInt()
	if d.Sign() == 0 || d.Cmp(fr.Modulus()) >= 0 {
		return nil, sayaerrors.ErrCInvalidPrivateKey
	}
	s := &LocalSigner{key: d, chainID: chainID, maxFee: maxFee}
	_, g := starkcurve.Generators()
	s.pub.ScalarMultiplication(&g, d)
	return s, nil
}

// PublicKey is the x coordinate of the public point, as stored by account contracts.
func (s *LocalSigner) PublicKey() types.Felt {
	b := s.pub.X.Bytes()
	return types.FeltFromBytes(b[:])
}

// InvokeV1Hash is the INVOKE v1 transaction hash an account's __validate__ checks.
func InvokeV1Hash(sender types.Felt, calldata []types.Felt, maxFee, chainID, nonce types.Felt) types.Felt {
	return PedersenArray([]types.Felt{
		invokePrefix,
		types.FeltOne,
		sender,
		types.FeltZero,
		PedersenArray(calldata),
		maxFee,
		chainID,
		nonce,
	})
}

func (s *LocalSigner) Sign(_ context.Context, sender types.Felt, calldata []types.Felt, nonce types.Felt) ([]types.Felt, types.Felt, error) {
	hash := InvokeV1Hash(sender, calldata, s.maxFee, s.chainID, nonce)
	r, sig := s.SignHash(hash)
	return []types.Felt{r, sig}, s.maxFee, nil
}

// SignHash signs a message hash and returns (r, s).
func (s *LocalSigner) SignHash(hash types.Felt) (types.Felt, types.Felt) {
	n := fr.Modulus()
	z := hash.BigInt()
	_, g := starkcurve.Generators()
	nonces := newNonceGenerator(s.key, z, n)
	for {
		k := nonces.next()

		var point starkcurve.G1Affine
		point.ScalarMultiplication(&g, k)
		r := point.X.BigInt(new(big.Int))
		r.Mod(r, n)
		if r.Sign() == 0 || r.Cmp(signatureBound) >= 0 {
			continue
		}

		// w = k / (z + r*d), the signature carries 1/w
		t := new(big.Int).Mul(r, s.key)
		t.Add(t, z).Mod(t, n)
		if t.Sign() == 0 {
			continue
		}
		w := new(big.Int).ModInverse(t, n)
		w.Mul(w, k).Mod(w, n)
		if w.Sign() == 0 || w.Cmp(signatureBound) >= 0 {
			continue
		}
		sig := new(big.Int).ModInverse(w, n)
		return types.FeltFromBytes(r.Bytes()), types.FeltFromBytes(sig.Bytes())
	}
}

// nonceGenerator is the HMAC-DRBG of RFC 6979 section 3.2 over SHA-256.
type nonceGenerator struct {
	k, v []byte
	q    *big.Int
	rlen int
}

func newNonceGenerator(key, hash, q *big.Int) *nonceGenerator {
	rlen := (q.BitLen() + 7) / 8
	x := key.FillBytes(make([]byte, rlen))
	h1 := bits2int(hash.FillBytes(make([]byte, 32)), q.BitLen())
	h1.Mod(h1, q)
	h := h1.FillBytes(make([]byte, rlen))

	g := &nonceGenerator{
		k:    make([]byte, sha256.Size),
		v:    bytes.Repeat([]byte{0x01}, sha256.Size),
		q:    q,
		rlen: rlen,
	}
	g.k = hmacSHA256(g.k, g.v, []byte{0x00}, x, h)
	g.v = hmacSHA256(g.k, g.v)
	g.k = hmacSHA256(g.k, g.v, []byte{0x01}, x, h)
	g.v = hmacSHA256(g.k, g.v)
	return g
}

// next returns the next candidate in [1, q). Every call advances the generator, so a
// candidate rejected by the caller is never returned again.
func (g *nonceGenerator) next() *big.Int {
	for {
		var t []byte
		for len(t) < g.rlen {
			g.v = hmacSHA256(g.k, g.v)
			t = append(t, g.v...)
		}
		k := bits2int(t[:g.rlen], g.q.BitLen())
		g.k = hmacSHA256(g.k, g.v, []byte{0x00})
		g.v = hmacSHA256(g.k, g.v)
		if k.Sign() > 0 && k.Cmp(g.q) < 0 {
			return k
		}
	}
}

func bits2int(b []byte, qlen int) *big.Int {
	v := new(big.Int).SetBytes(b)
	if excess := len(b)*8 - qlen; excess > 0 {
		v.Rsh(v, uint(excess))
	}
	return v
}

func hmacSHA256(key []byte, parts ...[]byte) []byte {
	m := hmac.New(sha256.New, key)
	for _, p := range parts {
		m.Write(p)
	}
	return m.Sum(nil)
}
