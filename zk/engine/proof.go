package engine

import (
	"encoding/binary"
	"encoding/hex"
	"math/big"

	sdkerrors "cosmossdk.io/errors"
	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
)

// Compact point sizes (compressed BN254 affine encodings).
const (
	sizeG1     = bn254.SizeOfG1AffineCompressed // 32
	sizeG2     = bn254.SizeOfG2AffineCompressed // 64
	sizeScalar = fr.Bytes                       // 32

	proofWireVersion = 0x01
)

// Proof is the compact representation of a Groth16 proof: compressed curve
// points and 32-byte field-element public signals. This is the form that is
// persisted and submitted on-chain. Immutable once produced.
type Proof struct {
	CircuitName string

	// ID is a deterministic hash binding the proof to the exact inputs and
	// circuit artifacts that produced it.
	ID [32]byte

	A [sizeG1]byte // compressed G1
	B [sizeG2]byte // compressed G2
	C [sizeG1]byte // compressed G1

	PublicSignals [][sizeScalar]byte
}

// IDHex returns the proof identifier in hex.
func (p *Proof) IDHex() string {
	return hex.EncodeToString(p.ID[:])
}

// SignalInts returns the public-signal vector as big integers.
func (p *Proof) SignalInts() []*big.Int {
	out := make([]*big.Int, len(p.PublicSignals))
	for i := range p.PublicSignals {
		out[i] = new(big.Int).SetBytes(p.PublicSignals[i][:])
	}
	return out
}

// MarshalBinary encodes the proof in the fixed-order wire format:
// version, name, id, a, b, c, signal count, signals. The encoding is
// bit-exact reproducible from the expanded form.
func (p *Proof) MarshalBinary() ([]byte, error) {
	if len(p.CircuitName) > 255 {
		return nil, sdkerrors.Wrap(ErrMalformedProof, "circuit name too long")
	}
	if len(p.PublicSignals) > 1<<16-1 {
		return nil, sdkerrors.Wrap(ErrMalformedProof, "too many public signals")
	}

	size := 1 + 1 + len(p.CircuitName) + 32 + sizeG1 + sizeG2 + sizeG1 + 2 + len(p.PublicSignals)*sizeScalar
	out := make([]byte, 0, size)

	out = append(out, proofWireVersion)
	out = append(out, byte(len(p.CircuitName)))
	out = append(out, p.CircuitName...)
	out = append(out, p.ID[:]...)
	out = append(out, p.A[:]...)
	out = append(out, p.B[:]...)
	out = append(out, p.C[:]...)

	var count [2]byte
	binary.BigEndian.PutUint16(count[:], uint16(len(p.PublicSignals)))
	out = append(out, count[:]...)
	for i := range p.PublicSignals {
		out = append(out, p.PublicSignals[i][:]...)
	}
	return out, nil
}

// UnmarshalBinary decodes the wire format produced by MarshalBinary.
// Structural decoding failures are reported as ErrMalformedProof.
func (p *Proof) UnmarshalBinary(data []byte) error {
	if len(data) < 2 {
		return sdkerrors.Wrap(ErrMalformedProof, "truncated proof")
	}
	if data[0] != proofWireVersion {
		return sdkerrors.Wrapf(ErrMalformedProof, "unsupported wire version %d", data[0])
	}

	nameLen := int(data[1])
	offset := 2
	if len(data) < offset+nameLen+32+sizeG1+sizeG2+sizeG1+2 {
		return sdkerrors.Wrap(ErrMalformedProof, "truncated proof")
	}

	p.CircuitName = string(data[offset : offset+nameLen])
	offset += nameLen

	copy(p.ID[:], data[offset:])
	offset += 32
	copy(p.A[:], data[offset:])
	offset += sizeG1
	copy(p.B[:], data[offset:])
	offset += sizeG2
	copy(p.C[:], data[offset:])
	offset += sizeG1

	count := int(binary.BigEndian.Uint16(data[offset:]))
	offset += 2
	if len(data) != offset+count*sizeScalar {
		return sdkerrors.Wrapf(ErrMalformedProof, "signal section length %d, expected %d", len(data)-offset, count*sizeScalar)
	}

	p.PublicSignals = make([][sizeScalar]byte, count)
	for i := 0; i < count; i++ {
		copy(p.PublicSignals[i][:], data[offset:])
		offset += sizeScalar
	}
	return nil
}

// ExpandedProof is the big-integer affine form used for local verification.
// Conversion to and from the compact form is lossless and deterministic in
// both directions.
type ExpandedProof struct {
	CircuitName string
	ID          [32]byte

	Ax, Ay *big.Int

	// G2 coordinates over Fp2: X = Bx0 + Bx1*u, Y = By0 + By1*u.
	Bx0, Bx1, By0, By1 *big.Int

	Cx, Cy *big.Int

	PublicSignals []*big.Int
}

// Expand converts the compact proof to its big-integer affine form.
// A point that does not decode to a valid curve/subgroup element yields
// ErrInvalidProofPoint: the proof is structurally parseable but can never
// verify, so Verify treats this as a cryptographically invalid proof rather
// than an engine error.
func (p *Proof) Expand() (*ExpandedProof, error) {
	var a, c bn254.G1Affine
	var b bn254.G2Affine

	if _, err := a.SetBytes(p.A[:]); err != nil {
		return nil, sdkerrors.Wrapf(ErrInvalidProofPoint, "point a: %v", err)
	}
	if _, err := b.SetBytes(p.B[:]); err != nil {
		return nil, sdkerrors.Wrapf(ErrInvalidProofPoint, "point b: %v", err)
	}
	if _, err := c.SetBytes(p.C[:]); err != nil {
		return nil, sdkerrors.Wrapf(ErrInvalidProofPoint, "point c: %v", err)
	}

	exp := &ExpandedProof{
		CircuitName:   p.CircuitName,
		ID:            p.ID,
		Ax:            a.X.BigInt(new(big.Int)),
		Ay:            a.Y.BigInt(new(big.Int)),
		Bx0:           b.X.A0.BigInt(new(big.Int)),
		Bx1:           b.X.A1.BigInt(new(big.Int)),
		By0:           b.Y.A0.BigInt(new(big.Int)),
		By1:           b.Y.A1.BigInt(new(big.Int)),
		Cx:            c.X.BigInt(new(big.Int)),
		Cy:            c.Y.BigInt(new(big.Int)),
		PublicSignals: p.SignalInts(),
	}
	return exp, nil
}

// Compact converts the expanded proof back to its compact form. For every
// proof produced by Prove, Expand followed by Compact is the identity.
func (e *ExpandedProof) Compact() (*Proof, error) {
	var a, c bn254.G1Affine
	var b bn254.G2Affine

	a.X.SetBigInt(e.Ax)
	a.Y.SetBigInt(e.Ay)
	b.X.A0.SetBigInt(e.Bx0)
	b.X.A1.SetBigInt(e.Bx1)
	b.Y.A0.SetBigInt(e.By0)
	b.Y.A1.SetBigInt(e.By1)
	c.X.SetBigInt(e.Cx)
	c.Y.SetBigInt(e.Cy)

	if !a.IsOnCurve() || !b.IsOnCurve() || !c.IsOnCurve() {
		return nil, sdkerrors.Wrap(ErrInvalidProofPoint, "expanded point not on curve")
	}

	p := &Proof{
		CircuitName:   e.CircuitName,
		ID:            e.ID,
		A:             a.Bytes(),
		B:             b.Bytes(),
		C:             c.Bytes(),
		PublicSignals: make([][sizeScalar]byte, len(e.PublicSignals)),
	}
	for i, sig := range e.PublicSignals {
		var el fr.Element
		el.SetBigInt(sig)
		p.PublicSignals[i] = el.Bytes()
	}
	return p, nil
}
