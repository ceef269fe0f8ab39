package circuits

import (
	"fmt"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr"
	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
)

// FieldKind is the primitive type of a declared circuit input.
type FieldKind string

const (
	KindUint       FieldKind = "uint"        // unsigned integer, fits a field element
	KindScalar     FieldKind = "scalar"      // single field element (commitment, hash, salt)
	KindScalarList FieldKind = "scalar_list" // fixed-length vector of field elements
)

// FieldType declares one input field of a circuit schema.
type FieldType struct {
	Kind   FieldKind `json:"kind" mapstructure:"kind"`
	Len    int       `json:"len,omitempty" mapstructure:"len"`       // required for scalar_list
	Public bool      `json:"public,omitempty" mapstructure:"public"` // part of the public-signal vector
}

// Schema maps input field names to their declared types.
type Schema map[string]FieldType

// ToScalar coerces a caller-supplied input value into a field element value.
func ToScalar(v any) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, fmt.Errorf("nil big.Int")
		}
		return new(big.Int).Set(x), nil
	case big.Int:
		return new(big.Int).Set(&x), nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case int64:
		if x < 0 {
			return nil, fmt.Errorf("negative value %d", x)
		}
		return big.NewInt(x), nil
	case int:
		if x < 0 {
			return nil, fmt.Errorf("negative value %d", x)
		}
		return big.NewInt(int64(x)), nil
	case []byte:
		if len(x) > 32 {
			return nil, fmt.Errorf("byte value too long: %d", len(x))
		}
		return new(big.Int).SetBytes(x), nil
	case [32]byte:
		return new(big.Int).SetBytes(x[:]), nil
	case string:
		n, ok := new(big.Int).SetString(x, 0)
		if !ok {
			return nil, fmt.Errorf("unparseable scalar %q", x)
		}
		if n.Sign() < 0 {
			return nil, fmt.Errorf("negative scalar %q", x)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported scalar type %T", v)
	}
}

// ToUint64 coerces a caller-supplied input value into an unsigned integer.
func ToUint64(v any) (uint64, error) {
	switch x := v.(type) {
	case uint64:
		return x, nil
	case uint32:
		return uint64(x), nil
	case int64:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		return uint64(x), nil
	case int:
		if x < 0 {
			return 0, fmt.Errorf("negative value %d", x)
		}
		return uint64(x), nil
	default:
		n, err := ToScalar(v)
		if err != nil {
			return 0, err
		}
		if !n.IsUint64() {
			return 0, fmt.Errorf("value does not fit uint64")
		}
		return n.Uint64(), nil
	}
}

// ToScalarList coerces a caller-supplied input into exactly length scalars.
func ToScalarList(v any, length int) ([]*big.Int, error) {
	var raw []any
	switch x := v.(type) {
	case []any:
		raw = x
	case []*big.Int:
		raw = make([]any, len(x))
		for i, e := range x {
			raw[i] = e
		}
	case [][]byte:
		raw = make([]any, len(x))
		for i, e := range x {
			raw[i] = e
		}
	case []uint64:
		raw = make([]any, len(x))
		for i, e := range x {
			raw[i] = e
		}
	default:
		return nil, fmt.Errorf("unsupported scalar list type %T", v)
	}

	if len(raw) != length {
		return nil, fmt.Errorf("scalar list length %d, want %d", len(raw), length)
	}

	out := make([]*big.Int, length)
	for i, e := range raw {
		n, err := ToScalar(e)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = n
	}
	return out, nil
}

// Validate checks v against the declared field type.
func (ft FieldType) Validate(v any) error {
	switch ft.Kind {
	case KindUint:
		_, err := ToUint64(v)
		return err
	case KindScalar:
		_, err := ToScalar(v)
		return err
	case KindScalarList:
		_, err := ToScalarList(v, ft.Len)
		return err
	default:
		return fmt.Errorf("unknown field kind %q", ft.Kind)
	}
}

// Commitment computes the MiMC hash of the given values over the BN254
// scalar field. It matches the in-circuit MiMC gadget, so callers can build
// public commitments that satisfy the circuit constraints.
func Commitment(values ...*big.Int) *big.Int {
	h := mimc.NewMiMC()
	for _, v := range values {
		var e fr.Element
		e.SetBigInt(v)
		b := e.Bytes()
		// Write cannot fail for a canonical 32-byte element.
		_, _ = h.Write(b[:])
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}
