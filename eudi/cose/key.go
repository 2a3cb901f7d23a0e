// Package cose converts elliptic curve public keys into COSE_Key (EC2) records, the compact
// key representation embedded in mdoc credentials and used by the signing and verification
// path.
package cose

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/fxamacker/cbor"
)

// KeyType is the COSE "kty" parameter. Only EC2 is produced by this package.
type KeyType int

// Curve is the COSE "crv" parameter for EC2 keys.
type Curve int

const (
	KeyTypeEC2 KeyType = 2

	CurveP256 Curve = 1
	CurveP384 Curve = 2
	CurveP521 Curve = 3
)

var (
	ErrNotEllipticCurve = errors.New("public key is not an elliptic curve key")
	ErrUnsupportedCurve = errors.New("unsupported elliptic curve")
)

// Key is a COSE EC2 public key. X and Y hold the big-endian coordinates in their minimal
// encoding: ceil(bitlen/8) bytes, without padding to the field size.
type Key struct {
	Curve Curve
	X     []byte
	Y     []byte
}

// coseKey is the wire form: a CBOR map with the integer labels from RFC 9052.
type coseKey struct {
	Kty KeyType `cbor:"1,keyasint"`
	Crv Curve   `cbor:"-1,keyasint"`
	X   []byte  `cbor:"-2,keyasint"`
	Y   []byte  `cbor:"-3,keyasint"`
}

func (c Curve) String() string {
	switch c {
	case CurveP256:
		return "P-256"
	case CurveP384:
		return "P-384"
	case CurveP521:
		return "P-521"
	default:
		return fmt.Sprintf("unknown curve %d", int(c))
	}
}

// Elliptic returns the Go curve implementation for c.
func (c Curve) Elliptic() (elliptic.Curve, error) {
	switch c {
	case CurveP256:
		return elliptic.P256(), nil
	case CurveP384:
		return elliptic.P384(), nil
	case CurveP521:
		return elliptic.P521(), nil
	default:
		return nil, fmt.Errorf("%w: COSE curve %d", ErrUnsupportedCurve, int(c))
	}
}

func curveFor(curve elliptic.Curve) (Curve, error) {
	if curve == nil {
		return 0, fmt.Errorf("%w: nil curve", ErrUnsupportedCurve)
	}
	switch curve.Params().Name {
	case "P-256":
		return CurveP256, nil
	case "P-384":
		return CurveP384, nil
	case "P-521":
		return CurveP521, nil
	default:
		return 0, fmt.Errorf("%w %q", ErrUnsupportedCurve, curve.Params().Name)
	}
}

// FromPublicKey converts an ECDSA public key into a COSE EC2 key.
func FromPublicKey(pub *ecdsa.PublicKey) (*Key, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, errors.New("missing public key coordinates")
	}
	crv, err := curveFor(pub.Curve)
	if err != nil {
		return nil, err
	}
	return &Key{
		Curve: crv,
		X:     pub.X.Bytes(),
		Y:     pub.Y.Bytes(),
	}, nil
}

// FromCertificate converts the public key of cert, which must be an ECDSA key.
func FromCertificate(cert *x509.Certificate) (*Key, error) {
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotEllipticCurve, cert.PublicKeyAlgorithm)
	}
	return FromPublicKey(pub)
}

// PublicKey re-derives the ECDSA public key from the coordinates.
func (k *Key) PublicKey() (*ecdsa.PublicKey, error) {
	curve, err := k.Curve.Elliptic()
	if err != nil {
		return nil, err
	}
	pub := &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(k.X),
		Y:     new(big.Int).SetBytes(k.Y),
	}
	if !curve.IsOnCurve(pub.X, pub.Y) {
		return nil, fmt.Errorf("point is not on curve %s", k.Curve)
	}
	return pub, nil
}

// MarshalCBOR encodes the key as a COSE_Key map. Labels are written in the order
// 1, -1, -2, -3, which is the deterministic (bytewise) order.
func (k *Key) MarshalCBOR() ([]byte, error) {
	return cbor.Marshal(coseKey{
		Kty: KeyTypeEC2,
		Crv: k.Curve,
		X:   k.X,
		Y:   k.Y,
	}, cbor.EncOptions{})
}

func (k *Key) UnmarshalCBOR(bts []byte) error {
	var raw coseKey
	if err := cbor.Unmarshal(bts, &raw); err != nil {
		return err
	}
	if raw.Kty != KeyTypeEC2 {
		return fmt.Errorf("unsupported COSE key type %d", int(raw.Kty))
	}
	if _, err := raw.Crv.Elliptic(); err != nil {
		return err
	}
	*k = Key{Curve: raw.Crv, X: raw.X, Y: raw.Y}
	return nil
}

// Thumbprint returns the hex encoded SHA-256 hash of the CBOR encoding of the key.
func (k *Key) Thumbprint() (string, error) {
	bts, err := k.MarshalCBOR()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(bts)
	return hex.EncodeToString(sum[:]), nil
}
