package trustanchors

import (
	"encoding/base64"
	"fmt"

	"github.com/lestrrat-go/jwx/v3/cert"
	"github.com/lestrrat-go/jwx/v3/jwa"
	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/privacybydesign/pidissuer/eudi/cose"
)

// SignatureAlgorithm returns the JWS algorithm matching the curve of the certificate key.
func (tc *TrustedCertificate) SignatureAlgorithm() (jwa.SignatureAlgorithm, error) {
	switch tc.Key.Curve {
	case cose.CurveP256:
		return jwa.ES256(), nil
	case cose.CurveP384:
		return jwa.ES384(), nil
	case cose.CurveP521:
		return jwa.ES512(), nil
	}
	var none jwa.SignatureAlgorithm
	return none, fmt.Errorf("%w: %s", cose.ErrUnsupportedCurve, tc.Key.Curve)
}

// JWK returns the public key of the certificate as a JWK carrying the certificate itself in
// x5c. The key ID is the thumbprint of its COSE key, so both representations can be correlated.
func (tc *TrustedCertificate) JWK() (jwk.Key, error) {
	key, err := jwk.Import(tc.PublicKey)
	if err != nil {
		return nil, err
	}
	kid, err := tc.Key.Thumbprint()
	if err != nil {
		return nil, err
	}
	alg, err := tc.SignatureAlgorithm()
	if err != nil {
		return nil, err
	}

	chain := &cert.Chain{}
	if err := chain.Add([]byte(base64.StdEncoding.EncodeToString(tc.Certificate.Raw))); err != nil {
		return nil, err
	}

	for name, value := range map[string]interface{}{
		jwk.KeyIDKey:         kid,
		jwk.AlgorithmKey:     alg,
		jwk.KeyUsageKey:      jwk.ForSignature,
		jwk.X509CertChainKey: chain,
	} {
		if err := key.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to set %q on JWK: %w", name, err)
		}
	}
	return key, nil
}

// JWKSet returns the public keys of all trusted certificates, ordered by issuer.
func (s *Snapshot) JWKSet() (jwk.Set, error) {
	set := jwk.NewSet()
	for _, tc := range s.All() {
		key, err := tc.JWK()
		if err != nil {
			return nil, fmt.Errorf("trusted CA %q: %w", tc.Issuer, err)
		}
		if err := set.AddKey(key); err != nil {
			return nil, err
		}
	}
	return set, nil
}
