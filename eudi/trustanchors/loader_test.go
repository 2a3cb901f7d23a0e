package trustanchors

import (
	"encoding/pem"
	"testing"
	"time"

	"github.com/privacybydesign/pidissuer/eudi/cose"
	"github.com/privacybydesign/pidissuer/testdata"
	"github.com/stretchr/testify/require"
)

func TestParsePemCertificate(t *testing.T) {
	_, first := testdata.CreateRootCertificate(t, testdata.CreateDistinguishedName("FIRST"), testdata.KeyType_P256)
	_, second := testdata.CreateRootCertificate(t, testdata.CreateDistinguishedName("SECOND"), testdata.KeyType_P384)

	t.Run("single certificate", func(t *testing.T) {
		cert, count, err := ParsePemCertificate(testdata.EncodeCertAsPem(first))
		require.NoError(t, err)
		require.Equal(t, 1, count)
		require.Equal(t, first.Raw, cert.Raw)
	})

	t.Run("first of several certificates", func(t *testing.T) {
		cert, count, err := ParsePemCertificate(testdata.EncodeCertAsPem(first, second))
		require.NoError(t, err)
		require.Equal(t, 2, count)
		require.Equal(t, first.Raw, cert.Raw)
	})

	t.Run("other block types are ignored", func(t *testing.T) {
		data := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: []byte{1, 2, 3}})
		data = append(data, testdata.EncodeCertAsPem(second)...)
		cert, count, err := ParsePemCertificate(data)
		require.NoError(t, err)
		require.Equal(t, 1, count)
		require.Equal(t, second.Raw, cert.Raw)
	})

	t.Run("no certificate", func(t *testing.T) {
		_, _, err := ParsePemCertificate(nil)
		require.ErrorIs(t, err, ErrNoCertificate)

		_, _, err = ParsePemCertificate(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: []byte{1}}))
		require.ErrorIs(t, err, ErrNoCertificate)
	})
}

func TestNewTrustedCertificate(t *testing.T) {
	t.Run("EC certificate", func(t *testing.T) {
		_, root := testdata.CreateRootCertificate(t, testdata.CreateDistinguishedName("ROOT"), testdata.KeyType_P521)
		tc, err := NewTrustedCertificate(root)
		require.NoError(t, err)
		require.Equal(t, "CN=ROOT,O=Yivi,C=NL", tc.Issuer)
		require.Equal(t, cose.CurveP521, tc.Key.Curve)

		pub, err := tc.Key.PublicKey()
		require.NoError(t, err)
		require.True(t, pub.Equal(tc.PublicKey))

		alg, err := tc.SignatureAlgorithm()
		require.NoError(t, err)
		require.Equal(t, "ES512", alg.String())
	})

	t.Run("issuer of a certificate signed by a CA", func(t *testing.T) {
		rootKey, root := testdata.CreateRootCertificate(t, testdata.CreateDistinguishedName("ROOT"), testdata.KeyType_P256)
		_, ca := testdata.CreateCaCertificate(t, testdata.CreateDistinguishedName("CA"), root, rootKey, testdata.KeyType_P384)
		tc, err := NewTrustedCertificate(ca)
		require.NoError(t, err)
		require.Equal(t, "CN=ROOT,O=Yivi,C=NL", tc.Issuer)
		require.Equal(t, cose.CurveP384, tc.Key.Curve)
	})

	t.Run("non EC keys are rejected", func(t *testing.T) {
		for _, kt := range []testdata.KeyType{testdata.KeyType_RSA, testdata.KeyType_Ed25519} {
			_, cert := testdata.CreateRootCertificate(t, testdata.CreateDistinguishedName("ROOT"), kt)
			_, err := NewTrustedCertificate(cert)
			require.ErrorIs(t, err, cose.ErrNotEllipticCurve)
		}
	})

	t.Run("empty validity window is rejected", func(t *testing.T) {
		now := time.Now()
		_, cert := testdata.CreateCertificate(t, testdata.CreateDistinguishedName("ROOT"), testdata.CertificateOptions{
			NotBefore: now,
			NotAfter:  now,
		})
		_, err := NewTrustedCertificate(cert)
		require.ErrorIs(t, err, ErrInvalidValidityWindow)
	})
}
