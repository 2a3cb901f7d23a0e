// Package testdata contains fixtures and helpers shared by the tests of several packages.
package testdata

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type KeyType int

const (
	KeyType_P256 KeyType = iota
	KeyType_P384
	KeyType_P521
	KeyType_P224
	KeyType_RSA
	KeyType_Ed25519
)

// CertificateOptions control the certificate created by CreateCertificate.
// Zero values give a P-256 self-signed CA valid from an hour ago until a year from now.
type CertificateOptions struct {
	KeyType   KeyType
	NotBefore time.Time
	NotAfter  time.Time
	Parent    *x509.Certificate
	ParentKey crypto.Signer
}

// Path returns the absolute path of a file in this directory.
func Path(elem ...string) string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(append([]string{filepath.Dir(file)}, elem...)...)
}

// CredentialsSupportedPath is the directory holding the sample credential descriptors.
func CredentialsSupportedPath() string {
	return Path("credentials_supported")
}

func CreateDistinguishedName(commonName string) pkix.Name {
	return pkix.Name{
		Country:      []string{"NL"},
		Organization: []string{"Yivi"},
		CommonName:   commonName,
	}
}

func GenerateKey(t testing.TB, keyType KeyType) crypto.Signer {
	var (
		key crypto.Signer
		err error
	)
	switch keyType {
	case KeyType_P256:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	case KeyType_P384:
		key, err = ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	case KeyType_P521:
		key, err = ecdsa.GenerateKey(elliptic.P521(), rand.Reader)
	case KeyType_P224:
		key, err = ecdsa.GenerateKey(elliptic.P224(), rand.Reader)
	case KeyType_RSA:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	case KeyType_Ed25519:
		_, key, err = ed25519.GenerateKey(rand.Reader)
	default:
		t.Fatalf("unknown key type %d", keyType)
	}
	require.NoError(t, err)
	return key
}

// CreateCertificate creates a CA certificate for subject. Without a parent the certificate
// is self-signed.
func CreateCertificate(t testing.TB, subject pkix.Name, opts CertificateOptions) (crypto.Signer, *x509.Certificate) {
	key := GenerateKey(t, opts.KeyType)

	notBefore, notAfter := opts.NotBefore, opts.NotAfter
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Hour)
	}
	if notAfter.IsZero() {
		notAfter = time.Now().AddDate(1, 0, 0)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	parent, parentKey := template, key
	if opts.Parent != nil {
		parent, parentKey = opts.Parent, opts.ParentKey
	} else if opts.KeyType == KeyType_P224 {
		// x509 cannot sign with P-224, so let a P-256 key sign under the same name
		parentKey = GenerateKey(t, KeyType_P256)
	}

	der, err := x509.CreateCertificate(rand.Reader, template, parent, key.Public(), parentKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return key, cert
}

func CreateRootCertificate(t testing.TB, subject pkix.Name, keyType KeyType) (crypto.Signer, *x509.Certificate) {
	return CreateCertificate(t, subject, CertificateOptions{KeyType: keyType})
}

func CreateCaCertificate(t testing.TB, subject pkix.Name, parent *x509.Certificate, parentKey crypto.Signer, keyType KeyType) (crypto.Signer, *x509.Certificate) {
	return CreateCertificate(t, subject, CertificateOptions{KeyType: keyType, Parent: parent, ParentKey: parentKey})
}

func EncodeCertAsPem(certs ...*x509.Certificate) []byte {
	var bts []byte
	for _, cert := range certs {
		bts = append(bts, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return bts
}

func WriteCertAsPemFile(t testing.TB, path string, certs ...*x509.Certificate) {
	require.NoError(t, os.WriteFile(path, EncodeCertAsPem(certs...), 0644))
}
