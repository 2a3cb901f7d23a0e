package trustanchors

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/privacybydesign/pidissuer/eudi/cose"
	"github.com/privacybydesign/pidissuer/internal/common"
	"github.com/privacybydesign/pidissuer/internal/loadreport"
	"github.com/sirupsen/logrus"
)

const PemExtension = ".pem"

var (
	ErrNoCertificate         = errors.New("no PEM encoded certificate found")
	ErrInvalidValidityWindow = errors.New("certificate validity window is empty")
)

// TrustedCertificate is a CA certificate accepted as root of trust, together with the data
// derived from it that the signing and verification path needs.
type TrustedCertificate struct {
	// Issuer is the distinguished name of the certificate issuer, used as registry key
	Issuer      string
	Certificate *x509.Certificate
	PublicKey   *ecdsa.PublicKey
	NotBefore   time.Time
	NotAfter    time.Time
	Key         *cose.Key
	// File is the base name of the file the certificate was read from
	File string
}

// ValidAt reports whether t lies within the validity window of the certificate (inclusive).
func (tc *TrustedCertificate) ValidAt(t time.Time) bool {
	return !t.Before(tc.NotBefore) && !t.After(tc.NotAfter)
}

// ParsePemCertificate returns the first certificate in the PEM encoded data. Blocks of
// other types are ignored.
func ParsePemCertificate(data []byte) (*x509.Certificate, int, error) {
	var (
		cert  *x509.Certificate
		count int
		block *pem.Block
	)
	rest := data
	for {
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		count++
		if cert != nil {
			continue
		}
		parsed, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, 0, err
		}
		cert = parsed
	}

	if cert == nil {
		return nil, 0, ErrNoCertificate
	}
	return cert, count, nil
}

// NewTrustedCertificate validates cert as a trust anchor and derives its compact key.
func NewTrustedCertificate(cert *x509.Certificate) (*TrustedCertificate, error) {
	pub, ok := cert.PublicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %s", cose.ErrNotEllipticCurve, cert.PublicKeyAlgorithm)
	}
	if !cert.NotBefore.Before(cert.NotAfter) {
		return nil, fmt.Errorf("%w: notBefore %s, notAfter %s", ErrInvalidValidityWindow,
			cert.NotBefore.Format(time.RFC3339), cert.NotAfter.Format(time.RFC3339))
	}

	key, err := cose.FromPublicKey(pub)
	if err != nil {
		return nil, err
	}

	return &TrustedCertificate{
		Issuer:      cert.Issuer.ToRDNSequence().String(),
		Certificate: cert,
		PublicKey:   pub,
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
		Key:         key,
	}, nil
}

// LoadDirectory reads every PEM file in dir and returns the certificates that are usable
// as trust anchors. Files that cannot be read, parsed or validated are skipped, logged and
// recorded in the returned report; a missing or unreadable directory gives an empty result.
func LoadDirectory(dir string, logger *logrus.Logger) ([]*TrustedCertificate, *loadreport.Report) {
	report := loadreport.New(dir)
	log := logger.WithField("directory", dir)

	files, err := common.ListFiles(dir, PemExtension)
	if err != nil {
		log.Warnf("cannot list trusted CA directory: %v", err)
		return nil, report
	}
	if len(files) == 0 {
		log.Warn("no trusted CA certificates found")
	}

	var certs []*TrustedCertificate
	for _, file := range files {
		name := filepath.Base(file)
		tc, err := loadFile(file, log)
		if err != nil {
			log.WithField("file", name).Warnf("skipping trusted CA: %v", err)
			report.AddSkipped(name, err)
			continue
		}
		tc.File = name
		log.WithFields(logrus.Fields{"file": name, "issuer": tc.Issuer}).Debug("loaded trusted CA")
		report.AddLoaded(name)
		certs = append(certs, tc)
	}

	return certs, report
}

func loadFile(file string, log *logrus.Entry) (*TrustedCertificate, error) {
	bts, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	cert, count, err := ParsePemCertificate(bts)
	if err != nil {
		return nil, err
	}
	if count > 1 {
		log.WithField("file", filepath.Base(file)).Debugf("file contains %d certificates, using only the first", count)
	}

	return NewTrustedCertificate(cert)
}
