// Package trustanchors maintains the registry of Certificate Authorities trusted by the
// issuer, keyed by issuer distinguished name.
//
// The registry publishes immutable snapshots. A rebuild scans the CA directory, creates a
// new snapshot and swaps it in atomically, so readers never need locking and never observe
// a partially built registry.
package trustanchors

import (
	"crypto/x509"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/privacybydesign/pidissuer/internal/loadreport"
	"github.com/privacybydesign/pidissuer/internal/metrics"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	ErrNotFound    = errors.New("no trusted certificate for issuer")
	ErrNotYetValid = errors.New("trusted certificate is not yet valid")
	ErrExpired     = errors.New("trusted certificate has expired")
)

// Snapshot is an immutable view of the trusted certificates produced by a single load.
type Snapshot struct {
	generation uint64
	loadedAt   time.Time
	anchors    map[string]*TrustedCertificate
}

var emptySnapshot = &Snapshot{anchors: map[string]*TrustedCertificate{}}

// NewSnapshot indexes certs by issuer. When two certificates have the same issuer the one
// that comes later in certs wins; the collision is logged and recorded in report.
func NewSnapshot(generation uint64, certs []*TrustedCertificate, report *loadreport.Report, logger *logrus.Logger) *Snapshot {
	anchors := make(map[string]*TrustedCertificate, len(certs))
	for _, tc := range certs {
		if previous, ok := anchors[tc.Issuer]; ok {
			logger.WithFields(logrus.Fields{
				"issuer":   tc.Issuer,
				"previous": previous.File,
				"file":     tc.File,
			}).Warn("duplicate trusted CA issuer, the later file replaces the earlier one")
			if report != nil {
				report.AddCollision(tc.Issuer, previous.File, tc.File)
			}
		}
		anchors[tc.Issuer] = tc
	}
	return &Snapshot{
		generation: generation,
		loadedAt:   time.Now(),
		anchors:    anchors,
	}
}

func (s *Snapshot) Generation() uint64 {
	return s.generation
}

func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

func (s *Snapshot) Len() int {
	return len(s.anchors)
}

func (s *Snapshot) Lookup(issuer string) (*TrustedCertificate, bool) {
	tc, ok := s.anchors[issuer]
	return tc, ok
}

// LookupValidAt returns the certificate for issuer only if at lies within its validity
// window. Expired certificates stay in the registry, as they may still be needed to check
// signatures made while they were valid.
func (s *Snapshot) LookupValidAt(issuer string, at time.Time) (*TrustedCertificate, error) {
	tc, ok := s.anchors[issuer]
	if !ok {
		return nil, ErrNotFound
	}
	if at.Before(tc.NotBefore) {
		return tc, ErrNotYetValid
	}
	if at.After(tc.NotAfter) {
		return tc, ErrExpired
	}
	return tc, nil
}

// Issuers returns the issuer names in the snapshot in sorted order.
func (s *Snapshot) Issuers() []string {
	issuers := make([]string, 0, len(s.anchors))
	for issuer := range s.anchors {
		issuers = append(issuers, issuer)
	}
	sort.Strings(issuers)
	return issuers
}

// All returns the trusted certificates ordered by issuer.
func (s *Snapshot) All() []*TrustedCertificate {
	all := make([]*TrustedCertificate, 0, len(s.anchors))
	for _, issuer := range s.Issuers() {
		all = append(all, s.anchors[issuer])
	}
	return all
}

// CertPool returns a new pool containing all trusted certificates, for use as Roots in
// x509.VerifyOptions.
func (s *Snapshot) CertPool() *x509.CertPool {
	pool := x509.NewCertPool()
	for _, tc := range s.anchors {
		pool.AddCert(tc.Certificate)
	}
	return pool
}

// Registry owns the currently published Snapshot and rebuilds it from a directory.
type Registry struct {
	dir     string
	logger  *logrus.Logger
	metrics *metrics.Metrics

	current    atomic.Pointer[Snapshot]
	generation atomic.Uint64
	rebuilds   singleflight.Group
}

type rebuildResult struct {
	snapshot *Snapshot
	report   *loadreport.Report
}

// NewRegistry returns a registry for the CA certificates in dir. It is empty until Rebuild
// is called. m may be nil.
func NewRegistry(dir string, logger *logrus.Logger, m *metrics.Metrics) *Registry {
	return &Registry{
		dir:     dir,
		logger:  logger,
		metrics: m,
	}
}

func (r *Registry) Directory() string {
	return r.dir
}

// Rebuild rescans the directory and publishes the result. Concurrent calls share a single
// scan. A bad file never makes the rebuild fail; inspect the report to see what was skipped.
func (r *Registry) Rebuild() (*Snapshot, *loadreport.Report) {
	v, _, _ := r.rebuilds.Do("rebuild", func() (interface{}, error) {
		return r.rebuild(), nil
	})
	result := v.(rebuildResult)
	return result.snapshot, result.report
}

func (r *Registry) rebuild() rebuildResult {
	generation := r.generation.Add(1)
	certs, report := LoadDirectory(r.dir, r.logger)
	snapshot := NewSnapshot(generation, certs, report, r.logger)

	if !r.publish(snapshot) {
		r.logger.WithField("generation", generation).Debug("newer trust anchor snapshot already published, discarding")
	}

	r.metrics.ObserveTrustAnchors(snapshot.Len(), len(report.Skipped), len(report.Collisions))
	r.logger.WithFields(report.Fields()).Info("trusted CA registry rebuilt")
	return rebuildResult{snapshot: snapshot, report: report}
}

// publish installs s unless a snapshot of the same or a later generation is already
// published, so that the published generation never goes backwards.
func (r *Registry) publish(s *Snapshot) bool {
	for {
		current := r.current.Load()
		if current != nil && current.generation >= s.generation {
			return false
		}
		if r.current.CompareAndSwap(current, s) {
			return true
		}
	}
}

// Snapshot returns the currently published snapshot, which is empty before the first
// Rebuild. The result must not be modified.
func (r *Registry) Snapshot() *Snapshot {
	if s := r.current.Load(); s != nil {
		return s
	}
	return emptySnapshot
}

func (r *Registry) Lookup(issuer string) (*TrustedCertificate, bool) {
	return r.Snapshot().Lookup(issuer)
}

func (r *Registry) LookupValidAt(issuer string, at time.Time) (*TrustedCertificate, error) {
	return r.Snapshot().LookupValidAt(issuer, at)
}
