// Package eudi ties the trusted CA registry and the issuer metadata documents together into
// the configuration of a running issuer, and reloads both from disk on request.
package eudi

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/privacybydesign/pidissuer/eudi/openid4vci"
	"github.com/privacybydesign/pidissuer/eudi/trustanchors"
	"github.com/privacybydesign/pidissuer/internal/common"
	"github.com/privacybydesign/pidissuer/internal/loadreport"
	"github.com/privacybydesign/pidissuer/internal/metrics"
	"github.com/sirupsen/logrus"
)

// Logger is used when Options does not specify one.
var Logger *logrus.Logger

func init() {
	Logger = common.Logger
}

var ErrNoTrustAnchors = errors.New("no trusted CA certificates could be loaded")

type Options struct {
	// TrustedCAsPath is the directory containing the trusted CA certificates (*.pem)
	TrustedCAsPath string
	// CredentialsSupportedPath is the directory containing the credential descriptors (*.json)
	CredentialsSupportedPath string
	// RequireTrustAnchors makes Reload fail when no trusted CA could be loaded
	RequireTrustAnchors bool
	Service             openid4vci.ServiceConfiguration

	Logger  *logrus.Logger
	Metrics *metrics.Metrics
}

// Configuration owns the trusted CA registry and the published metadata documents of the
// issuer. Both are empty until the first Reload.
type Configuration struct {
	options Options
	logger  *logrus.Logger
	metrics *metrics.Metrics

	TrustAnchors *trustanchors.Registry
	Metadata     *openid4vci.Publisher

	reloadLock sync.Mutex
}

// ReloadResult describes what a Reload loaded.
type ReloadResult struct {
	TrustAnchors       *trustanchors.Snapshot
	TrustAnchorsReport *loadreport.Report
	Descriptors        openid4vci.Descriptors
	DescriptorsReport  *loadreport.Report
	Documents          *openid4vci.Documents
}

// NewConfiguration returns a new configuration. Call Reload to populate it.
func NewConfiguration(opts Options) (*Configuration, error) {
	if _, err := openid4vci.ParseServiceURL(opts.Service.URL); err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = Logger
	}

	return &Configuration{
		options:      opts,
		logger:       logger,
		metrics:      opts.Metrics,
		TrustAnchors: trustanchors.NewRegistry(opts.TrustedCAsPath, logger, opts.Metrics),
		Metadata:     &openid4vci.Publisher{},
	}, nil
}

// Reload rescans the trusted CA directory and the credential descriptor directory, then
// assembles and publishes new metadata documents. Files that cannot be used are skipped and
// listed in the result. The metadata documents are left untouched when assembling fails or
// when trust anchors are required and none could be loaded.
func (conf *Configuration) Reload() (result *ReloadResult, err error) {
	conf.reloadLock.Lock()
	defer conf.reloadLock.Unlock()

	start := time.Now()
	defer func() {
		conf.metrics.ObserveReload(start, err)
	}()

	result = &ReloadResult{}
	result.TrustAnchors, result.TrustAnchorsReport = conf.TrustAnchors.Rebuild()
	if conf.options.RequireTrustAnchors && result.TrustAnchors.Len() == 0 {
		return result, fmt.Errorf("%w from %s", ErrNoTrustAnchors, conf.options.TrustedCAsPath)
	}

	result.Descriptors, result.DescriptorsReport = openid4vci.LoadDescriptors(conf.options.CredentialsSupportedPath, conf.logger)
	result.Descriptors.Lint(conf.logger)

	result.Documents, err = openid4vci.Assemble(conf.options.Service, result.Descriptors)
	if err != nil {
		return result, fmt.Errorf("failed to assemble issuer metadata: %w", err)
	}
	conf.Metadata.Publish(result.Documents)
	conf.metrics.ObserveCredentialDescriptors(
		len(result.Descriptors),
		len(result.DescriptorsReport.Skipped),
		len(result.DescriptorsReport.Collisions),
	)

	conf.logger.WithFields(logrus.Fields{
		"trusted_cas":               result.TrustAnchors.Len(),
		"credential_configurations": len(result.Descriptors),
		"generation":                result.TrustAnchors.Generation(),
	}).Info("issuer configuration loaded")
	return result, nil
}

// Documents returns the currently published metadata documents, or nil before the first
// successful Reload.
func (conf *Configuration) Documents() *openid4vci.Documents {
	return conf.Metadata.Current()
}

// ServiceURL returns the normalised service URL.
func (conf *Configuration) ServiceURL() *openid4vci.ServiceURL {
	// Validated in NewConfiguration
	service, _ := openid4vci.ParseServiceURL(conf.options.Service.URL)
	return service
}
