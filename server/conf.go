package server

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-errors/errors"
	"github.com/privacybydesign/pidissuer/eudi"
	"github.com/privacybydesign/pidissuer/eudi/openid4vci"
	"github.com/privacybydesign/pidissuer/internal/common"
	"github.com/privacybydesign/pidissuer/internal/metrics"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTrustedCAsPath           = "trusted_cas"
	DefaultCredentialsSupportedPath = "credentials_supported"
	DefaultListenAddr               = "0.0.0.0"
	DefaultPort                     = 5000
	// Minutes
	DefaultReloadInterval = 60
)

// Configuration contains the configuration of the PID issuer.
type Configuration struct {
	// Public URL of the issuer. It is the credential issuer identifier, and all endpoints
	// in the metadata documents are relative to it.
	URL string `json:"url" mapstructure:"url"`
	// Required to be set to true if URL does not begin with https:// in production mode.
	DisableTLS bool `json:"disable_tls" mapstructure:"disable_tls"`
	// Name of the issuing organization, shown to users by their wallet
	OrganizationID string `json:"organization_id" mapstructure:"organization_id"`
	// Alternative text of the issuer logo
	LogoAltText string `json:"logo_alt_text" mapstructure:"logo_alt_text"`
	// Display entries of the issuer. If empty a single English entry is derived from
	// OrganizationID and LogoAltText.
	Display openid4vci.CredentialIssuerDisplays `json:"display" mapstructure:"display"`

	// Directory containing the trusted CA certificates (*.pem)
	TrustedCAsPath string `json:"trusted_cas_path" mapstructure:"trusted_cas_path"`
	// Directory containing the credential descriptors (*.json)
	CredentialsSupportedPath string `json:"credentials_supported_path" mapstructure:"credentials_supported_path"`
	// Refuse to start, and refuse reloads, when no trusted CA could be loaded
	RequireTrustAnchors bool `json:"require_trust_anchors" mapstructure:"require_trust_anchors"`
	// Reload trusted CAs and credential descriptors every x minutes (0 disables reloading)
	ReloadInterval int `json:"reload_interval" mapstructure:"reload_interval"`

	// Address and port to listen on
	ListenAddress string `json:"listen_addr" mapstructure:"listen_addr"`
	Port          int    `json:"port" mapstructure:"port"`
	// Serve Prometheus metrics at /metrics
	EnableMetrics bool `json:"enable_metrics" mapstructure:"enable_metrics"`

	// Logging verbosity level: 0 is normal, 1 includes DEBUG level, 2 includes TRACE level
	Verbose int `json:"verbose" mapstructure:"verbose"`
	// Don't log anything at all
	Quiet bool `json:"quiet" mapstructure:"quiet"`
	// Output structured log in JSON format
	LogJSON bool `json:"log_json" mapstructure:"log_json"`
	// Custom logger instance. If specified, Verbose, Quiet and LogJSON are ignored.
	Logger *logrus.Logger `json:"-"`

	// Production mode: enables safer and stricter defaults and config checking
	Production bool `json:"production" mapstructure:"production"`
}

// Check checks the configuration for errors and fills in defaults. It must be called
// before the configuration is used.
func (conf *Configuration) Check() error {
	if conf.Logger == nil {
		conf.Logger = NewLogger(conf.Verbose, conf.Quiet, conf.LogJSON)
	}
	Logger = conf.Logger
	common.Logger = conf.Logger
	eudi.Logger = conf.Logger

	if conf.TrustedCAsPath == "" {
		conf.TrustedCAsPath = DefaultTrustedCAsPath
	}
	if conf.CredentialsSupportedPath == "" {
		conf.CredentialsSupportedPath = DefaultCredentialsSupportedPath
	}
	if conf.ListenAddress == "" {
		conf.ListenAddress = DefaultListenAddr
	}
	if conf.Port == 0 {
		conf.Port = DefaultPort
	}

	// loop to avoid repetetive err != nil line triplets
	for _, f := range []func() error{
		conf.verifyURL,
		conf.verifyOrganization,
		conf.verifyDisplay,
		conf.verifyPaths,
		conf.verifyReloadInterval,
		conf.verifyListenAddress,
	} {
		if err := f(); err != nil {
			_ = LogError(err)
			return err
		}
	}

	return nil
}

// ServiceConfiguration returns the part of the configuration that ends up in the metadata
// documents.
func (conf *Configuration) ServiceConfiguration() openid4vci.ServiceConfiguration {
	return openid4vci.ServiceConfiguration{
		URL:            conf.URL,
		OrganizationID: conf.OrganizationID,
		LogoAltText:    conf.LogoAltText,
		Display:        conf.Display,
	}
}

// EudiOptions returns the options for the trusted CA registry and the metadata documents.
// m may be nil.
func (conf *Configuration) EudiOptions(m *metrics.Metrics) eudi.Options {
	return eudi.Options{
		TrustedCAsPath:           conf.TrustedCAsPath,
		CredentialsSupportedPath: conf.CredentialsSupportedPath,
		RequireTrustAnchors:      conf.RequireTrustAnchors,
		Service:                  conf.ServiceConfiguration(),
		Logger:                   conf.Logger,
		Metrics:                  m,
	}
}

// Addr returns the address to listen on.
func (conf *Configuration) Addr() string {
	return net.JoinHostPort(conf.ListenAddress, strconv.Itoa(conf.Port))
}

func (conf *Configuration) verifyURL() error {
	if conf.URL == "" {
		return errors.New("No url parameter specified in configuration; it is required as the credential issuer identifier")
	}
	if _, err := openid4vci.ParseServiceURL(conf.URL); err != nil {
		return errors.WrapPrefix(err, "Invalid url parameter", 0)
	}
	if !strings.HasPrefix(conf.URL, "https://") {
		if !conf.Production || conf.DisableTLS {
			conf.DisableTLS = true
			conf.Logger.Warnf("TLS is not enabled on the url \"%s\" at which wallets reach this issuer. "+
				"Ensure that traffic is encrypted in transit by either enabling TLS or adding TLS in a reverse proxy.", conf.URL)
		} else {
			return errors.Errorf("Running without TLS in production mode is unsafe without a reverse proxy. " +
				"Either use a https:// URL or explicitly disable TLS.")
		}
	}
	return nil
}

func (conf *Configuration) verifyOrganization() error {
	if conf.OrganizationID == "" && len(conf.Display) == 0 {
		return errors.New("No organization_id or display specified in configuration; the issuer metadata needs a display name")
	}
	return nil
}

func (conf *Configuration) verifyDisplay() error {
	if len(conf.Display) == 0 {
		return nil
	}
	// Validate the display entries against a throwaway document, so that errors surface
	// at startup instead of at the first reload
	metadata := openid4vci.CredentialIssuerMetadata{
		CredentialIssuer:                  conf.URL,
		CredentialEndpoint:                conf.URL,
		Display:                           conf.Display,
		CredentialConfigurationsSupported: openid4vci.Descriptors{},
	}
	if err := metadata.Verify(); err != nil {
		return errors.WrapPrefix(err, "Invalid display parameter", 0)
	}
	return nil
}

func (conf *Configuration) verifyPaths() error {
	for _, dir := range []struct{ name, path string }{
		{"trusted_cas_path", conf.TrustedCAsPath},
		{"credentials_supported_path", conf.CredentialsSupportedPath},
	} {
		exists, err := common.PathExists(dir.path)
		if err != nil {
			return errors.WrapPrefix(err, fmt.Sprintf("Cannot access %s", dir.name), 0)
		}
		if !exists {
			if conf.Production {
				return errors.Errorf("%s %s does not exist", dir.name, dir.path)
			}
			conf.Logger.Warnf("%s %s does not exist, no files will be loaded from it", dir.name, dir.path)
			continue
		}
		if err := common.AssertDirectory(dir.path); err != nil {
			return errors.WrapPrefix(err, fmt.Sprintf("Invalid %s", dir.name), 0)
		}
	}
	return nil
}

func (conf *Configuration) verifyReloadInterval() error {
	if conf.ReloadInterval < 0 {
		return errors.Errorf("reload_interval must not be negative, got %d", conf.ReloadInterval)
	}
	return nil
}

func (conf *Configuration) verifyListenAddress() error {
	if conf.Port < 0 || conf.Port > 65535 {
		return errors.Errorf("Port %d is out of range", conf.Port)
	}
	if net.ParseIP(conf.ListenAddress) == nil && conf.ListenAddress != "localhost" {
		return errors.Errorf("Invalid listen_addr %q", conf.ListenAddress)
	}
	return nil
}
