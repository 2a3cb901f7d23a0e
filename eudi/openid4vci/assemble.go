package openid4vci

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var ErrInvalidServiceURL = errors.New("invalid service URL")

const (
	DefaultLocale      = "en"
	DefaultLogoAltText = "EU Digital Identity Wallet Logo"
	LogoPath           = "ic-logo.png"

	PathCredential         = "credential"
	PathBatchCredential    = "batch_credential"
	PathNotification       = "notification"
	PathDeferredCredential = "deferred_credential"
	PathAuthorization      = "authorizationV3"
	PathToken              = "token"
	PathUserinfo           = "userinfo"
	PathJwks               = "static/jwks.json"
	PathRegistration       = "registration"
)

var (
	responseTypesSupported            = []string{"code"}
	scopesSupported                   = []string{"openid"}
	tokenEndpointAuthMethodsSupported = []string{"public"}
	signingAlgValuesSupported         = []string{"ES256"}
	codeChallengeMethodsSupported     = []string{"S256"}
)

// ServiceConfiguration holds the settings of the issuing service that end up in its
// metadata documents.
type ServiceConfiguration struct {
	// URL is the public base URL of the service
	URL string
	// OrganizationID is shown to users as the name of the issuer
	OrganizationID string
	// LogoAltText defaults to DefaultLogoAltText
	LogoAltText string
	// Display replaces the default single English display entry when not empty
	Display CredentialIssuerDisplays
}

// ServiceURL is a parsed and normalised service URL.
type ServiceURL struct {
	issuer string
	base   *url.URL
}

// ParseServiceURL validates and normalises the service URL. The URL must be absolute and
// may not contain a query or fragment. Trailing slashes are not significant: the issuer
// identifier never ends in a slash and endpoints are always resolved below the full path.
func ParseServiceURL(raw string) (*ServiceURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidServiceURL, raw, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w %q: must be absolute", ErrInvalidServiceURL, raw)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return nil, fmt.Errorf("%w %q: scheme must be http or https", ErrInvalidServiceURL, raw)
	}
	if u.RawQuery != "" || u.Fragment != "" || u.ForceQuery {
		return nil, fmt.Errorf("%w %q: query and fragment are not allowed", ErrInvalidServiceURL, raw)
	}
	if u.User != nil {
		return nil, fmt.Errorf("%w %q: user info is not allowed", ErrInvalidServiceURL, raw)
	}

	// Trim the escaped path so that escaped characters such as %2F survive as configured
	rawPath := strings.TrimRight(u.EscapedPath(), "/")
	path, err := url.PathUnescape(rawPath)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidServiceURL, raw, err)
	}
	issuer := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: path, RawPath: rawPath}
	base := &url.URL{Scheme: u.Scheme, Host: u.Host, Path: path + "/", RawPath: rawPath + "/"}

	return &ServiceURL{issuer: issuer.String(), base: base}, nil
}

// Issuer returns the issuer identifier, which has no trailing slash.
func (s *ServiceURL) Issuer() string {
	return s.issuer
}

// Base returns the URL against which endpoints are resolved. It always ends in a slash.
func (s *ServiceURL) Base() string {
	return s.base.String()
}

// BasePath returns the escaped path component of Base.
func (s *ServiceURL) BasePath() string {
	return s.base.EscapedPath()
}

// Endpoint resolves the relative path p against the base URL.
func (s *ServiceURL) Endpoint(p string) string {
	return s.base.ResolveReference(&url.URL{Path: p}).String()
}

// Documents holds the metadata documents of the service, assembled together from one
// configuration and one set of credential descriptors.
type Documents struct {
	CredentialIssuer    *CredentialIssuerMetadata
	OAuth               *OAuthMetadata
	OpenIDConfiguration *OpenIDConfiguration
}

// Assemble builds the metadata documents. It does not modify its arguments and has no side
// effects, so equal inputs give documents that marshal to identical JSON.
func Assemble(conf ServiceConfiguration, descriptors Descriptors) (*Documents, error) {
	service, err := ParseServiceURL(conf.URL)
	if err != nil {
		return nil, err
	}

	docs := &Documents{
		CredentialIssuer:    buildCredentialIssuerMetadata(service, conf, descriptors),
		OAuth:               buildOAuthMetadata(service),
		OpenIDConfiguration: buildOpenIDConfiguration(service),
	}
	if err := docs.Verify(); err != nil {
		return nil, err
	}
	return docs, nil
}

func buildCredentialIssuerMetadata(service *ServiceURL, conf ServiceConfiguration, descriptors Descriptors) *CredentialIssuerMetadata {
	return &CredentialIssuerMetadata{
		CredentialIssuer:                  service.Issuer(),
		CredentialEndpoint:                service.Endpoint(PathCredential),
		BatchCredentialEndpoint:           service.Endpoint(PathBatchCredential),
		NotificationEndpoint:              service.Endpoint(PathNotification),
		DeferredCredentialEndpoint:        service.Endpoint(PathDeferredCredential),
		Display:                           buildDisplay(service, conf),
		CredentialConfigurationsSupported: descriptors.Clone(),
	}
}

func buildDisplay(service *ServiceURL, conf ServiceConfiguration) CredentialIssuerDisplays {
	if len(conf.Display) > 0 {
		display := make(CredentialIssuerDisplays, len(conf.Display))
		for i, d := range conf.Display {
			display[i] = d
			if d.Logo != nil {
				logo := *d.Logo
				display[i].Logo = &logo
			}
		}
		return display
	}

	altText := conf.LogoAltText
	if altText == "" {
		altText = DefaultLogoAltText
	}
	return CredentialIssuerDisplays{{
		Display: Display{
			Name:   conf.OrganizationID,
			Locale: DefaultLocale,
		},
		Logo: &RemoteImage{
			Uri:     service.Endpoint(LogoPath),
			AltText: altText,
		},
	}}
}

func buildOAuthMetadata(service *ServiceURL) *OAuthMetadata {
	return &OAuthMetadata{
		Issuer:                                     service.Issuer(),
		AuthorizationEndpoint:                      service.Endpoint(PathAuthorization),
		TokenEndpoint:                              service.Endpoint(PathToken),
		TokenEndpointAuthMethodsSupported:          clone(tokenEndpointAuthMethodsSupported),
		TokenEndpointAuthSigningAlgValuesSupported: clone(signingAlgValuesSupported),
		CodeChallengeMethodsSupported:              clone(codeChallengeMethodsSupported),
		UserinfoEndpoint:                           service.Endpoint(PathUserinfo),
		JwksUri:                                    service.Endpoint(PathJwks),
		RegistrationEndpoint:                       service.Endpoint(PathRegistration),
		ScopesSupported:                            clone(scopesSupported),
		ResponseTypesSupported:                     clone(responseTypesSupported),
	}
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}

// Verify checks each of the documents.
func (d *Documents) Verify() error {
	if d.CredentialIssuer == nil || d.OAuth == nil || d.OpenIDConfiguration == nil {
		return errors.New("incomplete metadata documents")
	}
	if err := d.CredentialIssuer.Verify(); err != nil {
		return fmt.Errorf("credential issuer metadata: %w", err)
	}
	if err := d.OAuth.Verify(); err != nil {
		return fmt.Errorf("oauth authorization server metadata: %w", err)
	}
	if err := d.OpenIDConfiguration.Verify(); err != nil {
		return fmt.Errorf("openid configuration: %w", err)
	}
	if d.OAuth.Issuer != d.CredentialIssuer.CredentialIssuer || d.OpenIDConfiguration.Issuer != d.CredentialIssuer.CredentialIssuer {
		return errors.New("metadata documents disagree on the issuer identifier")
	}
	return nil
}

// MarshalDocument renders one of the documents the way it is served.
func MarshalDocument(doc interface{}) ([]byte, error) {
	return json.MarshalIndent(doc, "", "  ")
}
