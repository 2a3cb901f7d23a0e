package openid4vci

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/lestrrat-go/jwx/v3/jwa"
	"golang.org/x/text/language"
)

// CredentialIssuerMetadata is the document served at /.well-known/openid-credential-issuer.
type CredentialIssuerMetadata struct {
	CredentialIssuer           string                   `json:"credential_issuer"`
	CredentialEndpoint         string                   `json:"credential_endpoint"`
	BatchCredentialEndpoint    string                   `json:"batch_credential_endpoint,omitempty"`
	NotificationEndpoint       string                   `json:"notification_endpoint,omitempty"`
	DeferredCredentialEndpoint string                   `json:"deferred_credential_endpoint,omitempty"`
	Display                    CredentialIssuerDisplays `json:"display,omitempty"`

	// The credential descriptors are passed on verbatim, so this is never omitted and an
	// empty set of descriptors is rendered as {}
	CredentialConfigurationsSupported map[string]json.RawMessage `json:"credential_configurations_supported"`
}

// OAuthMetadata is the document served at /.well-known/oauth-authorization-server (RFC 8414).
type OAuthMetadata struct {
	Issuer                                     string   `json:"issuer"`
	AuthorizationEndpoint                      string   `json:"authorization_endpoint"`
	TokenEndpoint                              string   `json:"token_endpoint"`
	TokenEndpointAuthMethodsSupported          []string `json:"token_endpoint_auth_methods_supported"`
	TokenEndpointAuthSigningAlgValuesSupported []string `json:"token_endpoint_auth_signing_alg_values_supported"`
	CodeChallengeMethodsSupported              []string `json:"code_challenge_methods_supported"`
	UserinfoEndpoint                           string   `json:"userinfo_endpoint"`
	JwksUri                                    string   `json:"jwks_uri"`
	RegistrationEndpoint                       string   `json:"registration_endpoint"`
	ScopesSupported                            []string `json:"scopes_supported"`
	ResponseTypesSupported                     []string `json:"response_types_supported"`
}

type Translateable interface {
	GetName() string
	GetLocale() string
}

type Display struct {
	Name   string `json:"name,omitempty" mapstructure:"name"`
	Locale string `json:"locale,omitempty" mapstructure:"locale"`
}

type CredentialIssuerDisplay struct {
	Display `mapstructure:",squash"`
	Logo    *RemoteImage `json:"logo,omitempty" mapstructure:"logo"`
}
type CredentialIssuerDisplays []CredentialIssuerDisplay

type RemoteImage struct {
	Uri     string `json:"uri" mapstructure:"uri"`
	AltText string `json:"alt_text,omitempty" mapstructure:"alt_text"`
}

type CredentialFormatIdentifier string

const (
	CredentialFormatIdentifier_W3CVC              CredentialFormatIdentifier = "jwt_vc_json"
	CredentialFormatIdentifier_W3CVCLD            CredentialFormatIdentifier = "jwt_vc_json-ld"
	CredentialFormatIdentifier_W3CVCLD_ProofSuite CredentialFormatIdentifier = "ldp_vc"
	CredentialFormatIdentifier_MsoMdoc            CredentialFormatIdentifier = "mso_mdoc"
	CredentialFormatIdentifier_SdJwtVc            CredentialFormatIdentifier = "dc+sd-jwt"
	CredentialFormatIdentifier_VcSdJwt            CredentialFormatIdentifier = "vc+sd-jwt" // SD-JWT VC drafts before dc+sd-jwt
)

// Known reports whether f is one of the credential formats defined by OpenID4VCI.
func (f CredentialFormatIdentifier) Known() bool {
	switch f {
	case CredentialFormatIdentifier_W3CVC,
		CredentialFormatIdentifier_W3CVCLD,
		CredentialFormatIdentifier_W3CVCLD_ProofSuite,
		CredentialFormatIdentifier_MsoMdoc,
		CredentialFormatIdentifier_SdJwtVc,
		CredentialFormatIdentifier_VcSdJwt:
		return true
	}
	return false
}

func (d *Display) GetName() string {
	return d.Name
}
func (d *Display) GetLocale() string {
	return d.Locale
}

func (d *CredentialIssuerDisplay) GetName() string {
	return d.Name
}
func (d *CredentialIssuerDisplay) GetLocale() string {
	return d.Locale
}
func credentialIssuerDisplaysToTranslateableList(displays []CredentialIssuerDisplay) []Translateable {
	result := make([]Translateable, len(displays))
	for i := range displays {
		result[i] = &displays[i]
	}
	return result
}

// Verify checks that the metadata contains the fields required by OpenID4VCI and that all
// endpoints are usable by a wallet.
func (m *CredentialIssuerMetadata) Verify() error {
	if m.CredentialIssuer == "" {
		return fmt.Errorf("missing 'credential_issuer'")
	}
	if m.CredentialEndpoint == "" {
		return fmt.Errorf("missing 'credential_endpoint'")
	}
	if m.CredentialConfigurationsSupported == nil {
		return fmt.Errorf("missing 'credential_configurations_supported'")
	}

	if err := verifyIssuerIdentifier("credential_issuer", m.CredentialIssuer); err != nil {
		return err
	}

	endpoints := []struct{ name, value string }{
		{"credential_endpoint", m.CredentialEndpoint},
		{"batch_credential_endpoint", m.BatchCredentialEndpoint},
		{"notification_endpoint", m.NotificationEndpoint},
		{"deferred_credential_endpoint", m.DeferredCredentialEndpoint},
	}
	for _, e := range endpoints {
		if e.value == "" {
			continue
		}
		if err := verifyEndpoint(e.name, e.value); err != nil {
			return err
		}
	}

	for id, raw := range m.CredentialConfigurationsSupported {
		if !json.Valid(raw) {
			return fmt.Errorf("credential configuration %q is not valid JSON", id)
		}
	}

	return m.Display.verify()
}

// Verify checks the authorization server metadata for required fields, endpoint URLs and
// algorithm names.
func (m *OAuthMetadata) Verify() error {
	if err := verifyIssuerIdentifier("issuer", m.Issuer); err != nil {
		return err
	}

	endpoints := []struct{ name, value string }{
		{"authorization_endpoint", m.AuthorizationEndpoint},
		{"token_endpoint", m.TokenEndpoint},
		{"userinfo_endpoint", m.UserinfoEndpoint},
		{"jwks_uri", m.JwksUri},
		{"registration_endpoint", m.RegistrationEndpoint},
	}
	for _, e := range endpoints {
		if err := verifyEndpoint(e.name, e.value); err != nil {
			return err
		}
	}

	if len(m.ResponseTypesSupported) == 0 {
		return fmt.Errorf("missing 'response_types_supported'")
	}
	return verifySigningAlgorithms("token_endpoint_auth_signing_alg_values_supported", m.TokenEndpointAuthSigningAlgValuesSupported)
}

func verifyIssuerIdentifier(name, value string) error {
	if err := verifyEndpoint(name, value); err != nil {
		return err
	}
	u, _ := url.Parse(value)
	if u.RawQuery != "" {
		return fmt.Errorf("invalid '%s' URL %q: query is not allowed", name, value)
	}
	return nil
}

func verifyEndpoint(name, value string) error {
	if value == "" {
		return fmt.Errorf("missing '%s'", name)
	}
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid '%s' URL %q", name, value)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("invalid '%s' URL %q: must be absolute", name, value)
	}
	if u.Fragment != "" {
		return fmt.Errorf("invalid '%s' URL %q: fragment is not allowed", name, value)
	}
	return nil
}

func verifySigningAlgorithms(name string, algs []string) error {
	for _, alg := range algs {
		if _, ok := jwa.LookupSignatureAlgorithm(alg); !ok {
			return fmt.Errorf("unsupported signing algorithm %q in '%s'", alg, name)
		}
	}
	return nil
}

func (r *RemoteImage) verify() error {
	if r.Uri == "" {
		return fmt.Errorf("missing 'uri'")
	}
	if _, err := url.Parse(r.Uri); err != nil {
		return fmt.Errorf("invalid 'uri': %v", err)
	}
	return nil
}

func validateLocale(availableTranslations []Translateable, translation Translateable) error {
	// Validate that the locale is a valid BCP 47 language tag
	if _, err := language.Parse(translation.GetLocale()); err != nil {
		return fmt.Errorf("invalid 'locale' tag %q in 'display' item with name %q: %w", translation.GetLocale(), translation.GetName(), err)
	}

	counter := 0
	for _, existingTranslation := range availableTranslations {
		if existingTranslation.GetLocale() == translation.GetLocale() {
			counter++
		}

		if counter > 1 {
			return fmt.Errorf("duplicate 'locale' tag %q in 'display' item with name %q", translation.GetLocale(), translation.GetName())
		}
	}

	return nil
}

func (d CredentialIssuerDisplays) verify() error {
	for _, display := range d {
		if display.Name == "" {
			return fmt.Errorf("missing 'name' in 'display'")
		}
		if display.Logo != nil {
			if err := display.Logo.verify(); err != nil {
				return fmt.Errorf("invalid 'logo' in 'display': %w", err)
			}
		}
		if err := validateLocale(credentialIssuerDisplaysToTranslateableList(d), &display); err != nil {
			return err
		}
	}

	return nil
}
