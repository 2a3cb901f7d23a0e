package openid4vci

import "fmt"

const (
	GrantTypeAuthorizationCode = "authorization_code"
	GrantTypePreAuthorizedCode = "urn:ietf:params:oauth:grant-type:pre-authorized_code"
)

// OpenIDConfiguration is the OpenID Connect discovery document served at
// /.well-known/openid-configuration.
type OpenIDConfiguration struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	UserinfoEndpoint                  string   `json:"userinfo_endpoint"`
	JwksUri                           string   `json:"jwks_uri"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
	IdTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	ClaimsParameterSupported          bool     `json:"claims_parameter_supported"`
	RequestParameterSupported         bool     `json:"request_parameter_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
}

// BuildOpenIDConfiguration builds the OpenID Connect discovery document for the service.
// It depends on the service URL only.
func BuildOpenIDConfiguration(conf ServiceConfiguration) (*OpenIDConfiguration, error) {
	service, err := ParseServiceURL(conf.URL)
	if err != nil {
		return nil, err
	}
	config := buildOpenIDConfiguration(service)
	if err := config.Verify(); err != nil {
		return nil, err
	}
	return config, nil
}

func buildOpenIDConfiguration(service *ServiceURL) *OpenIDConfiguration {
	return &OpenIDConfiguration{
		Issuer:                            service.Issuer(),
		AuthorizationEndpoint:             service.Endpoint(PathAuthorization),
		TokenEndpoint:                     service.Endpoint(PathToken),
		UserinfoEndpoint:                  service.Endpoint(PathUserinfo),
		JwksUri:                           service.Endpoint(PathJwks),
		RegistrationEndpoint:              service.Endpoint(PathRegistration),
		ResponseTypesSupported:            clone(responseTypesSupported),
		SubjectTypesSupported:             []string{"public"},
		IdTokenSigningAlgValuesSupported:  clone(signingAlgValuesSupported),
		ScopesSupported:                   clone(scopesSupported),
		GrantTypesSupported:               []string{GrantTypeAuthorizationCode, GrantTypePreAuthorizedCode},
		ClaimsParameterSupported:          true,
		RequestParameterSupported:         true,
		CodeChallengeMethodsSupported:     clone(codeChallengeMethodsSupported),
		TokenEndpointAuthMethodsSupported: clone(tokenEndpointAuthMethodsSupported),
	}
}

func (c *OpenIDConfiguration) Verify() error {
	if err := verifyIssuerIdentifier("issuer", c.Issuer); err != nil {
		return err
	}

	endpoints := []struct{ name, value string }{
		{"authorization_endpoint", c.AuthorizationEndpoint},
		{"token_endpoint", c.TokenEndpoint},
		{"userinfo_endpoint", c.UserinfoEndpoint},
		{"jwks_uri", c.JwksUri},
		{"registration_endpoint", c.RegistrationEndpoint},
	}
	for _, e := range endpoints {
		if err := verifyEndpoint(e.name, e.value); err != nil {
			return err
		}
	}

	if len(c.ResponseTypesSupported) == 0 {
		return fmt.Errorf("missing 'response_types_supported'")
	}
	if len(c.SubjectTypesSupported) == 0 {
		return fmt.Errorf("missing 'subject_types_supported'")
	}
	return verifySigningAlgorithms("id_token_signing_alg_values_supported", c.IdTokenSigningAlgValuesSupported)
}
