package openid4vci

import (
	"encoding/json"
	"strings"
	"testing"
)

func validCredentialIssuerMetadata() *CredentialIssuerMetadata {
	return &CredentialIssuerMetadata{
		CredentialIssuer:   "https://issuer.example/pid",
		CredentialEndpoint: "https://issuer.example/pid/credential",
		Display: CredentialIssuerDisplays{
			{Display: Display{Name: "Yivi", Locale: "en"}},
		},
		CredentialConfigurationsSupported: map[string]json.RawMessage{},
	}
}

func TestCredentialIssuerMetadata_Verify(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(m *CredentialIssuerMetadata)
		wantErr string
	}{
		{"valid", func(m *CredentialIssuerMetadata) {}, ""},
		{"missing issuer", func(m *CredentialIssuerMetadata) { m.CredentialIssuer = "" }, "missing 'credential_issuer'"},
		{"missing credential endpoint", func(m *CredentialIssuerMetadata) { m.CredentialEndpoint = "" }, "missing 'credential_endpoint'"},
		{"nil configurations", func(m *CredentialIssuerMetadata) { m.CredentialConfigurationsSupported = nil }, "missing 'credential_configurations_supported'"},
		{"issuer with query", func(m *CredentialIssuerMetadata) { m.CredentialIssuer = "https://issuer.example/pid?x=1" }, "query is not allowed"},
		{"relative credential endpoint", func(m *CredentialIssuerMetadata) { m.CredentialEndpoint = "/credential" }, "must be absolute"},
		{"endpoint with fragment", func(m *CredentialIssuerMetadata) { m.NotificationEndpoint = "https://issuer.example/n#frag" }, "fragment is not allowed"},
		{"invalid configuration json", func(m *CredentialIssuerMetadata) {
			m.CredentialConfigurationsSupported["broken"] = json.RawMessage(`{"format":`)
		}, `credential configuration "broken" is not valid JSON`},
		{"invalid locale", func(m *CredentialIssuerMetadata) { m.Display[0].Locale = "not a locale" }, "invalid 'locale' tag"},
		{"duplicate locale", func(m *CredentialIssuerMetadata) {
			m.Display = append(m.Display, CredentialIssuerDisplay{Display: Display{Name: "Yivi 2", Locale: "en"}})
		}, "duplicate 'locale' tag"},
		{"display without name", func(m *CredentialIssuerMetadata) { m.Display[0].Name = "" }, "missing 'name'"},
		{"logo without uri", func(m *CredentialIssuerMetadata) { m.Display[0].Logo = &RemoteImage{AltText: "logo"} }, "missing 'uri'"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validCredentialIssuerMetadata()
			tt.modify(m)
			err := m.Verify()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Verify() unexpected error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Verify() error = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestOAuthMetadata_Verify_SigningAlgorithm(t *testing.T) {
	service, err := ParseServiceURL("https://issuer.example")
	if err != nil {
		t.Fatal(err)
	}
	m := buildOAuthMetadata(service)
	if err := m.Verify(); err != nil {
		t.Fatalf("Verify() unexpected error = %v", err)
	}

	m.TokenEndpointAuthSigningAlgValuesSupported = []string{"invalid-alg"}
	err = m.Verify()
	want := `unsupported signing algorithm "invalid-alg" in 'token_endpoint_auth_signing_alg_values_supported'`
	if err == nil || err.Error() != want {
		t.Errorf("Verify() error = %v, want %q", err, want)
	}
}

func TestCredentialFormatIdentifier_Known(t *testing.T) {
	tests := []struct {
		format CredentialFormatIdentifier
		want   bool
	}{
		{CredentialFormatIdentifier_W3CVC, true},
		{CredentialFormatIdentifier_W3CVCLD, true},
		{CredentialFormatIdentifier_W3CVCLD_ProofSuite, true},
		{CredentialFormatIdentifier_MsoMdoc, true},
		{CredentialFormatIdentifier_SdJwtVc, true},
		{CredentialFormatIdentifier_VcSdJwt, true},
		{"unsupported_format", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := tt.format.Known(); got != tt.want {
				t.Errorf("Known() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateLocale(t *testing.T) {
	displays := []CredentialIssuerDisplay{
		{Display: Display{Name: "Yivi", Locale: "en"}},
		{Display: Display{Name: "Yivi", Locale: "nl-NL"}},
	}
	list := credentialIssuerDisplaysToTranslateableList(displays)
	for i := range displays {
		if err := validateLocale(list, &displays[i]); err != nil {
			t.Errorf("validateLocale(%q) unexpected error = %v", displays[i].Locale, err)
		}
	}

	invalid := &Display{Name: "Yivi", Locale: "!!"}
	if err := validateLocale(list, invalid); err == nil {
		t.Errorf("validateLocale(%q) expected error", invalid.Locale)
	}
}
