package cmd

import (
	"testing"

	"github.com/privacybydesign/pidissuer/eudi/openid4vci"
	"github.com/privacybydesign/pidissuer/server"
	"github.com/stretchr/testify/require"
)

func TestDecodeDisplay(t *testing.T) {
	t.Run("json from flag or env", func(t *testing.T) {
		conf := &server.Configuration{}
		err := decodeDisplay(`[{"name":"Yivi","locale":"nl","logo":{"uri":"https://example.com/logo.png","alt_text":"logo"}}]`, conf)
		require.NoError(t, err)
		require.Equal(t, openid4vci.CredentialIssuerDisplays{{
			Display: openid4vci.Display{Name: "Yivi", Locale: "nl"},
			Logo:    &openid4vci.RemoteImage{Uri: "https://example.com/logo.png", AltText: "logo"},
		}}, conf.Display)
	})

	t.Run("list from config file", func(t *testing.T) {
		conf := &server.Configuration{}
		err := decodeDisplay([]interface{}{
			map[string]interface{}{"name": "Yivi", "locale": "en"},
			map[string]interface{}{"name": "Yivi NL", "locale": "nl"},
		}, conf)
		require.NoError(t, err)
		require.Len(t, conf.Display, 2)
		require.Equal(t, "Yivi NL", conf.Display[1].Name)
		require.Nil(t, conf.Display[0].Logo)
	})

	t.Run("unset", func(t *testing.T) {
		conf := &server.Configuration{}
		require.NoError(t, decodeDisplay(nil, conf))
		require.NoError(t, decodeDisplay("", conf))
		require.Empty(t, conf.Display)
	})

	t.Run("invalid json", func(t *testing.T) {
		require.Error(t, decodeDisplay(`[{"name":`, &server.Configuration{}))
	})

	t.Run("not a list", func(t *testing.T) {
		require.Error(t, decodeDisplay(42, &server.Configuration{}))
	})
}

func TestSelectDocument(t *testing.T) {
	docs, err := openid4vci.Assemble(openid4vci.ServiceConfiguration{
		URL:            "https://issuer.example.com/pid",
		OrganizationID: "Yivi",
	}, openid4vci.Descriptors{})
	require.NoError(t, err)

	doc, err := selectDocument(docs, "credential-issuer")
	require.NoError(t, err)
	require.Same(t, docs.CredentialIssuer, doc)

	doc, err = selectDocument(docs, "oauth")
	require.NoError(t, err)
	require.Same(t, docs.OAuth, doc)

	doc, err = selectDocument(docs, "openid-configuration")
	require.NoError(t, err)
	require.Same(t, docs.OpenIDConfiguration, doc)

	_, err = selectDocument(docs, "jwks")
	require.Error(t, err)
}

func TestUnderscoreFlags(t *testing.T) {
	require.NoError(t, CheckCommand.ParseFlags([]string{"--trusted_cas_path", "/etc/cas", "--reload-interval", "5"}))
	val, err := CheckCommand.Flags().GetString("trusted-cas-path")
	require.NoError(t, err)
	require.Equal(t, "/etc/cas", val)
	interval, err := CheckCommand.Flags().GetInt("reload_interval")
	require.NoError(t, err)
	require.Equal(t, 5, interval)
}
