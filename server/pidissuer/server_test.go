package pidissuer

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/privacybydesign/pidissuer/server"
	"github.com/privacybydesign/pidissuer/testdata"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
)

func setupServer(t *testing.T, url string) (*Server, *server.Configuration) {
	logger, _ := logtest.NewNullLogger()
	conf := &server.Configuration{
		URL:                      url,
		OrganizationID:           "Yivi",
		TrustedCAsPath:           t.TempDir(),
		CredentialsSupportedPath: t.TempDir(),
		RequireTrustAnchors:      true,
		EnableMetrics:            true,
		Logger:                   logger,
	}
	require.NoError(t, conf.Check())

	_, cert := testdata.CreateRootCertificate(t, testdata.CreateDistinguishedName("ROOT"), testdata.KeyType_P256)
	testdata.WriteCertAsPemFile(t, filepath.Join(conf.TrustedCAsPath, "root.pem"), cert)
	writeDescriptors(t, conf, "pid.json", `{"eu.europa.ec.eudi.pid_mdoc": {"format": "mso_mdoc"}}`)

	s, err := New(conf)
	require.NoError(t, err)
	t.Cleanup(s.Stop)
	return s, conf
}

func writeDescriptors(t *testing.T, conf *server.Configuration, name, content string) {
	require.NoError(t, os.WriteFile(filepath.Join(conf.CredentialsSupportedPath, name), []byte(content), 0600))
}

func get(t *testing.T, ts *httptest.Server, path string) (int, []byte) {
	res, err := http.Get(ts.URL + path)
	require.NoError(t, err)
	defer res.Body.Close()
	bts, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res.StatusCode, bts
}

func getJson(t *testing.T, ts *httptest.Server, path string) map[string]interface{} {
	status, bts := get(t, ts, path)
	require.Equal(t, http.StatusOK, status, string(bts))
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(bts, &doc))
	return doc
}

func TestServer(t *testing.T) {
	s, conf := setupServer(t, "https://issuer.example/pid/")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	t.Run("credential issuer metadata", func(t *testing.T) {
		doc := getJson(t, ts, "/pid"+PathCredentialIssuerMetadata)
		require.Equal(t, "https://issuer.example/pid", doc["credential_issuer"])
		require.Equal(t, "https://issuer.example/pid/credential", doc["credential_endpoint"])
		require.Contains(t, doc["credential_configurations_supported"], "eu.europa.ec.eudi.pid_mdoc")
	})

	t.Run("oauth metadata", func(t *testing.T) {
		doc := getJson(t, ts, "/pid"+PathOAuthMetadata)
		require.Equal(t, "https://issuer.example/pid/authorizationV3", doc["authorization_endpoint"])
	})

	t.Run("openid configuration", func(t *testing.T) {
		doc := getJson(t, ts, "/pid"+PathOpenIDConfiguration)
		require.Equal(t, true, doc["claims_parameter_supported"])
	})

	t.Run("trust anchors", func(t *testing.T) {
		doc := getJson(t, ts, "/pid"+PathTrustAnchors)
		require.Len(t, doc["keys"], 1)
	})

	t.Run("documents are served below the issuer path only", func(t *testing.T) {
		status, _ := get(t, ts, PathCredentialIssuerMetadata)
		require.Equal(t, http.StatusNotFound, status)
	})

	t.Run("unsupported method", func(t *testing.T) {
		res, err := http.Post(ts.URL+"/pid"+PathOAuthMetadata, "application/json", nil)
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusMethodNotAllowed, res.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		status, bts := get(t, ts, PathMetrics)
		require.Equal(t, http.StatusOK, status)
		require.Contains(t, string(bts), "pidissuer_trust_anchors 1")
		require.Contains(t, string(bts), "pidissuer_credential_configurations 1")
	})

	t.Run("reload serves new descriptors", func(t *testing.T) {
		writeDescriptors(t, conf, "mdl.json", `{"org.iso.18013.5.1.mDL": {"format": "mso_mdoc"}}`)
		s.Reload()

		doc := getJson(t, ts, "/pid"+PathCredentialIssuerMetadata)
		configurations := doc["credential_configurations_supported"].(map[string]interface{})
		require.Len(t, configurations, 2)
	})

	t.Run("failed reload keeps documents", func(t *testing.T) {
		before := s.EudiConfiguration().Documents()
		require.NoError(t, os.Remove(filepath.Join(conf.TrustedCAsPath, "root.pem")))
		s.Reload()
		require.Same(t, before, s.EudiConfiguration().Documents())

		status, _ := get(t, ts, "/pid"+PathCredentialIssuerMetadata)
		require.Equal(t, http.StatusOK, status)
	})
}

func TestServerAtRoot(t *testing.T) {
	s, _ := setupServer(t, "https://issuer.example")
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	doc := getJson(t, ts, PathCredentialIssuerMetadata)
	require.Equal(t, "https://issuer.example", doc["credential_issuer"])
	require.Equal(t, "https://issuer.example/credential", doc["credential_endpoint"])
}

func TestNewRequiresTrustAnchors(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	conf := &server.Configuration{
		URL:                      "https://issuer.example",
		OrganizationID:           "Yivi",
		TrustedCAsPath:           t.TempDir(),
		CredentialsSupportedPath: t.TempDir(),
		RequireTrustAnchors:      true,
		Logger:                   logger,
	}
	require.NoError(t, conf.Check())

	_, err := New(conf)
	require.Error(t, err)
}

func TestServerWithoutMetrics(t *testing.T) {
	s, conf := setupServer(t, "https://issuer.example")
	conf.EnableMetrics = false
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	status, _ := get(t, ts, PathMetrics)
	require.Equal(t, http.StatusNotFound, status)
}

func TestStopTwice(t *testing.T) {
	s, _ := setupServer(t, "http://localhost/pid")

	// What Start sets up before serving
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})
	go func() {
		<-s.stop
		close(s.stopped)
	}()

	s.Stop()
	require.NotPanics(t, s.Stop)
}
