package pidissuer

import (
	"net/http"

	"github.com/privacybydesign/pidissuer/eudi/openid4vci"
	"github.com/privacybydesign/pidissuer/server"
)

func (s *Server) documents(w http.ResponseWriter) *openid4vci.Documents {
	docs := s.eudiConf.Documents()
	if docs == nil {
		server.WriteError(w, server.ErrorNotReady, "no issuer metadata published")
	}
	return docs
}

func (s *Server) handleCredentialIssuerMetadata(w http.ResponseWriter, r *http.Request) {
	if docs := s.documents(w); docs != nil {
		server.WriteJson(w, docs.CredentialIssuer)
	}
}

func (s *Server) handleOAuthMetadata(w http.ResponseWriter, r *http.Request) {
	if docs := s.documents(w); docs != nil {
		server.WriteJson(w, docs.OAuth)
	}
}

func (s *Server) handleOpenIDConfiguration(w http.ResponseWriter, r *http.Request) {
	if docs := s.documents(w); docs != nil {
		server.WriteJson(w, docs.OpenIDConfiguration)
	}
}

func (s *Server) handleTrustAnchors(w http.ResponseWriter, r *http.Request) {
	set, err := s.eudiConf.TrustAnchors.Snapshot().JWKSet()
	if err != nil {
		server.WriteError(w, server.ErrorUnknown, err.Error())
		return
	}
	server.WriteJson(w, set)
}
