// Package pidissuer serves the metadata of a PID issuer: the OpenID4VCI credential issuer
// metadata, the OAuth authorization server metadata and OpenID configuration, and the set
// of trusted CA certificates. The server lives in server/pidissuer and the daemon in
// server/pidissuerd.
package pidissuer

// Version of the PID issuer
const Version = "0.1.0"
