// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package oidc

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/stretchr/testify/require"
)

// TestProvider is local server that supports test provider capabilities which
// make writing tests much easier.  Most of this is from Consul's oauthtest
// package with a few changes so it could become part of this package's public
// testing API.  A big thanks to the original contributors to Consul's oauthtest
// package.
//
// It serves discovery, a JWKS, an authorization endpoint which records the
// nonce and PKCE challenge it receives, a token endpoint which enforces them,
// and a userinfo endpoint.
type TestProvider struct {
	httpServer *httptest.Server
	caCert     string

	mu                  sync.Mutex
	signingKeys         []testSigningKey
	allowedRedirectURIs []string
	replySubject        string
	replyUserinfo       map[string]interface{}
	userinfoSubject     string
	clientID            string
	clientSecret        string
	expectedAuthCode    string
	expectedAuthNonce   string
	authNonce           string
	authCodeChallenge   string
	issuedAccessToken   string
	customClaims        map[string]interface{}
	customAudience      []string
	customIssuer        string
	idTokenTTL          time.Duration
	omitIDToken         bool
	disableUserInfo     bool
	disableDiscovery    bool
	disableJWKS         bool
	tokenStatus         int
	userinfoStatus      int
	discoveryRequests   int
	jwksRequests        int
	tokenRequests       int
	nowFunc             func() time.Time

	t *testing.T
}

type testSigningKey struct {
	id   string
	pub  string
	priv string
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TLS TestProvider on a random local
// port. It's stopped when the test completes.
func StartTestProvider(t *testing.T) *TestProvider {
	t.Helper()
	require := require.New(t)

	p := &TestProvider{
		replySubject: "r3qXcK2bix9eFECzsU3Sbmh0K16fatW6@clients",
		replyUserinfo: map[string]interface{}{
			"color":       "red",
			"temperature": "76",
			"flavor":      "umami",
		},
		expectedAuthCode: "test-auth-code",
		idTokenTTL:       time.Minute,
		nowFunc:          time.Now,
		t:                t,
	}
	p.signingKeys = []testSigningKey{p.newSigningKey(t, 1)}

	p.httpServer = httptest.NewUnstartedServer(p)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.StartTLS()
	t.Cleanup(p.httpServer.Close)

	cert := p.httpServer.Certificate()

	var buf bytes.Buffer
	err := pem.Encode(&buf, &pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
	require.NoError(err)
	p.caCert = buf.String()

	return p
}

func (p *TestProvider) newSigningKey(t *testing.T, n int) testSigningKey {
	t.Helper()
	pub, priv := TestGenerateKeys(t)
	return testSigningKey{id: fmt.Sprintf("test-key-%d", n), pub: pub, priv: priv}
}

// SetClientCreds is for configuring the client information required for the
// OIDC workflows.
func (p *TestProvider) SetClientCreds(clientID, clientSecret string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
	p.clientSecret = clientSecret
}

// SetExpectedAuthCode configures the auth code to return from /auth and the
// allowed auth code for /token.
func (p *TestProvider) SetExpectedAuthCode(code string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthCode = code
}

// SetExpectedAuthNonce configures the nonce value required for /auth and
// the nonce put into the id_token when /auth wasn't visited.
func (p *TestProvider) SetExpectedAuthNonce(nonce string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.expectedAuthNonce = nonce
}

// SetAllowedRedirectURIs allows you to configure the allowed redirect URIs for
// the OIDC workflow. When none are configured any redirect URI is allowed.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetCustomClaims lets you set claims to return in the id_token. They
// override the standard claims of the same name.
func (p *TestProvider) SetCustomClaims(customClaims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customClaims = customClaims
}

// SetCustomAudience configures what audience value to embed in the JWT
// issued by the OIDC workflow. By default only the client id is used.
func (p *TestProvider) SetCustomAudience(customAudience ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customAudience = customAudience
}

// SetCustomIssuer configures the "iss" claim of issued id_tokens. The
// discovery document keeps advertising the provider's own address.
func (p *TestProvider) SetCustomIssuer(issuer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.customIssuer = issuer
}

// SetSubject configures the subject of issued id_tokens and, unless
// SetUserInfoSubject is used, of the userinfo reply.
func (p *TestProvider) SetSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replySubject = sub
}

// SetUserInfoSubject configures a userinfo "sub" which differs from the
// id_token subject.
func (p *TestProvider) SetUserInfoSubject(sub string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userinfoSubject = sub
}

// SetUserInfoReply configures the userinfo claims returned besides "sub".
func (p *TestProvider) SetUserInfoReply(claims map[string]interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.replyUserinfo = claims
}

// SetIDTokenTTL configures how long issued id_tokens are valid.
func (p *TestProvider) SetIDTokenTTL(ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.idTokenTTL = ttl
}

// SetNowFunc configures the provider's clock for "iat" and "exp".
func (p *TestProvider) SetNowFunc(now func() time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nowFunc = now
}

// OmitIDTokens turns on the omission of id_tokens from /token responses.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// DisableUserInfo removes the userinfo endpoint from the discovery document
// and makes the endpoint return 404.
func (p *TestProvider) DisableUserInfo() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableUserInfo = true
}

// SetDisableDiscovery makes the discovery endpoint return 500 while disable
// is true.
func (p *TestProvider) SetDisableDiscovery(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableDiscovery = disable
}

// SetDisableJWKS makes the JWKS endpoint return 500 while disable is true.
func (p *TestProvider) SetDisableJWKS(disable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disableJWKS = disable
}

// SetTokenStatus makes /token reply with the status and an OAuth error body.
// Zero restores normal behavior.
func (p *TestProvider) SetTokenStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokenStatus = status
}

// SetUserInfoStatus makes /userinfo reply with the status and a plain text
// body. Zero restores normal behavior.
func (p *TestProvider) SetUserInfoStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.userinfoStatus = status
}

// RotateSigningKeys creates a new signing key with a new key id which signs
// all subsequent id_tokens. When keepPrevious is false the JWKS stops
// publishing the older keys.
func (p *TestProvider) RotateSigningKeys(keepPrevious bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := p.newSigningKey(p.t, len(p.signingKeys)+1)
	if keepPrevious {
		p.signingKeys = append([]testSigningKey{k}, p.signingKeys...)
		return
	}
	p.signingKeys = []testSigningKey{k}
}

// Addr returns the current base URL for the test provider's running webserver,
// which can be used as an OIDC issuer for discovery.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// DiscoveryURL returns the URL of the provider's discovery document.
func (p *TestProvider) DiscoveryURL() string {
	return p.Addr() + "/.well-known/openid-configuration"
}

// CACert returns the pem-encoded CA certificate used by the test provider's
// HTTPS server.
func (p *TestProvider) CACert() string { return p.caCert }

// SigningKeys returns the test provider's current pem-encoded key pair and
// key id used to sign JWTs.
func (p *TestProvider) SigningKeys() (pub, priv, keyID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := p.signingKeys[0]
	return k.pub, k.priv, k.id
}

// DiscoveryRequests returns how many times the discovery document was
// requested.
func (p *TestProvider) DiscoveryRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.discoveryRequests
}

// JWKSRequests returns how many times the JWKS was requested.
func (p *TestProvider) JWKSRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jwksRequests
}

// TokenRequests returns how many requests were made to /token.
func (p *TestProvider) TokenRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenRequests
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, out interface{}) error {
	enc := json.NewEncoder(w)
	return enc.Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, req *http.Request, statusCode int, errorCode, errorMessage string) error {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}

	w.WriteHeader(statusCode)
	return p.writeJSON(w, &body)
}

// ServeHTTP implements the test provider's http.Handler.
func (p *TestProvider) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.t.Helper()

	w.Header().Set("Content-Type", "application/json")

	switch req.URL.Path {
	case "/.well-known/openid-configuration":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.discoveryRequests++
		if p.disableDiscovery {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		reply := struct {
			Issuer           string   `json:"issuer"`
			AuthEndpoint     string   `json:"authorization_endpoint"`
			TokenEndpoint    string   `json:"token_endpoint"`
			JWKSURI          string   `json:"jwks_uri"`
			UserinfoEndpoint string   `json:"userinfo_endpoint,omitempty"`
			Algorithms       []string `json:"id_token_signing_alg_values_supported"`
		}{
			Issuer:           p.Addr(),
			AuthEndpoint:     p.Addr() + "/auth",
			TokenEndpoint:    p.Addr() + "/token",
			JWKSURI:          p.Addr() + "/certs",
			UserinfoEndpoint: p.Addr() + "/userinfo",
			Algorithms:       []string{string(jose.ES256)},
		}
		if p.disableUserInfo {
			reply.UserinfoEndpoint = ""
		}

		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/auth":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		qv := req.URL.Query()

		if qv.Get("response_type") != "code" {
			p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
			return
		}
		if !slices.Contains(strings.Fields(qv.Get("scope")), "openid") {
			p.writeAuthErrorResponse(w, req, "invalid_scope", "")
			return
		}
		if p.clientID != "" && qv.Get("client_id") != p.clientID {
			p.writeAuthErrorResponse(w, req, "unauthorized_client", "")
			return
		}

		if p.expectedAuthCode == "" {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}

		nonce := qv.Get("nonce")
		if p.expectedAuthNonce != "" && p.expectedAuthNonce != nonce {
			p.writeAuthErrorResponse(w, req, "access_denied", "")
			return
		}

		state := qv.Get("state")
		if state == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
			return
		}

		if qv.Get("code_challenge_method") != "S256" || qv.Get("code_challenge") == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing S256 code_challenge")
			return
		}

		redirectURI := qv.Get("redirect_uri")
		if redirectURI == "" {
			p.writeAuthErrorResponse(w, req, "invalid_request", "missing redirect_uri parameter")
			return
		}
		p.authNonce = nonce
		p.authCodeChallenge = qv.Get("code_challenge")

		redirectURI += "?state=" + url.QueryEscape(state) +
			"&code=" + url.QueryEscape(p.expectedAuthCode)

		http.Redirect(w, req, redirectURI, http.StatusFound)

		return

	case "/certs":
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.jwksRequests++
		if p.disableJWKS {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		if err := p.writeJSON(w, testJWKS(p.t, p.signingKeys)); err != nil {
			return
		}

	case "/token":
		if req.Method != "POST" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		p.tokenRequests++
		if p.tokenStatus != 0 {
			_ = p.writeTokenErrorResponse(w, req, p.tokenStatus, "server_error", "token endpoint disabled")
			return
		}

		clientID, clientSecret, ok := req.BasicAuth()
		if ok {
			clientID, _ = url.QueryUnescape(clientID)
			clientSecret, _ = url.QueryUnescape(clientSecret)
		} else {
			clientID, clientSecret = req.FormValue("client_id"), req.FormValue("client_secret")
		}

		switch {
		case req.FormValue("grant_type") != "authorization_code":
			_ = p.writeTokenErrorResponse(w, req, http.StatusBadRequest, "invalid_request", "bad grant_type")
			return
		case p.clientID != "" && (clientID != p.clientID || clientSecret != p.clientSecret):
			_ = p.writeTokenErrorResponse(w, req, http.StatusUnauthorized, "invalid_client", "bad client credentials")
			return
		case len(p.allowedRedirectURIs) > 0 && !slices.Contains(p.allowedRedirectURIs, req.FormValue("redirect_uri")):
			_ = p.writeTokenErrorResponse(w, req, http.StatusBadRequest, "invalid_request", "redirect_uri is not allowed")
			return
		case req.FormValue("code") != p.expectedAuthCode:
			_ = p.writeTokenErrorResponse(w, req, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		case p.authCodeChallenge != "" && testS256Challenge(req.FormValue("code_verifier")) != p.authCodeChallenge:
			_ = p.writeTokenErrorResponse(w, req, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}

		now := p.nowFunc()
		stdClaims := jwt.Claims{
			Subject:  p.replySubject,
			Issuer:   p.Addr(),
			IssuedAt: jwt.NewNumericDate(now),
			Expiry:   jwt.NewNumericDate(now.Add(p.idTokenTTL)),
			Audience: jwt.Audience{p.clientID},
		}
		if p.customIssuer != "" {
			stdClaims.Issuer = p.customIssuer
		}
		if len(p.customAudience) > 0 {
			stdClaims.Audience = jwt.Audience(p.customAudience)
		}
		nonce := p.authNonce
		if nonce == "" {
			nonce = p.expectedAuthNonce
		}
		privateClaims := map[string]interface{}{}
		if nonce != "" {
			privateClaims["nonce"] = nonce
		}
		for k, v := range p.customClaims {
			privateClaims[k] = v
		}

		k := p.signingKeys[0]
		jwtData := TestSignJWT(p.t, k.priv, k.id, stdClaims, privateClaims)
		p.issuedAccessToken = "at-" + testS256Challenge(jwtData)

		reply := struct {
			AccessToken string `json:"access_token"`
			TokenType   string `json:"token_type"`
			ExpiresIn   int    `json:"expires_in"`
			IDToken     string `json:"id_token,omitempty"`
		}{
			AccessToken: p.issuedAccessToken,
			TokenType:   "Bearer",
			ExpiresIn:   int(p.idTokenTTL.Seconds()),
			IDToken:     jwtData,
		}
		if p.omitIDToken {
			reply.IDToken = ""
		}
		if err := p.writeJSON(w, &reply); err != nil {
			return
		}

	case "/userinfo":
		if p.disableUserInfo {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if req.Method != "GET" {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if p.userinfoStatus != 0 {
			w.WriteHeader(p.userinfoStatus)
			_, _ = w.Write([]byte(http.StatusText(p.userinfoStatus)))
			return
		}
		if p.issuedAccessToken == "" || req.Header.Get("Authorization") != "Bearer "+p.issuedAccessToken {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		reply := map[string]interface{}{}
		for k, v := range p.replyUserinfo {
			reply[k] = v
		}
		reply["sub"] = p.replySubject
		if p.userinfoSubject != "" {
			reply["sub"] = p.userinfoSubject
		}
		if err := p.writeJSON(w, reply); err != nil {
			return
		}

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

// testJWKS converts the pem-encoded public keys into JWKS data suitable for a
// verification endpoint response
func testJWKS(t *testing.T, keys []testSigningKey) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	set := &jose.JSONWebKeySet{}
	for _, k := range keys {
		block, _ := pem.Decode([]byte(k.pub))
		require.NotNil(block)

		pub, err := x509.ParsePKIXPublicKey(block.Bytes)
		require.NoError(err)

		set.Keys = append(set.Keys, jose.JSONWebKey{
			Key:       pub,
			KeyID:     k.id,
			Algorithm: string(jose.ES256),
			Use:       "sig",
		})
	}
	return set
}

func testS256Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
