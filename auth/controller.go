// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/jonboulle/clockwork"
	"golang.org/x/text/language"

	"github.com/hashicorp/oidc-rp/oidc"
	"github.com/hashicorp/oidc-rp/oidc/callback"
	"github.com/hashicorp/oidc-rp/policy"
	"github.com/hashicorp/oidc-rp/session"
	"github.com/hashicorp/oidc-rp/user"
)

// TokenVerifier verifies a raw id_token. *oidc.Verifier is the production
// implementation.
type TokenVerifier interface {
	Verify(ctx context.Context, raw oidc.IdToken) (*oidc.IdentityToken, error)
}

var _ TokenVerifier = (*oidc.Verifier)(nil)

// maxUILocales bounds the languages forwarded to the provider.
const maxUILocales = 5

// Controller runs the login flow against one provider and guards endpoints
// on the resulting sessions.
//
// A session holds only the raw id_token obtained at login. Every guarded
// request verifies that token again against the provider's current keys and
// the current time, so a session ends when its id_token expires.
type Controller struct {
	provider    *oidc.Provider
	verifier    TokenVerifier
	sessions    session.Store
	requests    session.RequestStore
	users       user.Directory
	cookies     *session.CookieCodec
	policy      policy.Checker
	clock       clockwork.Clock
	requestTTL  time.Duration
	landingPath string
	cache       *verifiedCache
	metrics     *metrics
	logger      hclog.Logger

	callback http.HandlerFunc
}

// NewController creates a Controller.
//
// Supported options: WithLogger, WithRegisterer, WithClock, WithPolicy,
// WithVerifier, WithRequestTTL, WithLandingPath, WithVerifiedTokenCache
func NewController(p *oidc.Provider, sessions session.Store, requests session.RequestStore, users user.Directory, cookies *session.CookieCodec, opt ...Option) (*Controller, error) {
	const op = "auth.NewController"
	switch {
	case p == nil:
		return nil, fmt.Errorf("%s: provider is nil: %w", op, oidc.ErrNilParameter)
	case sessions == nil:
		return nil, fmt.Errorf("%s: session store is nil: %w", op, oidc.ErrNilParameter)
	case requests == nil:
		return nil, fmt.Errorf("%s: request store is nil: %w", op, oidc.ErrNilParameter)
	case users == nil:
		return nil, fmt.Errorf("%s: user directory is nil: %w", op, oidc.ErrNilParameter)
	case cookies == nil:
		return nil, fmt.Errorf("%s: cookie codec is nil: %w", op, oidc.ErrNilParameter)
	}
	opts := getControllerOpts(opt...)
	m, err := newMetrics(opts.withRegisterer)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	c := &Controller{
		provider:    p,
		verifier:    opts.withVerifier,
		sessions:    sessions,
		requests:    requests,
		users:       users,
		cookies:     cookies,
		policy:      opts.withPolicy,
		clock:       opts.withClock,
		requestTTL:  opts.withRequestTTL,
		landingPath: opts.withLandingPath,
		metrics:     m,
		logger:      opts.withLogger,
	}
	if c.verifier == nil {
		c.verifier = p.Verifier()
	}
	if opts.withVerifiedTokenCache {
		c.cache = newVerifiedCache(c.clock)
	}
	c.callback, err = callback.AuthCode(p, requests, c.loginSucceeded, c.loginFailed, oidc.WithNow(c.clock.Now))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// Login starts an authentication attempt: it records a new oidc.Request, binds
// its state to the browser with a short-lived cookie and redirects the browser
// to the provider. Sessions are left untouched.
func (c *Controller) Login(w http.ResponseWriter, r *http.Request) {
	const op = "Controller.Login"
	ctx := r.Context()
	req, err := oidc.NewRequest(c.requestTTL, c.provider.RedirectURL(),
		oidc.WithNow(c.clock.Now),
		oidc.WithUILocales(uiLocales(r)...),
	)
	if err != nil {
		c.logger.Error("unable to create authentication request", "op", op, "error", err)
		writeError(w, KindInternal)
		return
	}
	authURL, err := c.provider.AuthURL(ctx, req)
	if err != nil {
		kind := KindInternal
		if errors.Is(err, oidc.ErrProviderUnavailable) {
			kind = KindProviderUnavailable
		}
		c.logger.Error("unable to build authorization URL", "op", op, "error", err)
		writeError(w, kind)
		return
	}
	if err := c.requests.Write(ctx, req); err != nil {
		c.logger.Error("unable to store authentication request", "op", op, "error", err)
		writeError(w, KindInternal)
		return
	}
	if err := c.cookies.SetState(w, req.State, c.requestTTL); err != nil {
		c.logger.Error("unable to set pending login cookie", "op", op, "error", err)
		writeError(w, KindInternal)
		return
	}
	c.logger.Debug("redirecting to provider", "state", StatePendingProviderRedirect)
	http.Redirect(w, r, authURL, http.StatusFound)
}

// uiLocales returns the languages of the request's Accept-Language header,
// most preferred first.
func uiLocales(r *http.Request) []language.Tag {
	header := r.Header.Get("Accept-Language")
	if header == "" {
		return nil
	}
	tags, _, err := language.ParseAcceptLanguage(header)
	if err != nil {
		return nil
	}
	if len(tags) > maxUILocales {
		tags = tags[:maxUILocales]
	}
	return tags
}

// Callback completes an authentication attempt when the provider redirects
// the browser back. On success the user is recorded, a session is created
// and the browser is sent to the landing path.
//
// The state must be the one bound to this browser by Login, otherwise the
// pending request is left alone and the callback fails. The binding cookie is
// cleared either way.
//
// Failures respond with 401 for anything attributable to the attempt (an
// error from the provider, a state this browser didn't start, an unknown or
// expired state, a rejected code, an id_token that fails verification, or a
// policy denial), 502 when the provider can't be reached and 500 for protocol
// violations.
func (c *Controller) Callback(w http.ResponseWriter, r *http.Request) {
	c.cookies.ClearState(w)
	if r.FormValue("error") == "" && !c.cookies.MatchState(r, r.FormValue("state")) {
		c.logger.Info("callback state is not bound to this browser", "state", StatePendingCallback)
		c.metrics.callback.WithLabelValues(resultUnauthenticated).Inc()
		writeError(w, KindUnauthenticated)
		return
	}
	c.callback(w, r)
}

func (c *Controller) loginSucceeded(state string, t *oidc.Token, w http.ResponseWriter, r *http.Request) {
	const op = "Controller.Callback"
	ctx := r.Context()
	u := user.User{ID: t.Subject(), Name: t.DisplayName()}

	if c.policy != nil {
		if err := c.policy.Check(ctx, policy.InputFromToken(t)); err != nil {
			if errors.Is(err, policy.ErrDenied) {
				c.logger.Info("login denied by policy", "user_id", u.ID, "name", u.Name)
				c.metrics.callback.WithLabelValues(resultDenied).Inc()
				writeError(w, KindUnauthenticated)
				return
			}
			c.logger.Error("policy check failed", "op", op, "user_id", u.ID, "error", err)
			c.metrics.callback.WithLabelValues(resultError).Inc()
			writeError(w, KindInternal)
			return
		}
	}

	stored, created, err := c.users.Upsert(ctx, u)
	if err != nil {
		c.logger.Error("unable to record user", "op", op, "user_id", u.ID, "error", err)
		c.metrics.callback.WithLabelValues(resultError).Inc()
		writeError(w, KindInternal)
		return
	}
	if created {
		c.logger.Info("new user created", "user_id", stored.ID, "name", stored.Name)
	} else {
		c.logger.Info("the user exists; skipped registration", "user_id", stored.ID, "name", stored.Name)
	}

	sid, err := session.NewID()
	if err != nil {
		c.logger.Error("unable to create session id", "op", op, "error", err)
		c.metrics.callback.WithLabelValues(resultError).Inc()
		writeError(w, KindInternal)
		return
	}
	if err := c.sessions.Put(ctx, sid, t.IdToken); err != nil {
		c.logger.Error("unable to store session", "op", op, "user_id", stored.ID, "error", err)
		c.metrics.callback.WithLabelValues(resultError).Inc()
		writeError(w, KindInternal)
		return
	}
	if err := c.cookies.SetSession(w, sid); err != nil {
		c.logger.Error("unable to set session cookie", "op", op, "error", err)
		c.metrics.callback.WithLabelValues(resultError).Inc()
		writeError(w, KindInternal)
		return
	}
	if prev, err := c.cookies.SessionID(r); err == nil && prev != sid {
		if err := c.sessions.Delete(ctx, prev); err != nil {
			c.logger.Warn("unable to delete replaced session", "op", op, "user_id", stored.ID, "error", err)
		}
	}
	c.metrics.callback.WithLabelValues(resultSuccess).Inc()
	c.logger.Info("successful log in", "user_id", stored.ID, "name", stored.Name, "state", StateAuthenticated)
	http.Redirect(w, r, c.landingPath, http.StatusFound)
}

func (c *Controller) loginFailed(state string, respErr *callback.AuthenErrorResponse, e error, w http.ResponseWriter, r *http.Request) {
	if respErr != nil {
		c.logger.Info("provider returned an authentication error", "error", respErr.Error, "description", respErr.Description)
		c.metrics.callback.WithLabelValues(resultProviderError).Inc()
		writeError(w, KindUnauthenticated)
		return
	}
	switch {
	case errors.Is(e, oidc.ErrProviderUnavailable):
		c.logger.Error("provider unavailable during callback", "error", e)
		c.metrics.callback.WithLabelValues(resultProviderUnavailable).Inc()
		writeJSONError(w, http.StatusBadGateway, KindProviderUnavailable)
	case errors.Is(e, oidc.ErrProtocol):
		c.logger.Error("provider protocol violation", "error", e)
		c.metrics.callback.WithLabelValues(resultProtocolError).Inc()
		writeError(w, KindProtocol)
	case errors.Is(e, oidc.ErrNotFound),
		errors.Is(e, oidc.ErrExpiredRequest),
		errors.Is(e, oidc.ErrResponseStateInvalid),
		errors.Is(e, oidc.ErrLoginFailed),
		errors.Is(e, oidc.ErrInvalidToken),
		errors.Is(e, oidc.ErrInvalidNonce),
		errors.Is(e, oidc.ErrInvalidParameter):
		c.logger.Info("authentication failed", "reason", oidc.ReasonOf(e), "error", e)
		c.metrics.callback.WithLabelValues(resultUnauthenticated).Inc()
		writeError(w, KindUnauthenticated)
	default:
		c.logger.Error("callback failed", "error", e)
		c.metrics.callback.WithLabelValues(resultError).Inc()
		writeError(w, KindInternal)
	}
}

// Guard resolves sessionID to the user it was created for. The session's
// id_token is verified again (unless a cached verification is still valid)
// and its subject must name a known user. Every error is an *Error.
func (c *Controller) Guard(ctx context.Context, sessionID string) (*user.User, error) {
	const op = "Controller.Guard"
	u, kind, err := c.guard(ctx, sessionID)
	if err != nil {
		switch kind {
		case KindUnauthenticated:
			c.metrics.guard.WithLabelValues(resultUnauthenticated).Inc()
		case KindProviderUnavailable:
			c.metrics.guard.WithLabelValues(resultProviderUnavailable).Inc()
		default:
			c.metrics.guard.WithLabelValues(resultError).Inc()
		}
		return nil, &Error{Kind: kind, Op: op, Err: err}
	}
	c.metrics.guard.WithLabelValues(resultAllowed).Inc()
	return u, nil
}

func (c *Controller) guard(ctx context.Context, sessionID string) (*user.User, Kind, error) {
	if sessionID == "" {
		return nil, KindUnauthenticated, session.ErrNoSession
	}
	raw, err := c.sessions.Get(ctx, sessionID)
	switch {
	case errors.Is(err, session.ErrNotFound):
		return nil, KindUnauthenticated, err
	case err != nil:
		return nil, KindInternal, err
	}

	identity, err := c.verify(ctx, raw)
	switch {
	case errors.Is(err, oidc.ErrProviderUnavailable):
		return nil, KindProviderUnavailable, err
	case err != nil:
		reason := oidc.ReasonOf(err)
		if reason == oidc.ReasonExpired {
			c.logger.Debug("session id_token rejected", "reason", reason, "state", StateExpired)
		} else {
			c.logger.Debug("session id_token rejected", "reason", reason)
		}
		return nil, KindUnauthenticated, err
	}

	u, err := c.users.FindBySubject(ctx, identity.Subject)
	switch {
	case errors.Is(err, user.ErrNotFound):
		return nil, KindUnauthenticated, err
	case err != nil:
		return nil, KindInternal, err
	}
	return u, KindUnknown, nil
}

func (c *Controller) verify(ctx context.Context, raw oidc.IdToken) (*oidc.IdentityToken, error) {
	if c.cache != nil {
		if tk, ok := c.cache.get(raw); ok {
			return tk, nil
		}
	}
	tk, err := c.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.put(tk)
	}
	return tk, nil
}

// RequireAuth only lets requests with a valid session through to next, with
// the session's user in the request context (see UserFromContext). Other
// requests get the status of the guard's error Kind.
func (c *Controller) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sid, err := c.cookies.SessionID(r)
		if err != nil && errors.Is(err, session.ErrInvalidCookie) {
			c.logger.Debug("ignoring invalid session cookie", "error", err)
		}
		u, err := c.Guard(r.Context(), sid)
		if err != nil {
			kind := KindOf(err)
			if kind != KindUnauthenticated {
				c.logger.Error("unable to authenticate request", "path", r.URL.Path, "error", err)
			}
			writeError(w, kind)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), u)))
	})
}

// Logout ends the session of the request and sends the browser to the
// landing path. It must be behind RequireAuth. The provider's own session is
// left alone.
func (c *Controller) Logout(w http.ResponseWriter, r *http.Request) {
	const op = "Controller.Logout"
	u, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, KindUnauthenticated)
		return
	}
	if sid, err := c.cookies.SessionID(r); err == nil {
		if err := c.sessions.Delete(r.Context(), sid); err != nil {
			c.logger.Error("unable to delete session", "op", op, "user_id", u.ID, "error", err)
			writeError(w, KindInternal)
			return
		}
	}
	c.cookies.Clear(w)
	c.logger.Info("a user logged out", "user_id", u.ID, "name", u.Name, "state", StateLoggedOut)
	http.Redirect(w, r, c.landingPath, http.StatusFound)
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, kind Kind) {
	writeJSONError(w, kind.StatusCode(), kind)
}

func writeJSONError(w http.ResponseWriter, status int, kind Kind) {
	detail := kind.String()
	if kind == KindUnauthenticated {
		detail = "You are not authenticated."
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Detail: detail})
}
