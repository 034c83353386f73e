// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"sort"

	"github.com/hashicorp/oidc-rp/auth"
	"github.com/hashicorp/oidc-rp/policy"
	"github.com/hashicorp/oidc-rp/user"
)

const maxExternalAuthBody = 1 << 20

type errorResponse struct {
	Detail string `json:"detail"`
}

type userInfoResponse struct {
	UserInfo *user.User `json:"userinfo"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func (s *Server) userInfo(w http.ResponseWriter, r *http.Request) {
	u, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "You are not authenticated."})
		return
	}
	writeJSON(w, http.StatusOK, userInfoResponse{UserInfo: u})
}

// externalAuth answers an identity provider asking whether a user may finish
// logging in. 200 allows, 401 denies.
func (s *Server) externalAuth(w http.ResponseWriter, r *http.Request) {
	var in policy.Input
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxExternalAuthBody))
	if err := dec.Decode(&in); err != nil {
		s.logger.Debug("malformed external auth request", "error", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Detail: "malformed request body"})
		return
	}
	if s.externalChecker != nil {
		if err := s.externalChecker.Check(r.Context(), in); err != nil {
			switch {
			case errors.Is(err, policy.ErrDenied):
				s.logger.Info("external auth denied", "username", in.Username())
				writeJSON(w, http.StatusUnauthorized, errorResponse{Detail: "denied"})
			case errors.Is(err, policy.ErrUnavailable):
				s.logger.Error("external auth policy unavailable", "username", in.Username(), "error", err)
				writeJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "policy unavailable"})
			default:
				s.logger.Error("external auth policy failed", "username", in.Username(), "error", err)
				writeJSON(w, http.StatusInternalServerError, errorResponse{Detail: "internal error"})
			}
			return
		}
	}
	writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if len(s.healthChecks) == 0 {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
		return
	}
	names := make([]string, 0, len(s.healthChecks))
	for name := range s.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(names))}
	status := http.StatusOK
	for _, name := range names {
		if err := s.healthChecks[name](r.Context()); err != nil {
			s.logger.Warn("health check failed", "check", name, "error", err)
			resp.Checks[name] = "unavailable"
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
