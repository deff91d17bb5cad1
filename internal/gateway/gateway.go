// Package gateway exposes the setup flow over HTTP for local tooling.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/KafClaw/XmtpClaw/internal/setup"
)

// Method names for the RPC-style registry. The HTTP routes map onto the
// same handlers.
const (
	MethodSetup         = "xmtp.setup"
	MethodSetupStatus   = "xmtp.setupStatus"
	MethodSetupComplete = "xmtp.setupComplete"
	MethodSetupCancel   = "xmtp.setupCancel"
)

// SetupRequest is the wire form of a setup invocation.
type SetupRequest struct {
	AccountID       string `json:"account_id"`
	WalletKey       string `json:"wallet_key,omitempty"`
	DBEncryptionKey string `json:"db_encryption_key,omitempty"`
	Env             string `json:"env,omitempty"`
}

// Server serves the setup API for one controller.
type Server struct {
	controller *Controller
	version    string
	startedAt  time.Time
	authToken  string
}

// Controller narrows the setup controller surface the gateway needs.
type Controller struct {
	Begin    func(ctx context.Context, req setup.Request) (setup.Status, error)
	Status   func() setup.Status
	Complete func() (setup.Status, error)
	Cancel   func() setup.Status
}

// ControllerAdapter binds a concrete setup controller with fixed
// provisioning defaults.
func ControllerAdapter(c *setup.Controller, stateRoot, defaultEnv string) *Controller {
	return &Controller{
		Begin: func(ctx context.Context, req setup.Request) (setup.Status, error) {
			if req.Env == "" {
				req.Env = defaultEnv
			}
			req.StateRoot = stateRoot
			return c.Begin(ctx, req)
		},
		Status:   c.Status,
		Complete: c.Complete,
		Cancel:   c.Cancel,
	}
}

// NewServer creates the gateway server. An empty authToken disables
// request authentication.
func NewServer(controller *Controller, version, authToken string) *Server {
	return &Server{
		controller: controller,
		version:    version,
		startedAt:  time.Now(),
		authToken:  authToken,
	}
}

// Methods returns the RPC registry: method name to invocation handler.
// Params is the raw JSON body of the invocation, which may be empty.
func (s *Server) Methods() map[string]func(ctx context.Context, params json.RawMessage) (any, error) {
	return map[string]func(ctx context.Context, params json.RawMessage) (any, error){
		MethodSetup: func(ctx context.Context, params json.RawMessage) (any, error) {
			var req SetupRequest
			if len(params) > 0 {
				if err := json.Unmarshal(params, &req); err != nil {
					return nil, fmt.Errorf("invalid params: %w", err)
				}
			}
			return s.controller.Begin(ctx, setup.Request{
				AccountID:       accountOrDefault(req.AccountID),
				WalletKey:       req.WalletKey,
				DBEncryptionKey: req.DBEncryptionKey,
				Env:             req.Env,
			})
		},
		MethodSetupStatus: func(ctx context.Context, params json.RawMessage) (any, error) {
			return s.controller.Status(), nil
		},
		MethodSetupComplete: func(ctx context.Context, params json.RawMessage) (any, error) {
			return s.controller.Complete()
		},
		MethodSetupCancel: func(ctx context.Context, params json.RawMessage) (any, error) {
			return s.controller.Cancel(), nil
		},
	}
}

// Handler builds the HTTP mux for the setup API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"version":        s.version,
			"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
			"setup_state":    s.controller.Status().State,
		})
	})

	mux.HandleFunc("/api/v1/xmtp/setup", s.authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		var req SetupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid body")
			return
		}
		st, err := s.controller.Begin(r.Context(), setup.Request{
			AccountID:       accountOrDefault(req.AccountID),
			WalletKey:       req.WalletKey,
			DBEncryptionKey: req.DBEncryptionKey,
			Env:             req.Env,
		})
		if err != nil {
			writeStatusError(w, st, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}))

	mux.HandleFunc("/api/v1/xmtp/setup/status", s.authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, s.controller.Status())
	}))

	mux.HandleFunc("/api/v1/xmtp/setup/complete", s.authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		st, err := s.controller.Complete()
		if err != nil {
			writeStatusError(w, st, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
	}))

	mux.HandleFunc("/api/v1/xmtp/setup/cancel", s.authed(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, s.controller.Cancel())
	}))

	return mux
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken != "" {
			token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if token != s.authToken {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func accountOrDefault(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return "default"
	}
	return id
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeStatusError(w http.ResponseWriter, st setup.Status, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, setup.ErrSetupConflict):
		code = http.StatusConflict
	case errors.Is(err, setup.ErrNotAwaiting):
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]any{"error": err.Error(), "status": st})
}
