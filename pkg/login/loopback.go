package login

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fxsound/soundstudio/pkg/errs"
	"github.com/go-chi/chi"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const CallbackPath = "/callback"

// PromptFunc shows the consent URL to the user.
type PromptFunc func(authURL string)

// LoopbackFlow runs the authorisation code flow with a short lived callback
// server on the loopback interface and yields the verified Google ID token.
type LoopbackFlow struct {
	oauth  OAuth2
	addr   string
	prompt PromptFunc
	log    zerolog.Logger
}

type callbackResult struct {
	credential string
	err        error
}

func (f *LoopbackFlow) Credential(ctx context.Context) (string, error) {
	const op errs.Op = "login.Credential"

	listener, err := net.Listen("tcp", f.addr)
	if err != nil {
		return "", errs.E(errs.IO, op, fmt.Errorf("listening for callback: %w", err))
	}

	redirect := oauth2.SetAuthURLParam("redirect_uri", fmt.Sprintf("http://%s%s", listener.Addr().String(), CallbackPath))
	state := uuid.New().String()
	results := make(chan callbackResult, 1)

	router := chi.NewRouter()
	router.Get(CallbackPath, f.callback(state, redirect, results))

	server := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			f.log.Error().Err(err).Msg("serving login callback")
		}
	}()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			f.log.Error().Err(err).Msg("shutting down login callback server")
		}
	}()

	f.prompt(f.oauth.AuthCodeURL(state, redirect, oauth2.SetAuthURLParam("prompt", "select_account")))

	select {
	case <-ctx.Done():
		return "", errs.E(errs.Unauthenticated, op, ctx.Err())
	case r := <-results:
		if r.err != nil {
			return "", errs.E(errs.Unauthenticated, op, r.err)
		}

		return r.credential, nil
	}
}

func (f *LoopbackFlow) callback(state string, redirect oauth2.AuthCodeOption, results chan<- callbackResult) http.HandlerFunc {
	fail := func(w http.ResponseWriter, status int, err error) {
		f.log.Info().Err(err).Msg("login callback failed")
		http.Error(w, "Login failed, return to the terminal for details.", status)

		select {
		case results <- callbackResult{err: err}:
		default:
		}
	}

	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()

		if e := query.Get("error"); e != "" {
			fail(w, http.StatusUnauthorized, fmt.Errorf("consent denied: %s", e))
			return
		}

		if query.Get("state") != state {
			fail(w, http.StatusBadRequest, errs.Str("incoming state does not match local state"))
			return
		}

		code := query.Get("code")
		if len(code) == 0 {
			fail(w, http.StatusBadRequest, errs.Str("missing authorization code"))
			return
		}

		tokens, err := f.oauth.Exchange(r.Context(), code, redirect)
		if err != nil {
			fail(w, http.StatusUnauthorized, fmt.Errorf("exchanging authorization code for tokens: %w", err))
			return
		}

		rawIDToken, ok := tokens.Extra("id_token").(string)
		if !ok {
			fail(w, http.StatusUnauthorized, errs.Str("missing id_token"))
			return
		}

		_, err = f.oauth.Verify(r.Context(), rawIDToken)
		if err != nil {
			fail(w, http.StatusUnauthorized, fmt.Errorf("invalid id_token: %w", err))
			return
		}

		_, _ = w.Write([]byte("Login complete, you can close this window."))

		select {
		case results <- callbackResult{credential: rawIDToken}:
		default:
		}
	}
}

// NewLoopbackFlow listens on addr, for example "127.0.0.1:8085", during each
// login.
func NewLoopbackFlow(oauth OAuth2, addr string, prompt PromptFunc, log zerolog.Logger) *LoopbackFlow {
	return &LoopbackFlow{
		oauth:  oauth,
		addr:   addr,
		prompt: prompt,
		log:    log,
	}
}
