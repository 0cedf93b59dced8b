// Package fakeapi is an in-memory stand-in for the sound generation API, used
// for local development and end-to-end tests.
package fakeapi

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fxsound/soundstudio/pkg/errs"
	"github.com/fxsound/soundstudio/pkg/login"
	"github.com/fxsound/soundstudio/pkg/requestlogger"
	"github.com/fxsound/soundstudio/pkg/sound"
	"github.com/fxsound/soundstudio/pkg/transport"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const (
	PathMetrics = "/metrics"

	DevOrigin = "http://localhost:3000"

	MaxDuration = 30

	msgInvalidToken = "Invalid or missing token"
)

type subjectKey struct{}

type Server struct {
	issuer   *TokenIssuer
	verifier CredentialVerifier
	library  *Library
	registry *prometheus.Registry
	issued   *prometheus.CounterVec
	log      zerolog.Logger
}

func (s *Server) Routes() http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestlogger.Middleware(s.log, PathMetrics))
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{DevOrigin},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Get(PathMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP)

	router.Route("/auth", func(r chi.Router) {
		r.Post("/google-login", transport.For(s.googleLogin).RequestFromJSON().Build(s.log))
		r.Post("/refresh", transport.For(s.refresh).Build(s.log))
	})

	router.Route("/sound", func(r chi.Router) {
		r.Use(s.requireAccess)
		r.Post("/generate", transport.For(s.generate).RequestFromJSON().Build(s.log))
		r.Get("/my-sounds", transport.For(s.mySounds).Build(s.log))
		r.Get("/audio/{filename}", transport.For(s.audio).Build(s.log))
		r.Post("/analyze-image", transport.For(s.analyzeImage).RequestFromJSON().Build(s.log))
	})

	return router
}

// Issue logs the user in directly and returns their token pair.
func (s *Server) Issue(user *User) (access, refresh string, err error) {
	access, err = s.issuer.Issue(user.Key, TypeAccess)
	if err != nil {
		return "", "", err
	}

	s.issued.WithLabelValues(TypeAccess).Inc()

	refresh, err = s.issuer.Issue(user.Key, TypeRefresh)
	if err != nil {
		return "", "", err
	}

	s.issued.WithLabelValues(TypeRefresh).Inc()

	return access, refresh, nil
}

// RevokeAccessTokens rejects every access token issued so far, as if they
// had expired early.
func (s *Server) RevokeAccessTokens() int {
	return s.issuer.Revoke(TypeAccess)
}

func (s *Server) RevokeRefreshTokens() int {
	return s.issuer.Revoke(TypeRefresh)
}

func (s *Server) Library() *Library {
	return s.library
}

func (s *Server) googleLogin(ctx context.Context, _ *http.Request, in login.CredentialRequest) (*login.Response, error) {
	const op errs.Op = "fakeapi.googleLogin"

	if in.Credential == "" {
		return nil, errs.E(op, errs.InvalidRequest, errs.Str("No credential token provided"))
	}

	u, err := s.verifier.Verify(ctx, in.Credential)
	if err != nil {
		return nil, errs.E(op, errs.Unauthenticated, err)
	}

	user := s.library.Upsert(u)

	access, refresh, err := s.Issue(user)
	if err != nil {
		return nil, errs.E(op, errs.Internal, err)
	}

	return &login.Response{
		AccessToken:  access,
		RefreshToken: refresh,
		User:         user.User,
	}, nil
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

func (s *Server) refresh(_ context.Context, r *http.Request, _ any) (*refreshResponse, error) {
	const op errs.Op = "fakeapi.refresh"

	subject, err := s.issuer.Subject(bearer(r), TypeRefresh)
	if err != nil {
		s.log.Info().Err(err).Msg("rejecting refresh")

		return nil, errs.E(op, errs.Unauthenticated, errs.Str(msgInvalidToken))
	}

	access, err := s.issuer.Issue(subject, TypeAccess)
	if err != nil {
		return nil, errs.E(op, errs.Internal, err)
	}

	s.issued.WithLabelValues(TypeAccess).Inc()

	return &refreshResponse{AccessToken: access}, nil
}

func (s *Server) requireAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const op errs.Op = "fakeapi.requireAccess"

		subject, err := s.issuer.Subject(bearer(r), TypeAccess)
		if err != nil {
			s.log.Debug().Err(err).Msg("rejecting access token")
			errs.HTTPErrorResponse(w, s.log, errs.E(op, errs.Unauthenticated, errs.Str(msgInvalidToken)))

			return
		}

		if _, ok := s.library.User(subject); !ok {
			errs.HTTPErrorResponse(w, s.log, errs.E(op, errs.Unauthenticated, errs.UserName(subject), errs.Str(msgInvalidToken)))
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), subjectKey{}, subject)))
	})
}

func (s *Server) generate(ctx context.Context, _ *http.Request, in sound.GenerateRequest) (*sound.GenerateResponse, error) {
	const op errs.Op = "fakeapi.generate"

	if in.Duration > MaxDuration {
		return nil, errs.E(op, errs.Validation, errs.Parameter("duration"), fmt.Errorf("duration must be at most %d seconds", MaxDuration))
	}

	filename := SoundFilename(in.Filename)
	if filename == "" {
		return nil, errs.E(op, errs.Validation, errs.Parameter("filename"), errs.Str("filename has no usable characters"))
	}

	created := s.library.Add(subjectFromContext(ctx), filename, in.Prompt, SilentWAV(in.Duration))

	return &sound.GenerateResponse{
		Filename: created.Filename,
		Message:  "Sound generated successfully",
	}, nil
}

func (s *Server) mySounds(ctx context.Context, _ *http.Request, _ any) (*sound.SoundList, error) {
	return &sound.SoundList{Sounds: s.library.Sounds(subjectFromContext(ctx))}, nil
}

func (s *Server) audio(ctx context.Context, r *http.Request, _ any) (*transport.ByteWriter, error) {
	const op errs.Op = "fakeapi.audio"

	audio, ok := s.library.Audio(subjectFromContext(ctx), chi.URLParam(r, "filename"))
	if !ok {
		return nil, errs.E(op, errs.NotExist, errs.Str("Sound not found"))
	}

	return transport.NewByteWriter("audio/wav", audio), nil
}

func (s *Server) analyzeImage(_ context.Context, _ *http.Request, in sound.AnalyzeImageRequest) (*sound.AnalyzeImageResponse, error) {
	const op errs.Op = "fakeapi.analyzeImage"

	if in.Image == "" {
		return nil, errs.E(op, errs.InvalidRequest, errs.Str("No image provided"))
	}

	mime, data, err := parseDataURL(in.Image)
	if err != nil {
		return nil, errs.E(op, errs.InvalidRequest, errs.Parameter("image"), err)
	}

	if !strings.HasPrefix(mime, "image/") {
		return nil, errs.E(op, errs.InvalidRequest, errs.Parameter("image"), fmt.Errorf("unsupported media type %s", mime))
	}

	prompt := in.Prompt
	if prompt == "" {
		prompt = "describe the sound of this image"
	}

	return &sound.AnalyzeImageResponse{
		Message: fmt.Sprintf("%s, %d bytes: %s", mime, len(data), prompt),
	}, nil
}

func parseDataURL(raw string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(raw, "data:")
	if !ok {
		return "", nil, errors.New("image is not a data URL")
	}

	mime, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return "", nil, errors.New("image data URL is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("decoding image: %w", err)
	}

	return mime, data, nil
}

func bearer(r *http.Request) string {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return ""
	}

	return token
}

func subjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(subjectKey{}).(string)

	return subject
}

type Config struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

func New(cfg Config, verifier CredentialVerifier, log zerolog.Logger) *Server {
	registry := prometheus.NewRegistry()

	issued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "soundstudio",
		Subsystem: "fakeapi",
		Name:      "tokens_issued_total",
		Help:      "Tokens issued by the fake API, by token type.",
	}, []string{"typ"})

	registry.MustRegister(issued)

	return &Server{
		issuer:   NewTokenIssuer([]byte(cfg.Secret), cfg.AccessTTL, cfg.RefreshTTL),
		verifier: verifier,
		library:  NewLibrary(),
		registry: registry,
		issued:   issued,
		log:      log,
	}
}
