package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fxsound/soundstudio/pkg/fakeapi"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

var (
	address        = flag.String("address", "127.0.0.1", "Address to run the HTTP server on")
	port           = flag.String("port", "5000", "Port to run the HTTP server on")
	secret         = flag.String("secret", "fake-api-secret", "Secret used to sign tokens")
	accessTTL      = flag.Duration("access-ttl", fakeapi.DefaultAccessTTL, "Lifetime of access tokens")
	refreshTTL     = flag.Duration("refresh-ttl", fakeapi.DefaultRefreshTTL, "Lifetime of refresh tokens")
	googleClientID = flag.String("google-client-id", "", "Verify Google credentials for this client; accepts any credential when empty")
)

func main() {
	flag.Parse()

	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer cancel()

	var verifier fakeapi.CredentialVerifier = fakeapi.InsecureCredentialVerifier{}

	if *googleClientID != "" {
		v, err := fakeapi.NewGoogleCredentialVerifier(ctx, *googleClientID)
		if err != nil {
			log.Fatal().Err(err).Msg("setting up google credential verifier")
		}

		verifier = v
	} else {
		log.Warn().Msg("accepting unverified google credentials")
	}

	api := fakeapi.New(fakeapi.Config{
		Secret:     *secret,
		AccessTTL:  *accessTTL,
		RefreshTTL: *refreshTTL,
	}, verifier, log)

	server := http.Server{
		Addr:              net.JoinHostPort(*address, *port),
		Handler:           api.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("address", server.Addr).Msg("fake api starting")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("starting server")
		}
	}()
	<-ctx.Done()

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("shutdown error")
	}
}
