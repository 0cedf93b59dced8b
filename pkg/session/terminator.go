package session

import (
	"context"

	"github.com/rs/zerolog"
)

var _ TerminationHandler = &Terminator{}

// Terminator clears the session from the store and then navigates to the
// login entry point.
type Terminator struct {
	store     Store
	navigator Navigator
	loginPath string
	log       zerolog.Logger
}

func (t *Terminator) Terminate(_ context.Context, reason error) {
	t.log.Info().Err(reason).Msg("terminating session")

	if err := Clear(t.store); err != nil {
		t.log.Error().Err(err).Msg("clearing session store")
	}

	t.navigator.Replace(t.loginPath)
}

func NewTerminator(store Store, navigator Navigator, loginPath string, log zerolog.Logger) *Terminator {
	return &Terminator{
		store:     store,
		navigator: navigator,
		loginPath: loginPath,
		log:       log,
	}
}
