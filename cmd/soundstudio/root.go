package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fxsound/soundstudio/pkg/authclient"
	"github.com/fxsound/soundstudio/pkg/config"
	"github.com/fxsound/soundstudio/pkg/login"
	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/fxsound/soundstudio/pkg/sound"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type app struct {
	cfg    config.Config
	log    zerolog.Logger
	store  session.Store
	http   *http.Client
	client *authclient.Client
	sounds *sound.Client

	stdout io.Writer
	stderr io.Writer
}

func (a *app) setup(configFile string) error {
	fileParts, err := config.ProcessConfigPath(configFile)
	if err != nil {
		return fmt.Errorf("processing config path: %w", err)
	}

	cfg, err := config.NewFileSystemLoader().Load(fileParts.FileName, fileParts.Path, config.DefaultEnvPrefix, config.NewDefaultEnvBinder())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("parsing log level: %w", err)
	}

	sessionFile, err := cfg.SessionFilePath()
	if err != nil {
		return fmt.Errorf("resolving session file: %w", err)
	}

	a.cfg = cfg
	a.log = zerolog.New(zerolog.ConsoleWriter{Out: a.stderr}).Level(level).With().Timestamp().Logger()
	a.store = session.NewFileStore(sessionFile)
	a.http = &http.Client{Timeout: cfg.RequestTimeout()}

	terminator := session.NewTerminator(a.store, session.NavigatorFunc(a.navigate), cfg.LoginEntryPoint(), a.log)

	a.client = authclient.New(cfg.APIURL, a.http, a.store, terminator, cfg.RefreshThreshold(), a.log)
	a.sounds = sound.New(a.client)

	return nil
}

// navigate is where a browser would change page. In a terminal the login
// entry point is a command.
func (a *app) navigate(path string) {
	if path == a.cfg.LoginEntryPoint() {
		fmt.Fprintln(a.stderr, "Your session has ended. Run `soundstudio login` to sign in again.")
		return
	}

	fmt.Fprintf(a.stderr, "Continue at %s\n", path)
}

func (a *app) loginService() *login.Service {
	return login.NewService(googleSource{a: a}, login.NewExchanger(a.cfg.APIURL, a.http), a.store, a.log)
}

// report prints err for the user. Authentication failures were already
// announced by the navigator.
func (a *app) report(err error) error {
	if err == nil {
		return nil
	}

	if !authclient.IsAuthenticationError(err) {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
	}

	return errSilent
}

var errSilent = errors.New("silent")

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdout: stdout,
		stderr: stderr,
	}

	var configFile string

	rootCmd := &cobra.Command{
		Use:           "soundstudio",
		Short:         "Generate sounds from text prompts and images",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(configFile)
		},
	}

	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "path to config file")

	rootCmd.AddCommand(
		newLoginCmd(a),
		newLogoutCmd(a),
		newWhoamiCmd(a),
		newSoundsCmd(a),
		newAnalyzeImageCmd(a),
	)

	return rootCmd
}
