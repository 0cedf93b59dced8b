package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fxsound/soundstudio/pkg/login"
	"github.com/fxsound/soundstudio/pkg/session"
	"github.com/fxsound/soundstudio/pkg/sound"
	"github.com/fxsound/soundstudio/pkg/token"
	"github.com/spf13/cobra"
)

// googleSource sets up the Google client only when a credential is needed.
type googleSource struct {
	a *app
}

func (s googleSource) Credential(ctx context.Context) (string, error) {
	google, err := login.NewGoogle(ctx, s.a.cfg.Google.ClientID, s.a.cfg.Google.ClientSecret)
	if err != nil {
		return "", err
	}

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(s.a.cfg.Google.Port()))

	return login.NewLoopbackFlow(google, addr, func(authURL string) {
		fmt.Fprintf(s.a.stderr, "Open this URL in your browser to sign in:\n\n  %s\n\n", authURL)
	}, s.a.log).Credential(ctx)
}

func newLoginCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "login",
		Args:  cobra.NoArgs,
		Short: "Sign in with your Google account",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := a.loginService().Login(cmd.Context(), force)
			if errors.Is(err, login.ErrAlreadyLoggedIn) {
				fmt.Fprintf(a.stdout, "Already logged in as %s. Use --force to sign in again.\n", sess.User.Email)
				return nil
			}

			if err != nil {
				return a.report(err)
			}

			fmt.Fprintf(a.stdout, "Logged in as %s <%s>\n", sess.User.Name, sess.User.Email)

			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "sign in again even when a session exists")

	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Args:  cobra.NoArgs,
		Short: "Forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := a.loginService().Logout(cmd.Context())
			if err != nil {
				return a.report(err)
			}

			fmt.Fprintln(a.stdout, "Logged out.")

			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Args:  cobra.NoArgs,
		Short: "Show the signed in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := session.Load(a.store)
			if errors.Is(err, session.ErrNoSession) {
				fmt.Fprintln(a.stdout, "Not logged in.")
				return errSilent
			}

			if err != nil {
				return a.report(err)
			}

			fmt.Fprintf(a.stdout, "%s <%s>\n", sess.User.Name, sess.User.Email)

			if token.Expired(sess.AccessToken, time.Now()) {
				fmt.Fprintln(a.stdout, "Access token expired, it is renewed on the next request.")
				return nil
			}

			expiry, err := token.Expiry(sess.AccessToken)
			if err == nil {
				fmt.Fprintf(a.stdout, "Access token expires %s\n", expiry.Local().Format(time.RFC1123))
			}

			return nil
		},
	}
}

func newSoundsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sounds",
		Args:    cobra.NoArgs,
		Aliases: []string{"s"},
		Short:   "List, generate and download sounds",
	}

	cmd.AddCommand(
		newSoundsListCmd(a),
		newSoundsGenerateCmd(a),
		newSoundsDownloadCmd(a),
	)

	return cmd
}

func newSoundsListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Args:    cobra.NoArgs,
		Aliases: []string{"ls"},
		Short:   "List your sounds",
		RunE: func(cmd *cobra.Command, args []string) error {
			sounds, err := a.sounds.ListSounds(cmd.Context())
			if err != nil {
				return a.report(err)
			}

			return renderSounds(a.stdout, sounds)
		},
	}
}

func newSoundsGenerateCmd(a *app) *cobra.Command {
	var (
		prompt   string
		filename string
		steps    int
		duration int
		output   string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Args:  cobra.NoArgs,
		Short: "Generate a sound from a text prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := sound.NewGenerateRequest(prompt, filename)
			req.NumOfSteps = steps
			req.Duration = duration

			res, err := a.sounds.Generate(cmd.Context(), req)
			if err != nil {
				return a.report(err)
			}

			fmt.Fprintf(a.stdout, "Generated %s\n", res.Filename)

			if output == "" {
				return nil
			}

			return a.report(a.download(cmd.Context(), res.Filename, output))
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "description of the sound")
	cmd.Flags().StringVar(&filename, "filename", "", "name of the generated sound")
	cmd.Flags().IntVar(&steps, "steps", sound.DefaultNumOfSteps, "number of generation steps")
	cmd.Flags().IntVar(&duration, "duration", sound.DefaultDuration, "length of the sound in seconds")
	cmd.Flags().StringVarP(&output, "output", "o", "", "also download the sound to this path")

	return cmd
}

func newSoundsDownloadCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <filename>",
		Args:  cobra.ExactArgs(1),
		Short: "Download a sound",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := output
			if path == "" {
				path = filepath.Base(args[0])
			}

			return a.report(a.download(cmd.Context(), args[0], path))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "path to write the sound to")

	return cmd
}

func (a *app) download(ctx context.Context, filename, path string) error {
	audio, err := a.sounds.Audio(ctx, filename)
	if err != nil {
		return err
	}

	err = os.WriteFile(path, audio, 0o600)
	if err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	fmt.Fprintf(a.stdout, "Saved %s (%d bytes)\n", path, len(audio))

	return nil
}

func newAnalyzeImageCmd(a *app) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "analyze-image <path>",
		Args:  cobra.ExactArgs(1),
		Short: "Describe the sound of an image",
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := os.ReadFile(args[0])
			if err != nil {
				return a.report(fmt.Errorf("reading image: %w", err))
			}

			res, err := a.sounds.AnalyzeImage(cmd.Context(), image, prompt)
			if err != nil {
				return a.report(err)
			}

			fmt.Fprintln(a.stdout, res.Message)

			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "question to ask about the image")

	return cmd
}
