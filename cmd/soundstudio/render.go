package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fxsound/soundstudio/pkg/sound"
)

const noPrompt = "No prompt provided"

// renderSounds writes the dashboard listing.
func renderSounds(w io.Writer, sounds []sound.Sound) error {
	if len(sounds) == 0 {
		_, err := fmt.Fprintln(w, "No sounds yet. Create one with `soundstudio sounds generate`.")
		return err
	}

	b := &strings.Builder{}

	for i, s := range sounds {
		if i > 0 {
			b.WriteString("\n")
		}

		prompt := s.Prompt
		if prompt == "" {
			prompt = noPrompt
		}

		fmt.Fprintf(b, "%s\n", sound.DisplayName(s.Filename))
		fmt.Fprintf(b, "  %s\n", prompt)

		if created, ok := s.Created(); ok {
			fmt.Fprintf(b, "  Created %s\n", created.Format("2006-01-02"))
		}

		fmt.Fprintf(b, "  File    %s\n", s.Filename)
	}

	_, err := io.WriteString(w, b.String())

	return err
}
