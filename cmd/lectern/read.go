package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/charmbracelet/glamour"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pders01/lectern/internal/media"
	"github.com/pders01/lectern/internal/provider"
)

func newReadCmd(a *app) *cobra.Command {
	var (
		raw    bool
		play   bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "read <text> <section>",
		Short: "Print one section of a text",
		Long: `Print one section of a text. Markdown and HTML sections are rendered
for the terminal unless --raw is given. With --play the section's
recording, if any provider has one, is opened in an audio player.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lib, err := a.library()
			if err != nil {
				return err
			}
			ctx, cancel := a.context(cmd)
			defer cancel()

			s := lib.LoadSection(ctx, args[0], args[1])
			if s == nil {
				return fmt.Errorf("%w: %s %s", provider.ErrSectionNotFound, args[0], args[1])
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), s)
			}

			out := cmd.OutOrStdout()
			if s.Title != "" && !raw {
				fmt.Fprintln(out, a.styles.title.Render(s.Title))
			}
			body, err := a.render(s, raw, isTerminal(out))
			if err != nil {
				return err
			}
			fmt.Fprintln(out, body)

			if s.AudioURL != "" {
				fmt.Fprintln(out, a.styles.muted.Render("♪ "+s.AudioURL))
			}
			if play {
				return a.play(cmd, s)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "Print the section content as stored")
	cmd.Flags().BoolVar(&play, "play", false, "Open the section's recording in an audio player")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output the section as JSON")
	return cmd
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// render turns section content into terminal output. Off a terminal the
// markdown is laid out without colors.
func (a *app) render(s *provider.Section, raw, tty bool) (string, error) {
	content := s.Content
	if raw || strings.TrimSpace(content) == "" {
		return content, nil
	}

	switch s.Format {
	case provider.FormatHTML:
		md, err := htmltomarkdown.ConvertString(content)
		if err != nil {
			return "", fmt.Errorf("converting html: %w", err)
		}
		content = md
	case provider.FormatMarkdown:
	default:
		return content, nil
	}

	style := glamour.WithStandardStyle("notty")
	if tty {
		style = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(
		style,
		glamour.WithWordWrap(a.cfg.UI.WordWrap),
	)
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	rendered, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("rendering section: %w", err)
	}
	return strings.TrimRight(rendered, "\n"), nil
}

func (a *app) play(cmd *cobra.Command, s *provider.Section) error {
	if s.AudioURL == "" {
		return fmt.Errorf("no recording of %s %s", s.TextID, s.SectionID)
	}
	launcher := media.NewLauncher(a.cfg.Media.AudioPlayers)
	if err := launcher.Open(s.AudioURL); err != nil {
		return fmt.Errorf("opening recording: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), a.styles.success.Render("Playing with "+launcher.Player()))
	return nil
}
