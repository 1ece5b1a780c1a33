package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/promptvault/promptvault-server/internal/domain"
	"github.com/promptvault/promptvault-server/internal/service"
)

const clearScreen = "\033[H\033[2J"

// terminalConfirmer asks y/N on the terminal before a delete.
type terminalConfirmer struct {
	in  *bufio.Reader
	out io.Writer
	yes bool
}

func newTerminalConfirmer(in io.Reader, out io.Writer, yes bool) *terminalConfirmer {
	return &terminalConfirmer{in: bufio.NewReader(in), out: out, yes: yes}
}

// Confirm implements service.Confirmer. Anything but y or yes declines.
func (c *terminalConfirmer) Confirm(_ context.Context, p *domain.Prompt) (bool, error) {
	if c.yes {
		return true, nil
	}
	fmt.Fprintf(c.out, "Delete %q? [y/N] ", preview(p.Text, 60))
	line, err := c.in.ReadString('\n')
	if err != nil && line == "" {
		if err == io.EOF {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// osc52Clipboard writes text to the terminal's clipboard.
type osc52Clipboard struct {
	w io.Writer
}

// WriteText implements service.Clipboard.
func (c osc52Clipboard) WriteText(text string) error {
	_, err := fmt.Fprintf(c.w, "\033]52;c;%s\a", base64.StdEncoding.EncodeToString([]byte(text)))
	return err
}

// renderView prints the visible prompts, or the empty state message.
func renderView(w io.Writer, view *service.LiveView) error {
	visible := view.Visible()
	if len(visible) == 0 {
		_, err := fmt.Fprintln(w, view.EmptyState().Message())
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPROMPT\tTAGS")
	for _, p := range visible {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", p.ID, preview(p.Text, 60), strings.Join(p.Tags, ", "))
	}
	if term := view.SearchTerm(); term != "" {
		fmt.Fprintf(tw, "\n%d of %d prompts match %q\n", len(visible), len(view.Prompts()), term)
	}
	return tw.Flush()
}

// preview shortens text to one line of at most n runes.
func preview(text string, n int) string {
	text = strings.Join(strings.Fields(text), " ")
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n-1]) + "…"
}

var (
	_ service.Confirmer = (*terminalConfirmer)(nil)
	_ service.Clipboard = osc52Clipboard{}
)
