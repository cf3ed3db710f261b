package chat

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Renderer writes replies, notices and error notices.
type Renderer interface {
	Reply(w io.Writer, text string) error
	Notice(w io.Writer, text string) error
	Error(w io.Writer, text string) error
}

// PlainRenderer writes text unchanged.
type PlainRenderer struct{}

func (PlainRenderer) Reply(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, "\n%s\n", text)
	return err
}

func (PlainRenderer) Notice(w io.Writer, text string) error {
	_, err := fmt.Fprintln(w, text)
	return err
}

func (PlainRenderer) Error(w io.Writer, text string) error {
	_, err := fmt.Fprintln(w, text)
	return err
}

// StyledRenderer colours notices and errors for terminals and optionally
// renders replies as Markdown.
type StyledRenderer struct {
	markdown *glamour.TermRenderer

	noticeStyle lipgloss.Style
	errorStyle  lipgloss.Style
}

// NewStyledRenderer creates a StyledRenderer. When markdown is true replies
// are rendered with glamour, wrapped at width columns.
func NewStyledRenderer(markdown bool, width int) (*StyledRenderer, error) {
	r := &StyledRenderer{
		noticeStyle: lipgloss.NewStyle().Faint(true),
		errorStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
	}

	if markdown {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return nil, fmt.Errorf("create markdown renderer: %w", err)
		}
		r.markdown = md
	}

	return r, nil
}

func (r *StyledRenderer) Reply(w io.Writer, text string) error {
	if r.markdown == nil {
		return PlainRenderer{}.Reply(w, text)
	}

	out, err := r.markdown.Render(text)
	if err != nil {
		// Show the raw text when rendering fails
		return PlainRenderer{}.Reply(w, text)
	}
	_, err = fmt.Fprintf(w, "\n%s\n", strings.Trim(out, "\n"))
	return err
}

func (r *StyledRenderer) Notice(w io.Writer, text string) error {
	_, err := fmt.Fprintln(w, r.noticeStyle.Render(text))
	return err
}

func (r *StyledRenderer) Error(w io.Writer, text string) error {
	_, err := fmt.Fprintln(w, r.errorStyle.Render(text))
	return err
}
