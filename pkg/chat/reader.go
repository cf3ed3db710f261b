package chat

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// DefaultPrompt is shown before each line of input.
const DefaultPrompt = "> "

// LineReader blocks until one line of input is available. io.EOF (or any
// other error) ends the session.
type LineReader interface {
	ReadLine() (string, error)
}

// ScannerReader reads lines from a plain stream such as a pipe or file.
// Lines have no length limit.
type ScannerReader struct {
	in     *bufio.Reader
	out    io.Writer
	prompt string
}

// NewScannerReader creates a ScannerReader that writes prompt to out before
// every read. out may be nil.
func NewScannerReader(in io.Reader, out io.Writer, prompt string) *ScannerReader {
	return &ScannerReader{
		in:     bufio.NewReader(in),
		out:    out,
		prompt: prompt,
	}
}

// ReadLine implements LineReader.
func (r *ScannerReader) ReadLine() (string, error) {
	if r.out != nil {
		fmt.Fprint(r.out, "\n"+r.prompt)
	}

	line, err := r.in.ReadString('\n')
	if err != nil {
		// A final line without a newline is still input
		if !errors.Is(err, io.EOF) || line == "" {
			return "", err
		}
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// TerminalReader reads lines from an interactive terminal with line editing
// and history. The terminal is in raw mode only while a line is being read,
// so signals behave normally during a completion call.
type TerminalReader struct {
	fd       int
	out      io.Writer
	terminal *term.Terminal
}

// NewTerminalReader creates a TerminalReader on in, echoing to out.
func NewTerminalReader(in *os.File, out io.Writer, prompt string) *TerminalReader {
	rw := struct {
		io.Reader
		io.Writer
	}{in, out}

	return &TerminalReader{
		fd:       int(in.Fd()),
		out:      out,
		terminal: term.NewTerminal(rw, prompt),
	}
}

// ReadLine implements LineReader. Ctrl-C and Ctrl-D on an empty line return io.EOF.
func (r *TerminalReader) ReadLine() (string, error) {
	fmt.Fprintln(r.out)

	state, err := term.MakeRaw(r.fd)
	if err != nil {
		return "", fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(r.fd, state)

	if width, _, err := term.GetSize(r.fd); err == nil {
		r.terminal.SetSize(width, 0)
	}

	return r.terminal.ReadLine()
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// NewLineReader picks a TerminalReader when in is a terminal and a
// ScannerReader otherwise.
func NewLineReader(in io.Reader, out io.Writer) LineReader {
	if f, ok := in.(*os.File); ok && IsTerminal(f) {
		return NewTerminalReader(f, out, DefaultPrompt)
	}
	return NewScannerReader(in, out, DefaultPrompt)
}
