package commands

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// prompter reads interactive input for a command.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// fromStdin reads secrets as plain lines instead of from the terminal.
	fromStdin bool
}

func newPrompter(cmd *cli.Command, fromStdin bool) *prompter {
	root := cmd.Root()
	in := root.Reader
	if in == nil {
		in = os.Stdin
	}
	out := root.ErrWriter
	if out == nil {
		out = os.Stderr
	}
	return &prompter{in: bufio.NewReader(in), out: out, fromStdin: fromStdin}
}

// value returns v, or asks for it when empty.
func (p *prompter) value(label, v string) (string, error) {
	if v != "" {
		return v, nil
	}
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(line), nil
}

// secret reads a password without echoing it.
func (p *prompter) secret(label string) (string, error) {
	if p.fromStdin {
		line, err := p.in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return "", fmt.Errorf("reading %s from stdin: %w", strings.ToLower(label), err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal to read the password from, use --password-stdin")
	}
	_, _ = fmt.Fprintf(p.out, "%s: ", label)
	secret, err := term.ReadPassword(fd)
	_, _ = fmt.Fprintln(p.out)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", strings.ToLower(label), err)
	}
	return string(secret), nil
}
