package wizard

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ErrCancelled signals explicit operator withdrawal. It is distinct from an
// empty answer and is not a failure: the caller exits cleanly.
var ErrCancelled = errors.New("cancelled by operator")

// Option is one selectable entry in a checklist or list.
type Option struct {
	Key   string
	Label string
}

// Dialog is the interactive collaborator the wizard depends on. Every method
// returns ErrCancelled when the operator backs out.
type Dialog interface {
	// Checklist returns the keys of zero or more chosen options.
	Checklist(title string, options []Option) ([]string, error)
	// Select returns the key of exactly one chosen option.
	Select(title string, options []Option) (string, error)
	// Input returns free text, or the default when the answer is empty.
	Input(title, def string) (string, error)
	// Secret returns masked input.
	Secret(title string) (string, error)
	// Say shows informational text (rejection reasons, summaries).
	Say(text string)
}

// Terminal implements Dialog with plain line-oriented prompts on a TTY.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

// NewTerminal returns a terminal dialog, or an error when stdin is not an
// interactive terminal.
func NewTerminal() (*Terminal, error) {
	if !isatty.IsTerminal(os.Stdin.Fd()) && !isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		return nil, errors.New("stdin is not a terminal; the wizard requires interactive input")
	}
	return &Terminal{
		in:  bufio.NewReader(os.Stdin),
		out: os.Stderr,
	}, nil
}

func (t *Terminal) Say(text string) {
	fmt.Fprintln(t.out, text)
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil {
		if err == io.EOF {
			return "", ErrCancelled
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) printOptions(title string, options []Option) {
	fmt.Fprintf(t.out, "\n%s\n", title)
	for i, o := range options {
		fmt.Fprintf(t.out, "  %2d) %s\n", i+1, o.Label)
	}
}

func (t *Terminal) Checklist(title string, options []Option) ([]string, error) {
	t.printOptions(title, options)
	fmt.Fprint(t.out, "Enter numbers separated by commas, or q to cancel: ")

	line, err := t.readLine()
	if err != nil {
		return nil, err
	}
	if line == "q" || line == "Q" {
		return nil, ErrCancelled
	}
	if line == "" {
		return nil, nil
	}

	var keys []string
	seen := make(map[int]bool)
	for _, tok := range strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(tok)
		if err != nil || n < 1 || n > len(options) {
			t.Say(fmt.Sprintf("Ignoring invalid choice %q", tok))
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		keys = append(keys, options[n-1].Key)
	}
	return keys, nil
}

func (t *Terminal) Select(title string, options []Option) (string, error) {
	t.printOptions(title, options)
	fmt.Fprint(t.out, "Enter a number, or q to cancel: ")

	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	if line == "q" || line == "Q" {
		return "", ErrCancelled
	}
	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(options) {
		t.Say("Invalid choice")
		return t.Select(title, options)
	}
	return options[n-1].Key, nil
}

func (t *Terminal) Input(title, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", title, def)
	} else {
		fmt.Fprintf(t.out, "%s: ", title)
	}

	line, err := t.readLine()
	if err != nil {
		return "", err
	}
	if line == "" {
		return def, nil
	}
	return line, nil
}

func (t *Terminal) Secret(title string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", title)
	data, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(t.out)
	if err != nil {
		if err == io.EOF {
			return "", ErrCancelled
		}
		return "", err
	}
	return string(data), nil
}
