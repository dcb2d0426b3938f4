package wizard

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/juju/errors"
	"golang.org/x/term"

	"mongowiz/src/safety"
)

// ErrAborted is returned when the user ends input (Ctrl-C or Ctrl-D) at a
// prompt.
const ErrAborted = errors.ConstError("aborted")

// LineReader reads one line of user input after showing prompt.
type LineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// Console is the prompt/response surface of the wizard.
type Console struct {
	lr  LineReader
	out io.Writer
}

// NewConsole uses readline when in is a terminal and plain line reading
// otherwise.
func NewConsole(in io.Reader, out io.Writer) (*Console, error) {
	f, ok := in.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return NewPlainConsole(in, out), nil
	}
	rl, err := readline.NewEx(&readline.Config{
		Stdin:                  io.NopCloser(in),
		Stdout:                 out,
		HistoryLimit:           -1,
		DisableAutoSaveHistory: true,
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
	})
	if err != nil {
		return nil, errors.Annotate(err, "initialize console")
	}
	return &Console{lr: &readlineReader{rl: rl}, out: out}, nil
}

// NewPlainConsole reads newline-terminated answers from in and writes
// prompts to out.
func NewPlainConsole(in io.Reader, out io.Writer) *Console {
	return &Console{lr: &plainReader{r: bufio.NewReader(in), out: out}, out: out}
}

// Out is where the wizard writes everything that is not a prompt.
func (c *Console) Out() io.Writer { return c.out }

func (c *Console) Close() error { return c.lr.Close() }

func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(c.out, format, args...)
}

// Select shows a numbered list and returns the index of the chosen option.
// It asks again until the answer is a valid number.
func (c *Console) Select(title string, options []string) (int, error) {
	if len(options) == 0 {
		return -1, errors.NotValidf("empty selection %q", title)
	}
	fmt.Fprintf(c.out, "%s\n", title)
	for i, o := range options {
		fmt.Fprintf(c.out, "  %d) %s\n", i+1, o)
	}
	for {
		line, err := c.lr.ReadLine(fmt.Sprintf("Choose [1-%d]: ", len(options)))
		if err != nil {
			return -1, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Fprintf(c.out, "Please enter a number between 1 and %d.\n", len(options))
	}
}

// Input asks for free text; an empty answer yields def.
func (c *Console) Input(prompt, def string) (string, error) {
	p := prompt + ": "
	if def != "" {
		p = fmt.Sprintf("%s [%s]: ", prompt, def)
	}
	line, err := c.lr.ReadLine(p)
	if err != nil {
		return "", err
	}
	if v := strings.TrimSpace(line); v != "" {
		return v, nil
	}
	return def, nil
}

// Confirm asks a yes/no question; an empty answer yields def.
func (c *Console) Confirm(question string, def bool) (bool, error) {
	hint := "[y/N]"
	if def {
		hint = "[Y/n]"
	}
	line, err := c.lr.ReadLine(fmt.Sprintf("%s %s: ", strings.TrimSpace(question), hint))
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(line) == "" {
		return def, nil
	}
	return safety.IsYes(line), nil
}

type plainReader struct {
	r   *bufio.Reader
	out io.Writer
}

func (p *plainReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.r.ReadString('\n')
	if err == io.EOF && line != "" {
		err = nil
	}
	if err == io.EOF {
		fmt.Fprintln(p.out)
		return "", ErrAborted
	}
	if err != nil {
		return "", errors.Trace(err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func (p *plainReader) Close() error { return nil }

type readlineReader struct {
	rl *readline.Instance
}

func (r *readlineReader) ReadLine(prompt string) (string, error) {
	r.rl.SetPrompt(prompt)
	line, err := r.rl.Readline()
	if err == readline.ErrInterrupt || err == io.EOF {
		return "", ErrAborted
	}
	return line, errors.Trace(err)
}

func (r *readlineReader) Close() error { return r.rl.Close() }
