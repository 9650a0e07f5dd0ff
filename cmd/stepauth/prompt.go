package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

var errAborted = errors.New("input aborted")

type prompter struct {
	line *liner.State
}

func newPrompter() *prompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &prompter{line: line}
}

func (p *prompter) Close() {
	_ = p.line.Close()
}

// ask reads one trimmed line. def is returned for an empty line.
func (p *prompter) ask(label, def string) (string, error) {
	prompt := label + ": "
	if def != "" {
		prompt = fmt.Sprintf("%s [%s]: ", label, def)
	}

	input, err := p.line.Prompt(prompt)
	if err != nil {
		if err == liner.ErrPromptAborted {
			return "", errAborted
		}
		return "", err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return def, nil
	}
	p.line.AppendHistory(input)
	return input, nil
}

// secret reads without echo when stdin is a terminal.
func (p *prompter) secret(label string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		input, err := p.line.Prompt(label + ": ")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(input), nil
	}

	fmt.Print(label + ": ")
	raw, err := term.ReadPassword(fd)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (p *prompter) choose(label string, options []string) (int, error) {
	for i, o := range options {
		fmt.Printf("  %d) %s\n", i+1, o)
	}
	for {
		raw, err := p.ask(label, "")
		if err != nil {
			return 0, err
		}
		var n int
		if _, err := fmt.Sscanf(raw, "%d", &n); err == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		fmt.Printf("Please enter a number between 1 and %d.\n", len(options))
	}
}
