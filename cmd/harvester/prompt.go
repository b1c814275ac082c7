package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// prompter asks yes/no and single-letter questions on a terminal. When
// disabled every question takes its default answer.
type prompter struct {
	in      *bufio.Reader
	out     io.Writer
	enabled bool
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{in: bufio.NewReader(in), out: out, enabled: true}
}

// confirm asks a yes/no question. The default answer is def.
func (p *prompter) confirm(question string, def bool) (bool, error) {
	hint, defAnswer := "[y/N]", "n"
	if def {
		hint, defAnswer = "[Y/n]", "y"
	}
	answer, err := p.ask(question+" "+hint, defAnswer, "y", "n", "yes", "no")
	if err != nil {
		return false, err
	}
	return strings.HasPrefix(answer, "y"), nil
}

// choose asks until one of choices is given. The first choice is the default.
func (p *prompter) choose(question string, choices ...string) (string, error) {
	return p.ask(question, choices[0], choices...)
}

func (p *prompter) ask(question, def string, valid ...string) (string, error) {
	if !p.enabled {
		return def, nil
	}
	for {
		fmt.Fprintf(p.out, "%s ", question)
		line, err := p.in.ReadString('\n')
		answer := strings.ToLower(strings.TrimSpace(line))
		if answer == "" {
			if err == io.EOF {
				return def, nil
			}
			if err != nil {
				return "", err
			}
			return def, nil
		}
		for _, v := range valid {
			if answer == v {
				return answer, nil
			}
		}
		if err != nil {
			return "", fmt.Errorf("invalid answer %q", answer)
		}
		fmt.Fprintf(p.out, "please answer one of %s\n", strings.Join(valid, ", "))
	}
}
