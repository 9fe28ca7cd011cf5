// Package listener is the interactive console: a readline prompt that lets
// mission completions print above the line being typed.
package listener

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/chzyer/readline"
)

// ErrClosed is returned by ReadLine once the user hits Ctrl+D or Ctrl+C.
var ErrClosed = errors.New("console closed")

type Console struct {
	rl *readline.Instance

	mu        sync.Mutex
	holdAsync bool
	held      []string
}

func NewConsole(prompt string) (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          prompt,
		InterruptPrompt: "",
		EOFPrompt:       "",
	})
	if err != nil {
		return nil, err
	}
	return &Console{rl: rl}, nil
}

func (c *Console) Close() error { return c.rl.Close() }

func (c *Console) ReadLine() (string, error) {
	line, err := c.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", ErrClosed
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// Confirm asks a y/n question, holding async output until it is answered.
func (c *Console) Confirm(question string) bool {
	c.mu.Lock()
	c.holdAsync = true
	old := c.rl.Config.Prompt
	c.printAbove(question + " [y/n]")
	c.rl.SetPrompt("> ")
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.rl.SetPrompt(old)
		c.holdAsync = false
		for _, s := range c.held {
			c.printAbove(s)
		}
		c.held = nil
	}()

	for {
		line, err := c.rl.Readline()
		if err != nil {
			return false
		}
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}
		c.mu.Lock()
		c.printAbove("Please answer y/n.")
		c.mu.Unlock()
	}
}

// Println writes s above the prompt without disturbing typed input.
func (c *Console) Println(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holdAsync {
		c.held = append(c.held, s)
		return
	}
	c.printAbove(s)
}

func (c *Console) Printf(format string, args ...any) { c.Println(fmt.Sprintf(format, args...)) }

func (c *Console) printAbove(s string) {
	_, _ = c.rl.Write([]byte("\r\n" + s + "\r\n"))
	c.rl.Refresh()
}
