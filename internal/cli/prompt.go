package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"
)

// PromptPassword prints prompt to stderr and reads a password from stdin
// without echoing it, falling back to a plain (echoed) read when stdin
// isn't a terminal — e.g. piped input in tests or automation, matching
// the teacher's getMasterPassword fallback.
func PromptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	if term.IsTerminal(int(syscall.Stdin)) {
		passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("cli: read password: %w", err)
		}
		return string(passwordBytes), nil
	}
	return readPlainLine(stdinReader)
}

// stdinReader is shared by every non-terminal prompt, so input buffered
// while reading one line is still there for the next prompt.
var stdinReader = bufio.NewReader(os.Stdin)

// PromptPasswordWithConfirmation prompts for a new password twice and
// verifies both entries match, used by init and change-password.
func PromptPasswordWithConfirmation(prompt, confirmPrompt string) (string, error) {
	password, err := PromptPassword(prompt)
	if err != nil {
		return "", err
	}
	confirm, err := PromptPassword(confirmPrompt)
	if err != nil {
		return "", err
	}
	if password != confirm {
		return "", fmt.Errorf("cli: passwords do not match")
	}
	return password, nil
}

func readPlainLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("cli: read password: %w", err)
	}
	return strings.TrimSpace(line), nil
}
