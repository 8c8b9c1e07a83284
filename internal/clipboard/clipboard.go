// Package clipboard copies secrets to and clears them from the system
// clipboard, via github.com/atotto/clipboard (pbcopy/pbpaste on Darwin,
// xclip/xsel elsewhere) — the same two-command contract as
// original_source's clipboard.py.
package clipboard

import (
	"fmt"

	"github.com/atotto/clipboard"
)

// Copy places text on the system clipboard.
func Copy(text string) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("clipboard: copy: %w", err)
	}
	return nil
}

// Read returns the current clipboard content.
func Read() (string, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("clipboard: read: %w", err)
	}
	return text, nil
}

// Clear empties the clipboard. If expected is non-empty, it only clears
// when the clipboard still holds that exact value — so a clipboard clear
// timer firing after the user has already copied something else doesn't
// blow away their new content.
func Clear(expected string) error {
	if expected != "" {
		current, err := Read()
		if err != nil {
			return err
		}
		if current != expected {
			return nil
		}
	}
	return Copy("")
}
