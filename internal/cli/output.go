// Package cli wires the cobra command tree and the dual-mode (human/JSON)
// output printer, grounded on original_source's output.py/DualModeOutput
// and on the teacher's own fmt.Printf-based reporting.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Output prints either human-readable text or a single JSON object per
// call, depending on JSON. Successes go to w, errors to errW, so a
// failed command produces exactly one line on stderr (spec.md §7).
type Output struct {
	JSON bool
	w    io.Writer
	errW io.Writer
}

// NewOutput builds an Output writing successes to w and errors to errW.
func NewOutput(w, errW io.Writer, jsonMode bool) *Output {
	return &Output{JSON: jsonMode, w: w, errW: errW}
}

// emit writes a success envelope matching spec.md §7's {ok, data, error,
// message} shape in JSON mode, or display in human mode.
func (o *Output) emit(data map[string]any, display string) {
	if o.JSON {
		o.emitEnvelope(true, data, "", "")
		return
	}
	fmt.Fprintln(o.w, display)
}

func (o *Output) emitEnvelope(ok bool, data map[string]any, errCode, message string) {
	envelope := map[string]any{"ok": ok}
	if len(data) > 0 {
		envelope["data"] = data
	}
	if errCode != "" {
		envelope["error"] = errCode
	}
	if message != "" {
		envelope["message"] = message
	}
	encoded, err := json.Marshal(envelope)
	if err != nil {
		fmt.Fprintln(o.w, `{"ok":false,"error":"encode_failed"}`)
		return
	}
	fmt.Fprintln(o.w, string(encoded))
}

// PrintInitDone reports store creation.
func (o *Output) PrintInitDone() { o.emit(nil, "Stash created.") }

// PrintPasswordChanged reports a successful password change.
func (o *Output) PrintPasswordChanged() { o.emit(nil, "Password changed.") }

// PrintSecretCopied reports a secret copied to the clipboard.
func (o *Output) PrintSecretCopied(key string) {
	o.emit(map[string]any{"key": key}, fmt.Sprintf("Copied %q to clipboard.", key))
}

// PrintSecretStdout prints a secret's raw value to stdout.
func (o *Output) PrintSecretStdout(key, value string) {
	o.emit(map[string]any{"key": key, "value": value}, value)
}

// PrintList prints stored keys, one per line in human mode.
func (o *Output) PrintList(keys []string) {
	o.emit(map[string]any{"keys": keys}, strings.Join(keys, "\n"))
}

// PrintSecretAdded reports a secret was added.
func (o *Output) PrintSecretAdded(key string) {
	o.emit(map[string]any{"key": key}, fmt.Sprintf("Secret %q added.", key))
}

// PrintSecretDeleted reports a secret was deleted.
func (o *Output) PrintSecretDeleted(key string) {
	o.emit(map[string]any{"key": key}, fmt.Sprintf("Secret %q deleted.", key))
}

// PrintSecretRenamed reports a secret was renamed.
func (o *Output) PrintSecretRenamed(oldKey, newKey string) {
	o.emit(
		map[string]any{"old_key": oldKey, "new_key": newKey},
		fmt.Sprintf("Secret %q renamed to %q.", oldKey, newKey),
	)
}

// PrintLocked reports the stash is locked.
func (o *Output) PrintLocked() { o.emit(nil, "Stash locked.") }

// PrintUnlocked reports the stash is unlocked.
func (o *Output) PrintUnlocked() { o.emit(nil, "Stash unlocked.") }

// PrintStopped reports the daemon stopped.
func (o *Output) PrintStopped() { o.emit(nil, "Daemon stopped.") }

// PrintHealth reports daemon/stash status.
func (o *Output) PrintHealth(running, locked bool) {
	runningWord := "stopped"
	if running {
		runningWord = "running"
	}
	lockedWord := "unlocked"
	if locked {
		lockedWord = "locked"
	}
	o.emit(
		map[string]any{"running": running, "locked": locked},
		fmt.Sprintf("Daemon: %s, stash: %s.", runningWord, lockedWord),
	)
}

// PrintError reports a failure to errW (stderr): a single
// {"ok":false,"error","message"} line in JSON mode, or "Error: <message>"
// in human mode.
func (o *Output) PrintError(code, message string) {
	if o.JSON {
		envelope := map[string]any{"ok": false}
		if code != "" {
			envelope["error"] = code
		}
		if message != "" {
			envelope["message"] = message
		}
		encoded, err := json.Marshal(envelope)
		if err != nil {
			fmt.Fprintln(o.errW, `{"ok":false,"error":"encode_failed"}`)
			return
		}
		fmt.Fprintln(o.errW, string(encoded))
		return
	}
	fmt.Fprintf(o.errW, "Error: %s\n", message)
}
