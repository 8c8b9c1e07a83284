package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/mbrt/mb-stash-go/internal/clipboard"
	"github.com/mbrt/mb-stash-go/internal/config"
	"github.com/mbrt/mb-stash-go/internal/daemon"
	"github.com/mbrt/mb-stash-go/internal/logging"
	"github.com/mbrt/mb-stash-go/internal/process"
	"github.com/mbrt/mb-stash-go/internal/protocol"
	"github.com/mbrt/mb-stash-go/internal/stash"
	"github.com/mbrt/mb-stash-go/internal/tui"
)

// appContext is built once per invocation in the root command's
// PersistentPreRunE and threaded to every subcommand via closures,
// mirroring original_source's AppContext/use_context pattern.
type appContext struct {
	cfg    config.Config
	out    *Output
	logger *logging.Logger
}

func (a *appContext) client() *daemon.Client {
	return daemon.NewClient(a.cfg.SocketPath())
}

func (a *appContext) ensureDaemon(ctx context.Context) error {
	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("cli: resolve executable path: %w", err)
	}
	return process.EnsureDaemon(ctx, a.cfg, execPath)
}

// NewRootCommand builds the full mb-stash command tree.
func NewRootCommand() *cobra.Command {
	var (
		jsonOutput bool
		dataDir    string
	)

	app := &appContext{}

	root := &cobra.Command{
		Use:           "stash",
		Short:         "Quick access to non-critical secrets from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// app.out isn't built yet, so any error here must be reported
			// directly: it still has to be a single line on stderr (spec.md §7).
			cfg, err := config.Build(dataDir)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
				return err
			}
			if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: cli: create data directory: %s\n", err)
				return fmt.Errorf("cli: create data directory: %w", err)
			}
			logger, err := logging.NewFileLogger(cfg.LogPath(), "info")
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err)
				return err
			}
			app.cfg = cfg
			app.out = NewOutput(cmd.OutOrStdout(), cmd.ErrOrStderr(), jsonOutput)
			app.logger = logger
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output results as JSON.")
	root.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Data directory path.")

	root.AddCommand(
		newInitCommand(app),
		newChangePasswordCommand(app),
		newDaemonCommand(app),
		newStopCommand(app),
		newLockCommand(app),
		newUnlockCommand(app),
		newHealthCommand(app),
		newGetCommand(app),
		newListCommand(app),
		newAddCommand(app),
		newDeleteCommand(app),
		newRenameCommand(app),
		newBrowseCommand(app),
	)
	return root
}

func newBrowseCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "browse",
		Short: "Interactively browse stored keys and copy one to the clipboard.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensureDaemon(cmd.Context()); err != nil {
				return printErr(app, err)
			}
			client := app.client()
			resp, err := client.SendAutoUnlock("list", nil, func() (string, error) {
				return PromptPassword("Enter master password: ")
			})
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			keys := toStringSlice(resp.Data["keys"])
			program := tea.NewProgram(tui.NewModel(client, keys))
			_, err = program.Run()
			return printErr(app, err)
		},
	}
}

func newInitCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "First-time setup: create master password.",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := PromptPasswordWithConfirmation("Create master password: ", "Confirm master password: ")
			if err != nil {
				return printErr(app, err)
			}
			s := stash.New(app.cfg.StashPath(), nil)
			if err := s.Init(password); err != nil {
				return printStashErr(app, err)
			}
			app.out.PrintInitDone()
			return nil
		},
	}
}

func newChangePasswordCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "change-password",
		Short: "Change master password.",
		RunE: func(cmd *cobra.Command, args []string) error {
			oldPassword, err := PromptPassword("Current password: ")
			if err != nil {
				return printErr(app, err)
			}
			newPassword, err := PromptPasswordWithConfirmation("New password: ", "Confirm new password: ")
			if err != nil {
				return printErr(app, err)
			}
			process.StopDaemon(app.cfg)
			s := stash.New(app.cfg.StashPath(), func() bool { return process.IsDaemonRunning(app.cfg) })
			if err := s.ChangePassword(oldPassword, newPassword); err != nil {
				return printStashErr(app, err)
			}
			app.out.PrintPasswordChanged()
			return nil
		},
	}
}

func newDaemonCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:    "daemon",
		Short:  "Run the daemon process. Not intended for manual use.",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			srv := daemon.NewServer(app.cfg, app.logger)
			return printErr(app, srv.Run(cmd.Context()))
		},
	}
}

func newStopCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon.",
		RunE: func(cmd *cobra.Command, args []string) error {
			pidAlive := process.IsDaemonRunning(app.cfg)
			reachable := process.IsConnectable(app.cfg.SocketPath())

			switch {
			case pidAlive:
				process.StopDaemon(app.cfg)
			case reachable:
				if _, err := app.client().Stop(); err != nil {
					return printErr(app, err)
				}
				// The daemon shuts down from a detached goroutine (see
				// server.go's shutdown), so an immediate reprobe can race
				// it; give it a moment, as stop.py does.
				time.Sleep(500 * time.Millisecond)
			}

			if process.IsDaemonRunning(app.cfg) {
				app.out.PrintError("stop_failed", "Daemon is still running after stop attempt.")
				return fmt.Errorf("daemon is still running after stop attempt")
			}
			app.out.PrintStopped()
			return nil
		},
	}
}

func newLockCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "Lock the stash and clear clipboard.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = clipboard.Clear("")

			if !process.IsDaemonRunning(app.cfg) {
				app.out.PrintLocked()
				return nil
			}
			resp, err := app.client().Lock()
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			app.out.PrintLocked()
			return nil
		},
	}
}

func newUnlockCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock",
		Short: "Unlock with master password.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.ensureDaemon(cmd.Context()); err != nil {
				return printErr(app, err)
			}
			password, err := PromptPassword("Enter master password: ")
			if err != nil {
				return printErr(app, err)
			}
			resp, err := app.client().Unlock(password)
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			app.out.PrintUnlocked()
			return nil
		},
	}
}

func newHealthCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:     "health",
		Aliases: []string{"h"},
		Short:   "Show daemon status.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !process.IsDaemonRunning(app.cfg) {
				app.out.PrintHealth(false, true)
				return nil
			}
			resp, err := app.client().Health()
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			unlocked, _ := resp.Data["unlocked"].(bool)
			app.out.PrintHealth(true, !unlocked)
			return nil
		},
	}
}

func newGetCommand(app *appContext) *cobra.Command {
	var stdout bool
	cmd := &cobra.Command{
		Use:     "get <key>",
		Short:   "Copy secret to clipboard (or --stdout for stdout).",
		Args:    cobra.ExactArgs(1),
		Aliases: []string{"g"},
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := app.ensureDaemon(cmd.Context()); err != nil {
				return printErr(app, err)
			}
			resp, err := app.client().SendAutoUnlock("get", map[string]string{"key": key}, func() (string, error) {
				return PromptPassword("Enter master password: ")
			})
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			value, _ := resp.Data["value"].(string)
			if stdout {
				app.out.PrintSecretStdout(key, value)
				return nil
			}
			if err := clipboard.Copy(value); err != nil {
				return printErr(app, err)
			}
			app.out.PrintSecretCopied(key)
			_, _ = app.client().ScheduleClipboardClear(value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&stdout, "stdout", false, "Print to stdout instead of copying to clipboard")
	return cmd
}

func newListCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:     "list [filter]",
		Aliases: []string{"l"},
		Short:   "List stored keys, optionally filter by substring.",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := ""
			if len(args) == 1 {
				filter = args[0]
			}
			if err := app.ensureDaemon(cmd.Context()); err != nil {
				return printErr(app, err)
			}
			params := map[string]string{}
			if filter != "" {
				params["filter"] = filter
			}
			resp, err := app.client().SendAutoUnlock("list", params, func() (string, error) {
				return PromptPassword("Enter master password: ")
			})
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			keys := toStringSlice(resp.Data["keys"])
			app.out.PrintList(keys)
			return nil
		},
	}
}

func newAddCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "add <key>",
		Short: "Add a new secret (value entered interactively).",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := app.ensureDaemon(cmd.Context()); err != nil {
				return printErr(app, err)
			}
			client := app.client()

			// Unlock before prompting for the value: password first, then secret.
			health, err := client.Health()
			if err == nil && health.Ok {
				if unlocked, _ := health.Data["unlocked"].(bool); !unlocked {
					password, err := PromptPassword("Enter master password: ")
					if err != nil {
						return printErr(app, err)
					}
					if unlockResp, err := client.Unlock(password); err != nil {
						return printErr(app, err)
					} else if !unlockResp.Ok {
						return printResponseErr(app, unlockResp)
					}
				}
			}

			value, err := PromptPassword("Enter value: ")
			if err != nil {
				return printErr(app, err)
			}
			resp, err := client.Add(key, value)
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			app.out.PrintSecretAdded(key)
			return nil
		},
	}
}

func newDeleteCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a secret.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := app.ensureDaemon(cmd.Context()); err != nil {
				return printErr(app, err)
			}
			resp, err := app.client().SendAutoUnlock("delete", map[string]string{"key": key}, func() (string, error) {
				return PromptPassword("Enter master password: ")
			})
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			app.out.PrintSecretDeleted(key)
			return nil
		},
	}
}

func newRenameCommand(app *appContext) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <key> <new-key>",
		Short: "Rename a secret key without changing its value.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, newKey := args[0], args[1]
			if err := app.ensureDaemon(cmd.Context()); err != nil {
				return printErr(app, err)
			}
			params := map[string]string{"key": key, "new_key": newKey}
			resp, err := app.client().SendAutoUnlock("rename", params, func() (string, error) {
				return PromptPassword("Enter master password: ")
			})
			if err != nil {
				return printErr(app, err)
			}
			if !resp.Ok {
				return printResponseErr(app, resp)
			}
			app.out.PrintSecretRenamed(key, newKey)
			return nil
		},
	}
}

// printErr reports a generic (non-stash, non-protocol) error through
// app.out.PrintError so every failing command emits exactly one line on
// stderr, then returns it unchanged for cobra to turn into an exit code.
func printErr(app *appContext, err error) error {
	if err == nil {
		return nil
	}
	app.out.PrintError("internal", err.Error())
	return err
}

func printStashErr(app *appContext, err error) error {
	if se, ok := err.(*stash.Error); ok {
		app.out.PrintError(se.Code, se.Message)
		return fmt.Errorf("%s", se.Message)
	}
	app.out.PrintError("internal", err.Error())
	return err
}

func printResponseErr(app *appContext, resp protocol.Response) error {
	app.out.PrintError(resp.Error, resp.Message)
	return fmt.Errorf("%s", resp.Message)
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
