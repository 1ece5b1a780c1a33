package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/promptvault/promptvault-server/internal/service"
)

var (
	addTags      string
	searchTerm   string
	assumeYes    bool
	registerName string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account and sign in",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if email == "" || password == "" {
			return errors.New("register needs --email and --password")
		}
		a, err := openApp(cmd.Context(), service.SessionOptions{}, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.auth.Register(cmd.Context(), service.RegisterRequest{
			Email:       email,
			Password:    password,
			DisplayName: registerName,
		})
		if err != nil {
			return err
		}
		a.saveToken(resp.AccessToken)
		fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", resp.User.DisplayName)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Add a prompt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withSession(cmd, service.SessionOptions{}, func(ctx context.Context, s *service.Session) error {
			form := s.Form()
			form.SetText(args[0])
			form.SetTags(addTags)
			if err := form.Submit(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Prompt added")
			return nil
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List your prompts",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, service.SessionOptions{}, func(ctx context.Context, s *service.Session) error {
			view := s.View()
			view.SetSearchTerm(searchTerm)
			if err := waitLoaded(ctx, view); err != nil {
				return err
			}
			return renderView(cmd.OutOrStdout(), view)
		})
	},
}

var rmCmd = &cobra.Command{
	Use:   "rm <id>",
	Short: "Delete a prompt after confirmation",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		confirmer := newTerminalConfirmer(cmd.InOrStdin(), cmd.OutOrStdout(), assumeYes)
		return withSession(cmd, service.SessionOptions{Confirmer: confirmer}, func(ctx context.Context, s *service.Session) error {
			if err := waitLoaded(ctx, s.View()); err != nil {
				return err
			}
			deleted, err := s.RequestDelete(ctx, args[0])
			if err != nil {
				return err
			}
			if deleted {
				fmt.Fprintln(cmd.OutOrStdout(), "Prompt deleted")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled")
			}
			return nil
		})
	},
}

var copyCmd = &cobra.Command{
	Use:   "copy <id>",
	Short: "Copy a prompt to the clipboard",
	Long: `copy writes the prompt text to the terminal clipboard with an OSC 52
escape sequence, which works over SSH in terminals that support it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		clipboard := osc52Clipboard{w: cmd.OutOrStdout()}
		return withSession(cmd, service.SessionOptions{Clipboard: clipboard}, func(ctx context.Context, s *service.Session) error {
			if err := waitLoaded(ctx, s.View()); err != nil {
				return err
			}
			if err := s.Copy(args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Copied to clipboard")
			return nil
		})
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Show your prompts and redraw on every change",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return withSession(cmd, service.SessionOptions{}, func(ctx context.Context, s *service.Session) error {
			view := s.View()
			view.SetSearchTerm(searchTerm)
			out := cmd.OutOrStdout()
			for {
				select {
				case <-ctx.Done():
					return nil
				case <-view.Updates():
					if err := view.Err(); err != nil {
						fmt.Fprintf(out, "sync error: %v\n", err)
						continue
					}
					if !view.Loaded() {
						continue
					}
					fmt.Fprint(out, clearScreen)
					if err := renderView(out, view); err != nil {
						return err
					}
				}
			}
		})
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "display name (default: email local part)")
	addCmd.Flags().StringVar(&addTags, "tags", "", "comma separated tags")
	listCmd.Flags().StringVar(&searchTerm, "search", "", "only show prompts whose text or tags contain this")
	watchCmd.Flags().StringVar(&searchTerm, "search", "", "only show prompts whose text or tags contain this")
	rmCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "skip the confirmation prompt")
}

// withSession opens the data directory, signs in and runs fn.
func withSession(cmd *cobra.Command, opts service.SessionOptions, fn func(context.Context, *service.Session) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.signIn(ctx); err != nil {
		return err
	}
	return fn(ctx, a.session)
}
