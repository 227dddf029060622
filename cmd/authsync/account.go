package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/authsync"
)

var signUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Register an account and confirm it",
	Long: `Register an account. When the provider sends a confirmation code the
command prompts for it, unless --no-prompt is set.

Examples:
  authsync signup --email a@example.com --username alice
  authsync signup --email a@example.com --username alice --password s3cret --no-prompt`,
	RunE: runSignUp,
}

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Confirm a registered account with its code",
	RunE:  runConfirm,
}

var resendCmd = &cobra.Command{
	Use:   "resend",
	Short: "Send the confirmation code again and prompt for it",
	RunE:  runResend,
}

var signInCmd = &cobra.Command{
	Use:   "signin",
	Short: "Sign in and store the session",
	RunE:  runSignIn,
}

var signOutCmd = &cobra.Command{
	Use:   "signout",
	Short: "Sign out and clear the session",
	RunE:  runSignOut,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the session restored at startup",
	RunE:  runWhoami,
}

func init() {
	rootCmd.AddCommand(signUpCmd, confirmCmd, resendCmd, signInCmd, signOutCmd, whoamiCmd)

	signUpCmd.Flags().String("email", "", "account email")
	signUpCmd.Flags().String("username", "", "account username")
	signUpCmd.Flags().String("password", "", "account password (prompted when empty)")
	signUpCmd.Flags().Bool("no-prompt", false, "do not prompt for the confirmation code")

	confirmCmd.Flags().String("username", "", "account username")
	confirmCmd.Flags().String("code", "", "confirmation code")

	resendCmd.Flags().String("username", "", "account username")
	resendCmd.Flags().Bool("no-prompt", false, "do not prompt for the new code")

	signInCmd.Flags().String("username", "", "account username")
	signInCmd.Flags().String("password", "", "account password (prompted when empty)")

	whoamiCmd.Flags().Bool("health", false, "also probe the provider")
}

type prompter struct {
	in  *bufio.Reader
	out io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	return &prompter{in: bufio.NewReader(cmd.InOrStdin()), out: cmd.OutOrStdout()}
}

func (p *prompter) ask(label string) string {
	fmt.Fprintf(p.out, "%s: ", label)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimRight(line, "\r\n")
}

func (p *prompter) value(current, label string) string {
	if current != "" {
		return current
	}
	return p.ask(label)
}

// report prints the outcome message and passes err through.
func report(cmd *cobra.Command, out authsync.Outcome, err error) error {
	if out.Message != "" {
		fmt.Fprintln(cmd.OutOrStdout(), out.Message)
	}
	return err
}

// confirmInteractively prompts for a code until confirmation succeeds or the
// input is blank.
func confirmInteractively(ctx context.Context, cmd *cobra.Command, p *prompter, flow *authsync.AuthFlow) error {
	for flow.State() == authsync.FlowAwaitingConfirmation {
		code := strings.TrimSpace(p.ask("confirmation code"))
		if code == "" {
			return nil
		}
		out, err := flow.ConfirmSignUp(ctx, code)
		if err == nil {
			return report(cmd, out, nil)
		}
		_ = report(cmd, out, err)
		logger.Debug("confirmation failed", "op", "ConfirmSignUp", "error", err)
	}
	return nil
}

func runSignUp(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	email, _ := cmd.Flags().GetString("email")
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")

	p := newPrompter(cmd)
	password = p.value(password, "password")

	rt, err := openRuntime(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.flow.ShowSignUp()
	out, err := rt.flow.SubmitSignUp(ctx, email, username, password)
	if err := report(cmd, out, err); err != nil {
		return err
	}
	if noPrompt {
		return nil
	}
	return confirmInteractively(ctx, cmd, p, rt.flow)
}

func runConfirm(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	username, _ := cmd.Flags().GetString("username")
	code, _ := cmd.Flags().GetString("code")
	code = newPrompter(cmd).value(code, "confirmation code")

	rt, err := openRuntime(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	if out := rt.flow.ResumeConfirmation(username); out.State != authsync.FlowAwaitingConfirmation {
		return report(cmd, out, authsync.ErrNoPendingRegistration)
	}
	out, err := rt.flow.ConfirmSignUp(ctx, code)
	return report(cmd, out, err)
}

func runResend(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	username, _ := cmd.Flags().GetString("username")
	noPrompt, _ := cmd.Flags().GetBool("no-prompt")

	rt, err := openRuntime(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	if out := rt.flow.ResumeConfirmation(username); out.State != authsync.FlowAwaitingConfirmation {
		return report(cmd, out, authsync.ErrNoPendingRegistration)
	}
	out, err := rt.flow.ResendConfirmationCode(ctx)
	if err := report(cmd, out, err); err != nil {
		return err
	}
	if noPrompt {
		return nil
	}
	return confirmInteractively(ctx, cmd, newPrompter(cmd), rt.flow)
}

func runSignIn(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	p := newPrompter(cmd)
	username = p.value(username, "username")
	password = p.value(password, "password")

	rt, err := openRuntime(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	out, err := rt.flow.SubmitSignIn(ctx, username, password)
	if rt.flow.State() == authsync.FlowAwaitingConfirmation {
		_ = report(cmd, out, err)
		return confirmInteractively(ctx, cmd, p, rt.flow)
	}
	if err := report(cmd, out, err); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s\n", rt.engine.Session().Username())
	return nil
}

func runSignOut(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	rt, err := openRuntime(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	// The local session is cleared even when the provider call fails.
	if err := rt.engine.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext(cmd)
	defer cancel()

	withHealth, _ := cmd.Flags().GetBool("health")

	rt, err := openRuntime(ctx, runtimeOptions{})
	if err != nil {
		return err
	}
	defer rt.Close()

	printSessionInfo(cmd.OutOrStdout(), rt.engine)
	if withHealth {
		h := rt.engine.Health(ctx)
		fmt.Fprintf(cmd.OutOrStdout(), "provider:  available=%t latency=%s subscribed=%t\n",
			h.ProviderAvailable, h.ProviderLatency, h.BridgeSubscribed)
	}
	return nil
}

func printSessionInfo(w io.Writer, e *authsync.Engine) {
	info := e.SessionInfo()
	fmt.Fprintf(w, "phase:     %s\n", info.Phase)
	fmt.Fprintf(w, "route:     %s\n", e.InitialRoute())
	if !info.Authenticated {
		fmt.Fprintln(w, "session:   anonymous")
		return
	}
	fmt.Fprintf(w, "username:  %s\n", info.Username)
	fmt.Fprintf(w, "version:   %d\n", info.Version)
	if !info.IDTokenExpiresAt.IsZero() {
		fmt.Fprintf(w, "expires:   %s\n", info.IDTokenExpiresAt.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(w, "cached:    %t\n", info.TokenCached)
}
