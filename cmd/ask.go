package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/atmo-climate/atmo/internal/chain"
	"github.com/atmo-climate/atmo/internal/gateway"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a climate question in the terminal",
	Long: `Answers a single question when one is given, otherwise starts an
interactive session. Type exit, quit or q to leave. Ctrl-C cancels the
answer in progress.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("session", "", "continue an existing session")
	askCmd.Flags().Bool("raw", false, "print the wire encoding with fragment markers")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	sessionID, _ := cmd.Flags().GetString("session")
	raw, _ := cmd.Flags().GetBool("raw")

	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.Close()

	out := cmd.OutOrStdout()

	if len(args) == 1 {
		id, err := askOnce(cmd.Context(), a.gateway, out, sessionID, args[0], raw)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "session: %s\n", id)
		return nil
	}

	fmt.Fprintf(out, "\n%s ATMO %s\n", strings.Repeat("-", 11), strings.Repeat("-", 11))
	fmt.Fprintf(out, " Climate questions with a focus on %s. Type 'exit' to quit.\n", a.region.Name)

	for {
		prompt := promptui.Prompt{Label: "What do you want to know about climate science today?"}
		line, err := prompt.Run()
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading question: %w", err)
		}

		question := strings.TrimSpace(line)
		if question == "" {
			continue
		}
		if isExit(question) {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		id, err := askOnce(cmd.Context(), a.gateway, out, sessionID, question, raw)
		if err != nil {
			fmt.Fprintf(out, "I hit a snag: %v\n", err)
			continue
		}
		sessionID = id
	}
}

func isExit(s string) bool {
	switch strings.ToLower(s) {
	case "exit", "quit", "q":
		return true
	}
	return false
}

// askOnce runs one turn and renders it to out. Ctrl-C cancels the turn.
func askOnce(parent context.Context, gw *gateway.Gateway, out io.Writer, sessionID, question string, raw bool) (string, error) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt)
	defer stop()

	turn, err := gw.Begin(ctx, sessionID, question)
	if err != nil {
		return sessionID, err
	}

	for f := range turn.Fragments() {
		renderFragment(out, f, raw)
	}
	return turn.SessionID, nil
}

var rule = strings.Repeat("=", 50)

// renderFragment writes f for a terminal reader, or its wire encoding when
// raw is set.
func renderFragment(w io.Writer, f chain.Fragment, raw bool) {
	if raw {
		io.WriteString(w, f.Wire())
		if f.Terminal() {
			io.WriteString(w, "\n")
		}
		return
	}
	switch f.Kind {
	case chain.KindThought:
		fmt.Fprintf(w, "  ~ %s\n", f.Text)
	case chain.KindFact:
		fmt.Fprintf(w, "\n  Background: %s\n", f.Text)
	case chain.KindAnswerStart:
		fmt.Fprintf(w, "\n%s\n\n", rule)
	case chain.KindAnswerChunk:
		io.WriteString(w, f.Text)
	case chain.KindAnswerEnd:
		fmt.Fprintf(w, "\n\n%s\n", rule)
	case chain.KindError:
		fmt.Fprintf(w, "\n%s\n\n%s\n", f.Text, rule)
	}
}
