package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/atmo-climate/atmo/internal/export"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect and maintain stored conversations",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List sessions, most recent first",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		sessions, err := store.ListSessions(context.Background())
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(sessions)
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions yet. Run `atmo ask` to start one.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTITLE\tMESSAGES\tLAST ACTIVITY")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", s.ID, s.Title, s.MessageCount, s.LastActivity.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Print a session transcript",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		msgs, err := store.Messages(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return fmt.Errorf("no session found with id %q", args[0])
		}
		for _, m := range msgs {
			fmt.Printf("[%s] %s: %s\n\n", m.Timestamp.Format("2006-01-02 15:04:05"), m.Role, m.Content)
		}
		return nil
	},
}

var sessionsDeleteCmd = &cobra.Command{
	Use:   "delete <session-id>",
	Short: "Delete a session and all its messages",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := store.DeleteSession(context.Background(), args[0])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("no session found with id %q", args[0])
		}
		fmt.Printf("Deleted %d messages from session %s\n", n, args[0])
		return nil
	},
}

var sessionsSearchCmd = &cobra.Command{
	Use:   "search <term>",
	Short: "Find messages containing a term",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		msgs, err := store.Search(context.Background(), args[0], limit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No matching messages.")
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("%s  %-9s  %s\n", m.SessionID, m.Role, truncate(m.Content, 100))
		}
		return nil
	},
}

var sessionsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete every session that never mentions a term",
	RunE: func(cmd *cobra.Command, args []string) error {
		keep, _ := cmd.Flags().GetString("keep-matching")
		yes, _ := cmd.Flags().GetBool("yes")
		if keep == "" {
			return fmt.Errorf("--keep-matching is required")
		}

		if !yes {
			confirm := promptui.Prompt{
				Label:     fmt.Sprintf("Delete all sessions that do not mention %q", keep),
				IsConfirm: true,
			}
			if _, err := confirm.Run(); err != nil {
				fmt.Println("Aborted.")
				return nil
			}
		}

		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		n, err := store.Prune(context.Background(), keep)
		if err != nil {
			return err
		}
		if n == 0 {
			fmt.Println("Nothing pruned.")
			return nil
		}
		fmt.Printf("Pruned %d messages\n", n)
		return nil
	},
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <session-id>",
	Short: "Export a session as Markdown or HTML",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		store, closeFn, err := openStore()
		if err != nil {
			return err
		}
		defer closeFn()

		msgs, err := store.Messages(context.Background(), args[0])
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return fmt.Errorf("no session found with id %q", args[0])
		}

		content, _, err := export.Render(format, args[0], msgs)
		if err != nil {
			return err
		}
		if output == "" {
			fmt.Print(content)
			return nil
		}
		if err := os.WriteFile(output, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", output, err)
		}
		fmt.Fprintf(os.Stderr, "Exported %d messages to %s\n", len(msgs), output)
		return nil
	},
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	sessionsListCmd.Flags().Bool("json", false, "output sessions as JSON")
	sessionsSearchCmd.Flags().Int("limit", 50, "maximum number of messages")
	sessionsPruneCmd.Flags().String("keep-matching", "", "keep only sessions with a message containing this term")
	sessionsPruneCmd.Flags().BoolP("yes", "y", false, "skip the confirmation prompt")
	sessionsExportCmd.Flags().String("format", export.FormatMarkdown, "export format: md or html")
	sessionsExportCmd.Flags().StringP("output", "o", "", "write to a file instead of stdout")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd, sessionsDeleteCmd,
		sessionsSearchCmd, sessionsPruneCmd, sessionsExportCmd)
	rootCmd.AddCommand(sessionsCmd)
}
