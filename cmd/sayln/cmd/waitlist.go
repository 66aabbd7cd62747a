package cmd

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/guoyu-zhang/say-like-a-native/internal/output"
	"github.com/guoyu-zhang/say-like-a-native/internal/waitlist"
)

func newWaitlistCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "waitlist",
		Short: "Inspect and edit the waitlist",
	}
	cmd.AddCommand(newWaitlistListCmd())
	cmd.AddCommand(newWaitlistAddCmd())
	return cmd
}

func openWaitlist() (*waitlist.Waitlist, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return waitlist.New(cfg.Waitlist.Path), nil
}

func newWaitlistListCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List signups",
		RunE: func(cmd *cobra.Command, _ []string) error {
			wl, err := openWaitlist()
			if err != nil {
				return err
			}
			entries, err := wl.List(cmd.Context())
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"count": len(entries), "entries": entries})
			}

			out := output.New(cmd.OutOrStdout())
			if len(entries) == 0 {
				out.Status("📭", "The waitlist is empty")
				return nil
			}
			rows := make([][]string, 0, len(entries))
			for _, e := range entries {
				rows = append(rows, []string{e.Email, e.CreatedAt.Local().Format("2006-01-02 15:04")})
			}
			out.Table([]string{"Email", "Joined"}, rows)
			out.Statusf("", "%d signups", len(entries))
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newWaitlistAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <email>",
		Short: "Add an email to the waitlist",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wl, err := openWaitlist()
			if err != nil {
				return err
			}
			out := output.New(cmd.OutOrStdout())

			entry, added, err := wl.Add(cmd.Context(), args[0])
			if errors.Is(err, waitlist.ErrInvalidEmail) {
				out.Error("A valid email address is required")
				return err
			}
			if err != nil {
				return err
			}
			if !added {
				out.Warningf("%s is already registered", entry.Email)
				return nil
			}
			out.Successf("Added %s", entry.Email)
			return nil
		},
	}
}
