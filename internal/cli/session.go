package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nox-kernel/central/internal/config"
	"github.com/nox-kernel/central/internal/session"
)

func newSessionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect and manage session archives",
	}
	cmd.AddCommand(newSessionLsCmd())
	cmd.AddCommand(newSessionShowCmd())
	cmd.AddCommand(newSessionTitleCmd())
	cmd.AddCommand(newSessionMergeCmd())
	cmd.AddCommand(newSessionArchiveCmd())
	return cmd
}

func newSessionLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls",
		Short: "List sessions, most recently updated first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			metas, err := session.List(cfg.ResolvedSessionRoot())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), session.FormatTable(metas))
			return nil
		},
	}
}

func newSessionShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <session-id-or-path>",
		Short: "Print a session's messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logPath, err := session.Resolve(cfg.ResolvedSessionRoot(), args[0])
			if err != nil {
				return err
			}
			messages, err := session.LoadMessages(logPath)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range messages {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
			}
			return nil
		},
	}
}

func newSessionTitleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "title <session-id-or-path> <title>",
		Short: "Set a session's custom title",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logPath, err := session.Resolve(cfg.ResolvedSessionRoot(), args[0])
			if err != nil {
				return err
			}
			title := args[1]
			return session.SetTitle(logPath, &title, true)
		},
	}
}

func newSessionMergeCmd() *cobra.Command {
	var title string

	cmd := &cobra.Command{
		Use:   "merge <session-id-or-path>...",
		Short: "Merge multiple sessions into one, oldest first",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			paths := make([]string, len(args))
			for i, arg := range args {
				p, err := session.Resolve(cfg.ResolvedSessionRoot(), arg)
				if err != nil {
					return err
				}
				paths[i] = p
			}
			var titlePtr *string
			if title != "" {
				titlePtr = &title
			}
			mergedPath, err := session.Merge(paths, titlePtr, cfg.ResolvedSessionRoot())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), mergedPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "Custom title for the merged session")
	return cmd
}

func newSessionArchiveCmd() *cobra.Command {
	var deleteSources bool

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Merge all-but-the-latest session under the archive root",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			archivePath, err := session.ArchiveEarly(cfg.ResolvedSessionRoot(), cfg.ResolvedArchiveRoot(), deleteSources)
			if err != nil {
				return err
			}
			if archivePath == "" {
				fmt.Fprintln(cmd.OutOrStdout(), "nothing to archive")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), archivePath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&deleteSources, "delete-sources", false, "Remove the original session files after archiving")
	return cmd
}
