package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mpetrun5/drover/internal/workspace"
)

var workspaceNoValidate bool

var workspaceCmd = &cobra.Command{
	Use:   "workspace",
	Short: "Manage isolated agent workspaces",
	Long: `Manage the isolated, branch-scoped workspaces agents run in. All
operations are idempotent and independently callable.

Merge validates the workspace first and refuses on failure; pass
--no-validate to merge regardless.`,
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an isolated workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cleanup, err := newWorkspaceManager()
		if err != nil {
			return err
		}
		defer cleanup()
		ws, err := m.Create(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("created %s at %s (branch %s)\n", ws.Name, ws.Path, ws.Branch)
		return nil
	},
}

var workspaceStatusCmd = &cobra.Command{
	Use:   "status <name>",
	Short: "Show workspace checkout status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cleanup, err := newWorkspaceManager()
		if err != nil {
			return err
		}
		defer cleanup()
		status, err := m.Status(args[0])
		if err != nil {
			return err
		}
		if status == "" {
			fmt.Println("clean")
			return nil
		}
		fmt.Println(status)
		return nil
	},
}

var workspaceValidateCmd = &cobra.Command{
	Use:   "validate <name>",
	Short: "Run validation against a workspace",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cleanup, err := newWorkspaceManager()
		if err != nil {
			return err
		}
		defer cleanup()
		if err := m.Validate(args[0]); err != nil {
			return err
		}
		fmt.Println("validation passed")
		return nil
	},
}

var workspaceCommitCmd = &cobra.Command{
	Use:   "commit <name> [message]",
	Short: "Commit all changes in a workspace",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cleanup, err := newWorkspaceManager()
		if err != nil {
			return err
		}
		defer cleanup()
		message := "drover: agent changes"
		if len(args) > 1 {
			message = args[1]
		}
		return m.Commit(args[0], message)
	},
}

var workspaceMergeCmd = &cobra.Command{
	Use:   "merge <name>",
	Short: "Validate and merge a workspace branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cleanup, err := newWorkspaceManager()
		if err != nil {
			return err
		}
		defer cleanup()
		err = m.Merge(args[0], workspace.MergeOptions{NoValidate: workspaceNoValidate})
		if errors.Is(err, workspace.ErrValidationFailed) {
			return fmt.Errorf("merge refused: %w", err)
		}
		if err != nil {
			return err
		}
		fmt.Printf("merged %s\n", args[0])
		return nil
	},
}

var workspaceCleanupCmd = &cobra.Command{
	Use:   "cleanup <name>",
	Short: "Destroy a workspace and its branch",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, cleanup, err := newWorkspaceManager()
		if err != nil {
			return err
		}
		defer cleanup()
		return m.Cleanup(args[0], true)
	},
}

var workspaceCleanupAllCmd = &cobra.Command{
	Use:   "cleanup-all",
	Short: "Destroy all workspaces not owned by an active run",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(nil)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.workspaces == nil {
			return fmt.Errorf("workspace isolation is not enabled")
		}
		active, err := a.db.ActiveWorkspaceRefs()
		if err != nil {
			return err
		}
		removed, err := a.workspaces.CleanupAll(active)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d workspaces\n", removed)
		return nil
	},
}

// newWorkspaceManager builds a standalone manager for direct workspace
// commands, independent of whether supervisor-side isolation is enabled.
func newWorkspaceManager() (*workspace.Manager, func(), error) {
	a, err := newApp(nil)
	if err != nil {
		return nil, nil, err
	}
	if a.workspaces != nil {
		return a.workspaces, a.Close, nil
	}
	m, err := workspace.NewManager(a.cfg.Workspace.BaseDir, workspace.NewExecGit(a.root),
		workspace.CommandValidator(a.cfg.Workspace.ValidateCommand))
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return m, a.Close, nil
}

func init() {
	workspaceMergeCmd.Flags().BoolVar(&workspaceNoValidate, "no-validate", false, "Merge even if validation fails")

	workspaceCmd.AddCommand(workspaceCreateCmd)
	workspaceCmd.AddCommand(workspaceStatusCmd)
	workspaceCmd.AddCommand(workspaceValidateCmd)
	workspaceCmd.AddCommand(workspaceCommitCmd)
	workspaceCmd.AddCommand(workspaceMergeCmd)
	workspaceCmd.AddCommand(workspaceCleanupCmd)
	workspaceCmd.AddCommand(workspaceCleanupAllCmd)
}
