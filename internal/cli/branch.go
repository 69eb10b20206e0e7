package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var branchFrom string

var branchCmd = &cobra.Command{
	Use:   "branch",
	Short: "Create and list branches",
}

var branchCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Fork a new branch",
	Args:  cobra.ExactArgs(1),
	RunE:  runBranchCreate,
}

var branchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List branches",
	RunE:  runBranchList,
}

var commitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the current branch's working set",
	RunE:  runCommit,
}

var commitMessage string

func init() {
	branchCreateCmd.Flags().StringVar(&branchFrom, "from", "", "base branch (default: current branch)")
	commitCmd.Flags().StringVarP(&commitMessage, "message", "m", "", "commit message (required)")
	commitCmd.MarkFlagRequired("message")

	branchCmd.AddCommand(branchCreateCmd)
	branchCmd.AddCommand(branchListCmd)
}

func runBranchCreate(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.CreateBranch(cmd.Context(), args[0], branchFrom); err != nil {
		return err
	}
	fmt.Printf("Created branch %s\n", args[0])
	return nil
}

func runBranchList(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	branches, err := client.Branches(cmd.Context())
	if err != nil {
		return err
	}

	active := client.ActiveBranch()
	protected := client.Config().Store.ProtectedBranch
	for _, b := range branches {
		marker := " "
		if b == active {
			marker = "*"
		}
		note := ""
		if b == protected {
			note = " (protected)"
		}
		fmt.Printf("%s %s%s\n", marker, b, note)
	}
	return nil
}

func runCommit(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	hash, err := client.Commit(cmd.Context(), commitMessage)
	if err != nil {
		return err
	}
	fmt.Printf("Committed %s as %s\n", client.ActiveBranch(), hash)
	return nil
}
