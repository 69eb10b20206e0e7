package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Cross-check the link graph against the block table",
	Long: `Scan the current branch for links whose endpoints no longer exist.

The scan only runs with --verbose; without it the command reports any
inconsistencies already recorded during the session.`,
	RunE: runVerify,
}

func runVerify(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Verify(cmd.Context()); err != nil {
		return err
	}
	fmt.Printf("Branch %s is consistent\n", client.ActiveBranch())
	return nil
}
