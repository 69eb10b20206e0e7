package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <branch>",
	Short: "Apply pending schema migrations to a schema branch",
	Long: `Apply the builtin schema migrations in sequence order.

Migrations are restricted to branches matching the configured schema
branch pattern (default "^schema/"). Changes reach the protected branch
through a reviewed merge, never by migrating it directly.`,
	Args: cobra.ExactArgs(1),
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	applied, err := client.Migrate(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if applied == 0 {
		fmt.Printf("Branch %s is up to date\n", args[0])
	} else {
		fmt.Printf("Applied %d migration(s) to %s\n", applied, args[0])
	}
	return nil
}
