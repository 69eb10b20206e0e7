package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a starter memgit.yaml in the current directory",
	RunE:  runInit,
}

const starterConfig = `name: my-agent-memory
version: "1.0"

store:
  driver: sqlite          # dolt for a real versioned server
  # host: 127.0.0.1
  # port: 3306
  # user: root
  # password: ${env.MEMGIT_STORE_PASSWORD}
  # database: agent_memory
  protected_branch: main
  default_branch: main

namespace:
  default: default

index:
  enabled: false
  # url: http://localhost:6333
  # collection: memgit_blocks

logging:
  level: info
  format: text

migrations:
  branch_pattern: "^schema/"
`

func runInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat("memgit.yaml"); err == nil {
		return fmt.Errorf("memgit.yaml already exists")
	}

	if err := os.WriteFile("memgit.yaml", []byte(starterConfig), 0644); err != nil {
		return fmt.Errorf("failed to write memgit.yaml: %w", err)
	}

	fmt.Println("Created memgit.yaml")
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  memgit branch create schema/init --from main")
	fmt.Println("  memgit migrate schema/init")
	fmt.Println("  memgit branch create work --from schema/init")
	fmt.Println("  memgit block create -b work --content \"first memory\"")
	return nil
}
