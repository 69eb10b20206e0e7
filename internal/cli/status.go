package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show branches, namespaces, and engine counters",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx := cmd.Context()

	branches, err := client.Branches(ctx)
	if err != nil {
		return fmt.Errorf("failed to list branches: %w", err)
	}

	active := client.ActiveBranch()
	protected := client.Config().Store.ProtectedBranch

	fmt.Println("Branches:")
	fmt.Println("---------")
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

	namespaces, err := client.Namespaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to list namespaces: %w", err)
	}
	fmt.Println()
	fmt.Printf("Namespaces on %s:\n", active)
	fmt.Println("-----------------")
	for _, ns := range namespaces {
		fmt.Printf("  %s", ns.Slug)
		if ns.Description != "" {
			fmt.Printf("  %s", ns.Description)
		}
		fmt.Println()
	}

	snap := client.Metrics()
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fmt.Println()
	fmt.Println("Counters:")
	fmt.Println("---------")
	for _, k := range keys {
		fmt.Printf("  %-20s %d\n", k, snap[k])
	}
	return nil
}
