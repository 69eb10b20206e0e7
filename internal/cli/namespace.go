package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memgit-oss/memgit/pkg/memgit"
)

var namespaceDescription string

var namespaceCmd = &cobra.Command{
	Use:   "namespace",
	Short: "Create and list namespaces",
}

var namespaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a namespace on the current branch",
	Args:  cobra.ExactArgs(1),
	RunE:  runNamespaceCreate,
}

var namespaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List namespaces on the current branch",
	RunE:  runNamespaceList,
}

func init() {
	namespaceCreateCmd.Flags().StringVar(&namespaceDescription, "description", "", "namespace description")

	namespaceCmd.AddCommand(namespaceCreateCmd)
	namespaceCmd.AddCommand(namespaceListCmd)
}

func runNamespaceCreate(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	ns, err := client.CreateNamespace(cmd.Context(), memgit.Namespace{
		Name:        args[0],
		Description: namespaceDescription,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Created namespace %s (slug %s)\n", ns.Name, ns.Slug)
	return nil
}

func runNamespaceList(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	namespaces, err := client.Namespaces(cmd.Context())
	if err != nil {
		return err
	}

	for _, ns := range namespaces {
		fmt.Printf("%-20s %s\n", ns.Slug, ns.Description)
	}
	return nil
}
