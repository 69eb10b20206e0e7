package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/memgit-oss/memgit/pkg/memgit"
)

var (
	linkPriority  int
	linkDirection string
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Create and list typed links between blocks",
}

var linkCreateCmd = &cobra.Command{
	Use:   "create <from-id> <to-id> <relation>",
	Short: "Create a typed link (the inverse edge is written automatically)",
	Args:  cobra.ExactArgs(3),
	RunE:  runLinkCreate,
}

var linkListCmd = &cobra.Command{
	Use:   "list <block-id>",
	Short: "List a block's links",
	Args:  cobra.ExactArgs(1),
	RunE:  runLinkList,
}

func init() {
	linkCreateCmd.Flags().IntVar(&linkPriority, "priority", 0, "link priority (lower sorts first)")
	linkListCmd.Flags().StringVar(&linkDirection, "direction", "both", "forward, inverse, or both")

	linkCmd.AddCommand(linkCreateCmd)
	linkCmd.AddCommand(linkListCmd)
}

func runLinkCreate(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	link, err := client.LinkBlocks(cmd.Context(), memgit.LinkSpec{
		FromID:   args[0],
		ToID:     args[1],
		Relation: args[2],
		Priority: linkPriority,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Linked %s -[%s]-> %s\n", link.FromID, link.Relation, link.ToID)
	if link.InverseRelation != "" {
		fmt.Printf("       %s -[%s]-> %s\n", link.ToID, link.InverseRelation, link.FromID)
	}
	return nil
}

func runLinkList(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	links, err := client.LinksFor(cmd.Context(), args[0], memgit.Direction(linkDirection))
	if err != nil {
		return err
	}

	if len(links) == 0 {
		fmt.Println("No links.")
		return nil
	}
	for _, l := range links {
		fmt.Printf("%s -[%s]-> %s  (priority %d)\n", l.FromID, l.Relation, l.ToID, l.Priority)
	}
	return nil
}
