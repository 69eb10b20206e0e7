package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memgit-oss/memgit/pkg/memgit"
)

var (
	blockType      string
	blockContent   string
	blockNamespace string
	blockTags      []string
	blockMetadata  string
	blockCommit    bool
	blockMessage   string
)

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Create, inspect, and delete memory blocks",
}

var blockCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a memory block on the current branch",
	Long: `Create a memory block.

Examples:
  memgit block create -b work --content "the deploy window is 14:00 UTC"
  memgit block create -b work --type document --content "..." \
      --metadata '{"title":"Runbook"}' --commit -m "add runbook"`,
	RunE: runBlockCreate,
}

var blockGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a block as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockGet,
}

var blockDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a block and every link touching it",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockDelete,
}

var blockImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-create blocks from a JSON array of specs",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlockImport,
}

func init() {
	blockCreateCmd.Flags().StringVar(&blockType, "type", memgit.TypeKnowledge, "block type (knowledge, task, document)")
	blockCreateCmd.Flags().StringVar(&blockContent, "content", "", "block content (required)")
	blockCreateCmd.Flags().StringVar(&blockNamespace, "namespace", "", "target namespace (default from config)")
	blockCreateCmd.Flags().StringSliceVar(&blockTags, "tags", nil, "comma-separated tags")
	blockCreateCmd.Flags().StringVar(&blockMetadata, "metadata", "", "metadata as a JSON object")
	blockCreateCmd.Flags().BoolVar(&blockCommit, "commit", false, "commit the block immediately")
	blockCreateCmd.Flags().StringVarP(&blockMessage, "message", "m", "", "commit message (with --commit)")
	blockCreateCmd.MarkFlagRequired("content")

	blockImportCmd.Flags().BoolVar(&blockCommit, "commit", false, "commit the batch after import")
	blockImportCmd.Flags().StringVarP(&blockMessage, "message", "m", "", "commit message (with --commit)")

	blockCmd.AddCommand(blockCreateCmd)
	blockCmd.AddCommand(blockGetCmd)
	blockCmd.AddCommand(blockDeleteCmd)
	blockCmd.AddCommand(blockImportCmd)
}

func runBlockCreate(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	var metadata map[string]interface{}
	if blockMetadata != "" {
		if err := json.Unmarshal([]byte(blockMetadata), &metadata); err != nil {
			return fmt.Errorf("invalid --metadata: %w", err)
		}
	}

	spec := memgit.BlockSpec{
		Type:        blockType,
		Content:     blockContent,
		Metadata:    metadata,
		NamespaceID: blockNamespace,
		Tags:        blockTags,
	}

	var block *memgit.Block
	if blockCommit {
		block, err = client.RememberAndCommit(cmd.Context(), spec, blockMessage)
	} else {
		block, err = client.Remember(cmd.Context(), spec)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Created block %s (%s) on %s\n", block.ID, block.CommitState, block.Branch)
	return nil
}

func runBlockGet(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	block, err := client.Recall(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(block, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runBlockDelete(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Forget(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted block %s\n", args[0])
	return nil
}

func runBlockImport(cmd *cobra.Command, args []string) error {
	client, err := openClient(cmd)
	if err != nil {
		return err
	}
	defer client.Close()

	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	var specs []memgit.BlockSpec
	if err := json.Unmarshal(content, &specs); err != nil {
		return fmt.Errorf("failed to parse %s: %w", args[0], err)
	}

	report, err := client.BulkRemember(cmd.Context(), specs, memgit.CreateOptions{
		AutoCommit:    blockCommit,
		CommitMessage: blockMessage,
	})
	if err != nil {
		return err
	}

	fmt.Printf("Imported %d block(s): %d created, %d skipped, %d failed\n",
		len(specs), report.Successful, report.Skipped, report.Failed)
	for _, item := range report.Items {
		if item.Status != "created" {
			fmt.Printf("  [%d] %s: %s\n", item.Index, item.Status, item.Error)
		}
	}
	return nil
}
