package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/memgit-oss/memgit/internal/config"
	"github.com/memgit-oss/memgit/pkg/memgit"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check environment and store connectivity",
	Long:  "Validate that the configuration, the versioned store, and the optional index are reachable.",
	RunE:  runDoctor,
}

func runDoctor(cmd *cobra.Command, args []string) error {
	fmt.Println("memgit doctor — checking your environment")
	fmt.Println()
	allOK := true

	// 1. Go version
	fmt.Printf("  Go version: %s", runtime.Version())
	fmt.Println(" ✓")

	// 2. OS/Arch
	fmt.Printf("  Platform:   %s/%s", runtime.GOOS, runtime.GOARCH)
	fmt.Println(" ✓")

	// 3. Configuration
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Printf("  Config:     INVALID (%s) ✗\n", err)
		fmt.Println("    → Run 'memgit init' to create a project")
		fmt.Println()
		fmt.Println("Some checks failed. See above for details.")
		return nil
	}
	fmt.Printf("  Config:     %s (driver %s)", cfg.Name, cfg.Store.Driver)
	fmt.Println(" ✓")

	// 4. Store connectivity. The index is probed separately so a down
	// Qdrant does not mask a healthy store.
	probe := *cfg
	probe.Index.Enabled = false
	client, err := memgit.OpenWithConfig(&probe, memgit.Options{})
	if err != nil {
		fmt.Printf("  Store:      FAILED (%s) ✗\n", err)
		allOK = false
	} else {
		branches, err := client.Branches(cmd.Context())
		if err != nil {
			fmt.Printf("  Store:      connected, branch listing failed (%s) ✗\n", err)
			allOK = false
		} else {
			fmt.Printf("  Store:      %d branch(es), protected %q", len(branches), cfg.Store.ProtectedBranch)
			fmt.Println(" ✓")
		}
		client.Close()
	}

	// 5. Semantic index
	if cfg.Index.Enabled {
		fmt.Printf("  Index:      enabled (%s, collection %s)\n", cfg.Index.URL, cfg.Index.Collection)
		fmt.Println("    → Reachability is checked on first use; supply an embedder via the API")
	} else {
		fmt.Println("  Index:      disabled")
	}

	fmt.Println()
	if allOK {
		fmt.Println("All checks passed!")
	} else {
		fmt.Println("Some checks failed. See above for details.")
	}
	return nil
}
