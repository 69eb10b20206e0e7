package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/memgit-oss/memgit/pkg/memgit"
)

var (
	cfgFile string
	verbose bool
	branch  string
)

var rootCmd = &cobra.Command{
	Use:   "memgit",
	Short: "Version-controlled memory for autonomous agents",
	Long: `memgit - structured memory your agents can branch, diff, and commit.

Memory blocks and the links between them live on a branch-versioned
relational store with a protected canonical branch, namespace isolation,
and full commit provenance.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./memgit.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&branch, "branch", "b", "", "branch to operate on (default from config)")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(blockCmd)
	rootCmd.AddCommand(linkCmd)
	rootCmd.AddCommand(namespaceCmd)
	rootCmd.AddCommand(branchCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

func initConfig() {
	// Pick up a .env alongside the project config, if present.
	_ = godotenv.Load()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("memgit")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("MEMGIT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		if verbose {
			fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
		}
	}
}

// openClient connects using the project config and, when --branch is given,
// switches the session onto that branch before any command logic runs.
func openClient(cmd *cobra.Command) (*memgit.Client, error) {
	client, err := memgit.OpenWithOptions(".", memgit.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if branch != "" && branch != client.ActiveBranch() {
		if err := client.SwitchBranch(cmd.Context(), branch); err != nil {
			client.Close()
			return nil, err
		}
	}
	return client, nil
}
