package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "glinject",
	Short: "glinject - GitLab structure injector",
	Long: `Materializes a declarative YAML document of groups, projects, issues,
epics, labels, milestones, iterations and memberships into a GitLab
instance. Re-running the same document is safe: existing entities are
found and reused instead of duplicated.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("glinject version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Enable verbose output")
	rootCmd.Flags().BoolP("version", "V", false, "Print version information")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
