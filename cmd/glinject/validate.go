package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lmazure/gitlab-injector/internal/document"
	"github.com/lmazure/gitlab-injector/internal/ui"
)

var validateDocPath string

var validateCmd = &cobra.Command{
	Use:          "validate",
	Short:        "Check a structure document without touching GitLab",
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := document.Load(validateDocPath)
		if err != nil {
			return reportDocumentError(err)
		}
		fmt.Println(ui.RenderPass(fmt.Sprintf("%s %s is valid (%d users, %d top-level groups)",
			ui.IconPass, validateDocPath, len(doc.Users), len(doc.Groups))))
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateDocPath, "config", "", "Path to the structure document (required)")
	_ = validateCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(validateCmd)
}
