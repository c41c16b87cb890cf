package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/lmazure/gitlab-injector/internal/config"
	"github.com/lmazure/gitlab-injector/internal/document"
	"github.com/lmazure/gitlab-injector/internal/engine"
	"github.com/lmazure/gitlab-injector/internal/gitlab"
	"github.com/lmazure/gitlab-injector/internal/registry"
	"github.com/lmazure/gitlab-injector/internal/ui"
)

var (
	applyDocPath    string
	applyURL        string
	applyToken      string
	applyParent     string
	applyOnExisting string
	applyDryRun     bool
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Materialize a structure document into GitLab",
	Long: `Reads a declarative YAML document and creates (or reuses) the declared
groups, projects, issues, epics, labels, milestones, iterations and
memberships on the target GitLab instance, then links everything together
in a second pass.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("url") {
			settings.URL = applyURL
		}
		if cmd.Flags().Changed("token") {
			settings.Token = applyToken
		}
		if cmd.Flags().Changed("parent") {
			settings.Parent = applyParent
		}
		if cmd.Flags().Changed("on-existing") {
			settings.OnExisting = applyOnExisting
		}

		policy, err := existingPolicy(settings.OnExisting)
		if err != nil {
			return err
		}

		doc, err := document.Load(applyDocPath)
		if err != nil {
			return reportDocumentError(err)
		}

		if !applyDryRun && settings.Token == "" {
			return errors.New("no token: set GITLAB_TOKEN or pass --token")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		client := gitlab.NewClient(settings.Token, settings.URL)
		eng := engine.New(client, registry.New())
		eng.Policy = policy
		eng.ParentPath = settings.Parent
		eng.DryRun = applyDryRun
		eng.OnMessage = func(msg string) {
			fmt.Println(msg)
		}
		eng.OnWarning = func(msg string) {
			fmt.Println(ui.RenderWarn(ui.IconWarn + " " + msg))
		}

		if verboseFlag {
			fmt.Println(ui.RenderMuted(fmt.Sprintf("instance: %s  parent: %q  policy: %s",
				settings.URL, settings.Parent, policy)))
		}

		stats, runErr := eng.Run(ctx, doc)
		fmt.Println(ui.RenderAccent("Summary: " + stats.Summary()))
		if runErr != nil {
			fmt.Fprintln(os.Stderr, ui.RenderFail(ui.IconFail+" "+runErr.Error()))
			return runErr
		}
		fmt.Println(ui.RenderPass(ui.IconPass + " Done"))
		return nil
	},
}

func existingPolicy(s string) (engine.ExistingPolicy, error) {
	switch s {
	case "", string(engine.PolicyReuse):
		return engine.PolicyReuse, nil
	case string(engine.PolicyFail):
		return engine.PolicyFail, nil
	}
	return "", fmt.Errorf("invalid --on-existing %q (valid values: reuse, fail)", s)
}

// reportDocumentError prints each validation problem on its own line before
// handing the error back for a non-zero exit.
func reportDocumentError(err error) error {
	var verr *document.ValidationError
	if errors.As(err, &verr) {
		fmt.Fprintln(os.Stderr, ui.RenderFail("Document is invalid:"))
		for _, p := range verr.Problems {
			fmt.Fprintln(os.Stderr, ui.RenderFail("  "+ui.IconFail+" "+p))
		}
	}
	return err
}

func init() {
	applyCmd.Flags().StringVar(&applyDocPath, "config", "", "Path to the structure document (required)")
	applyCmd.Flags().StringVar(&applyURL, "url", config.DefaultURL, "GitLab instance URL")
	applyCmd.Flags().StringVar(&applyToken, "token", "", "API token (default: $GITLAB_TOKEN)")
	applyCmd.Flags().StringVar(&applyParent, "parent", "", "Existing group path to root top-level groups under")
	applyCmd.Flags().StringVar(&applyOnExisting, "on-existing", "", "What to do when an entity already exists: reuse|fail (default: reuse)")
	applyCmd.Flags().BoolVar(&applyDryRun, "dry-run", false, "Report what would be created without calling GitLab")
	_ = applyCmd.MarkFlagRequired("config")
	rootCmd.AddCommand(applyCmd)
}
