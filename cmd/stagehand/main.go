// cmd/stagehand/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"stagehand/internal/config"
	"stagehand/internal/registry"
	"stagehand/internal/release"
	"stagehand/internal/remote"
	"stagehand/internal/scheduler"
	"stagehand/internal/storage/database"
	"stagehand/internal/types"
	"stagehand/internal/types/options"
	"stagehand/pkg/utils"
)

var version = "dev"

func main() {
	cfg := config.NewConfig()
	cfg.LoadFromEnv()

	rootCmd := newRootCmd(cfg)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "stagehand",
		Version: version,
		Short:   "Release and deployment manager for docker registry images",
		Long: `stagehand drives a private docker registry and the docker-compose
projects that consume it: it lists and retags images, promotes releases
along the dev -> rc -> latest chain with rollback tags, and redeploys
remote stages over ssh.

Environment variables:
  STAGEHAND_LOG_LEVEL  log level (trace, debug, info, warn, error)
  STAGEHAND_CONFIG     settings file path (default ~/.stagehand/config.yml)
  STAGEHAND_DB_PATH    history database path (default ~/.stagehand/history.db)
  STAGEHAND_RETENTION  history entries kept (0 = unlimited)`,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}

	// Flags globaux (l'environnement fournit les défauts).
	rootCmd.PersistentFlags().StringVarP(&cfg.LogLevel, "log-level", "l", cfg.LogLevel,
		"log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&cfg.SettingsPath, "config", "E", cfg.SettingsPath,
		"settings file path")
	rootCmd.PersistentFlags().StringVarP(&cfg.DbPath, "db", "D", cfg.DbPath,
		"history database path")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Yes, "yes", "y", false,
		"assume yes on confirmation prompts")
	rootCmd.PersistentFlags().IntVar(&cfg.Retention, "retention", cfg.Retention,
		"history entries kept in the database (0 = unlimited)")

	rootCmd.AddCommand(newRegistryCmd(cfg))
	rootCmd.AddCommand(newReleaseCmd(cfg))
	rootCmd.AddCommand(newRemoteCmd(cfg))
	rootCmd.AddCommand(newConfigCmd(cfg))
	rootCmd.AddCommand(newHistoryCmd(cfg))
	rootCmd.AddCommand(newScheduleCmd(cfg))

	return rootCmd
}

// newRegistryClient construit le client du registry configuré.
func newRegistryClient(cfg *config.Config) (*registry.Client, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	if err := settings.ValidateRegistry(); err != nil {
		return nil, err
	}
	return registry.NewClient(settings.Registry, cfg.Logger), nil
}

// openDatabase ouvre la base d'historique. L'historique est un confort:
// un échec n'empêche pas l'opération, il est seulement signalé.
func openDatabase(cfg *config.Config) *database.Database {
	db, err := database.NewDatabase(cfg.DbPath, cfg.Retention, cfg.Logger)
	if err != nil {
		cfg.Logger.Warnf("history database unavailable: %v", err)
		return nil
	}
	return db
}

// newOrchestrator assemble la session distante et son orchestrateur.
func newOrchestrator(cfg *config.Config) (*remote.Orchestrator, error) {
	settings, err := cfg.Settings()
	if err != nil {
		return nil, err
	}
	session := remote.NewSession(settings, nil, cfg.Logger)
	return remote.NewOrchestrator(settings, session, openDatabase(cfg), cfg.Logger), nil
}

// confirm demande une confirmation interactive, court-circuitée par
// --yes.
func confirm(cfg *config.Config, message string) bool {
	if cfg.Yes {
		return true
	}
	ok := false
	if err := survey.AskOne(&survey.Confirm{Message: message, Default: false}, &ok); err != nil {
		return false
	}
	return ok
}

// stageList traduit les flags -d/-q en liste de stages, dans l'ordre de
// déploiement.
func stageList(development, quality bool) []string {
	var stages []string
	if development {
		stages = append(stages, types.Development)
	}
	if quality {
		stages = append(stages, types.Quality)
	}
	return stages
}

///////////////////////////////////////////////////////////////////////////
// registry                                                              //
///////////////////////////////////////////////////////////////////////////

func newRegistryCmd(cfg *config.Config) *cobra.Command {
	registryCmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect and manage registry images",
	}

	var filterTags string
	var detail, manifest bool

	lsCmd := &cobra.Command{
		Use:   "ls [repository...]",
		Short: "List images and tags of the configured namespace",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRegistryClient(cfg)
			if err != nil {
				return err
			}
			settings, _ := cfg.Settings()
			walker := registry.NewWalker(client)

			fmt.Printf("[REGISTRY]: %s/%s:\n", settings.Registry.Host, settings.Registry.Namespace)
			return walker.Walk(cmd.Context(), registry.WalkOptions{
				Repos:      args,
				Tags:       []string{filterTags},
				ExpandTags: true,
			}, func(ref registry.Reference) error {
				fmt.Println(ref.RepoTag())
				if !detail && !manifest {
					return nil
				}
				m, err := client.GetManifest(cmd.Context(), ref.Repository, ref.Tag, false)
				if err != nil {
					return err
				}
				if detail {
					fmt.Printf("  created: %s\n  digest:  %s\n", m.Created(), m.Digest())
				}
				if manifest {
					fmt.Println(utils.PrettyJSON(m.History()))
				}
				return nil
			})
		},
	}
	lsCmd.Flags().StringVarP(&filterTags, "filter-tags", "t", registry.Wildcard,
		"comma separated tags to list ('*' for all)")
	lsCmd.Flags().BoolVarP(&detail, "detail", "d", false,
		"show creation date and content digest")
	lsCmd.Flags().BoolVarP(&manifest, "manifest", "m", false,
		"show the manifest history blob")

	tagCmd := &cobra.Command{
		Use:   "tag SOURCE TARGET_TAG",
		Short: "Point a new tag at an existing image",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRegistryClient(cfg)
			if err != nil {
				return err
			}
			source, err := registry.ParseReference(args[0])
			if err != nil {
				return err
			}
			if source.Tag == "" {
				return fmt.Errorf("source '%s' must carry a tag", args[0])
			}
			walker := registry.NewWalker(client)
			repo := walker.NormalizeRepo(source.Repository)

			if !confirm(cfg, fmt.Sprintf("Tag %s:%s as %s:%s?", repo, source.Tag, repo, args[1])) {
				return nil
			}
			if err := client.PutTag(cmd.Context(), repo, source.Tag, args[1]); err != nil {
				return err
			}
			cfg.Logger.Infof("✓ tagged %s:%s as %s:%s", repo, source.Tag, repo, args[1])
			return nil
		},
	}

	rmCmd := &cobra.Command{
		Use:   "rm IMAGE_TAG...",
		Short: "Delete tags from the registry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newRegistryClient(cfg)
			if err != nil {
				return err
			}
			walker := registry.NewWalker(client)

			if !confirm(cfg, fmt.Sprintf("Delete %d tag(s) from the registry?", len(args))) {
				return nil
			}

			failed := 0
			for _, arg := range args {
				result := types.RemoveTagResult{}
				ref, err := registry.ParseReference(arg)
				if err == nil && ref.Tag == "" {
					err = fmt.Errorf("'%s' must carry a tag", arg)
				}
				if err == nil {
					result.Repository = walker.NormalizeRepo(ref.Repository)
					result.Tag = ref.Tag
					err = client.DeleteTag(cmd.Context(), result.Repository, result.Tag)
				}
				if err != nil {
					failed++
					result.Error = err.Error()
					cfg.Logger.Errorf("✗ %s: %v", arg, err)
					continue
				}
				result.Success = true
				cfg.Logger.Infof("✓ deleted %s:%s", result.Repository, result.Tag)
			}
			if failed > 0 {
				return fmt.Errorf("%d tag(s) could not be deleted", failed)
			}
			return nil
		},
	}

	registryCmd.AddCommand(lsCmd, tagCmd, rmCmd)
	return registryCmd
}

///////////////////////////////////////////////////////////////////////////
// release                                                               //
///////////////////////////////////////////////////////////////////////////

func newReleaseCmd(cfg *config.Config) *cobra.Command {
	releaseCmd := &cobra.Command{
		Use:   "release",
		Short: "Promote images along the dev -> rc -> latest chain",
	}

	var dryRun bool

	promote := func(cmd *cobra.Command, args []string, sourceTag, targetTag string,
		run func(*release.Promoter, *options.PromoteOptions) ([]*types.PromoteResult, error)) error {

		client, err := newRegistryClient(cfg)
		if err != nil {
			return err
		}
		db := openDatabase(cfg)
		if db != nil {
			defer db.Close()
		}
		promoter := release.NewPromoter(client, db, cfg.Logger)

		if !dryRun && !confirm(cfg, fmt.Sprintf(
			"Promote images from %s to %s?", sourceTag, targetTag)) {
			return nil
		}

		results, err := run(promoter, options.NewPromoteOptions(
			options.WithPromoteRepos(args),
			options.WithPromoteDryRun(dryRun),
		))

		promoted, failed := 0, 0
		for _, result := range results {
			if result.Success {
				promoted++
			} else {
				failed++
			}
		}
		cfg.Logger.Infof("release summary: ✓ %d promoted, ✗ %d failed", promoted, failed)
		return err
	}

	qualityCmd := &cobra.Command{
		Use:   "quality [repository...]",
		Short: "Promote dev images to rc",
		RunE: func(cmd *cobra.Command, args []string) error {
			return promote(cmd, args, release.TagDev, release.TagRC,
				func(p *release.Promoter, opts *options.PromoteOptions) ([]*types.PromoteResult, error) {
					return p.PromoteToQuality(cmd.Context(), opts)
				})
		},
	}

	productionCmd := &cobra.Command{
		Use:   "production [repository...]",
		Short: "Promote rc images to latest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return promote(cmd, args, release.TagRC, release.TagLatest,
				func(p *release.Promoter, opts *options.PromoteOptions) ([]*types.PromoteResult, error) {
					return p.PromoteToProduction(cmd.Context(), opts)
				})
		},
	}

	releaseCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false,
		"show what would be promoted without touching the registry")
	releaseCmd.AddCommand(qualityCmd, productionCmd)
	return releaseCmd
}

///////////////////////////////////////////////////////////////////////////
// remote                                                                //
///////////////////////////////////////////////////////////////////////////

func newRemoteCmd(cfg *config.Config) *cobra.Command {
	remoteCmd := &cobra.Command{
		Use:   "remote",
		Short: "Operate docker-compose projects on remote stages",
	}

	var development, quality, update bool

	// withOrchestrator factorise la construction et la libération de
	// l'orchestrateur.
	withOrchestrator := func(fn func(o *remote.Orchestrator, stages []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			orch, err := newOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer orch.Close()
			return fn(orch, stageList(development, quality))
		}
	}

	deployCmd := &cobra.Command{
		Use:   "deploy [service...]",
		Short: "Run the full redeployment sequence on the selected stages",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm(cfg, "Redeploy the selected stages? Containers and local images will be recreated.") {
				return nil
			}
			orch, err := newOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer orch.Close()

			results, err := orch.Deploy(cmd.Context(), stageList(development, quality),
				options.NewDeployOptions(
					options.WithDeployServices(args),
					options.WithDeployUpdate(update),
				))
			for _, result := range results {
				if result.Success {
					cfg.Logger.Infof("✓ %s: %d services redeployed", result.Stage, len(result.Services))
				} else {
					cfg.Logger.Errorf("✗ %s: %s", result.Stage, result.Error)
				}
			}
			return err
		},
	}
	deployCmd.Flags().BoolVarP(&update, "update", "u", false,
		"update the remote project repository before restarting")

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Start the compose project (up -d --remove-orphans)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.Up(cmd.Context(), stages)
			})(cmd, args)
		},
	}

	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Stop and remove containers, volumes and orphans",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm(cfg, "Bring the selected stages down? Volumes will be removed.") {
				return nil
			}
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.Down(cmd.Context(), stages)
			})(cmd, args)
		},
	}

	startCmd := &cobra.Command{
		Use:   "start [service...]",
		Short: "Start services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.Start(cmd.Context(), stages, args)
			})(cmd, args)
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop [service...]",
		Short: "Stop services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.Stop(cmd.Context(), stages, args)
			})(cmd, args)
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart [service...]",
		Short: "Restart services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.Restart(cmd.Context(), stages, args)
			})(cmd, args)
		},
	}

	lsCmd := &cobra.Command{
		Use:   "ls [service...]",
		Short: "List compose services",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.ListServices(cmd.Context(), stages, args)
			})(cmd, args)
		},
	}

	psCmd := &cobra.Command{
		Use:   "ps",
		Short: "Show container status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.Ps(cmd.Context(), stages)
			})(cmd, args)
		},
	}

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show the resolved compose configuration with image digests",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.ComposeConfig(cmd.Context(), stages)
			})(cmd, args)
		},
	}

	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Destroy the whole remote project (containers, volumes, images)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Logger.Warn("prune destroys containers, volumes AND images of the remote project")
			if !confirm(cfg, "Destroy the whole project on the selected stages?") {
				return nil
			}
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.Prune(cmd.Context(), stages)
			})(cmd, args)
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Update the remote project repository (git reset + pull)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !confirm(cfg, "Reset and update the remote project repository? Local changes will be lost.") {
				return nil
			}
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.UpdateRepo(cmd.Context(), stages)
			})(cmd, args)
		},
	}

	cmdCmd := &cobra.Command{
		Use:   "cmd COMMAND...",
		Short: "Run a docker, docker-compose or git command on the selected stages",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withOrchestrator(func(o *remote.Orchestrator, stages []string) error {
				return o.Exec(cmd.Context(), stages, strings.Join(args, " "))
			})(cmd, args)
		},
	}

	remoteCmd.PersistentFlags().BoolVarP(&development, "development", "d", false,
		"target the development stage")
	remoteCmd.PersistentFlags().BoolVarP(&quality, "quality", "q", false,
		"target the quality stage")

	remoteCmd.AddCommand(deployCmd, upCmd, downCmd, startCmd, stopCmd, restartCmd,
		lsCmd, psCmd, configCmd, pruneCmd, updateCmd, cmdCmd)
	return remoteCmd
}

///////////////////////////////////////////////////////////////////////////
// config                                                                //
///////////////////////////////////////////////////////////////////////////

func newConfigCmd(cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the settings file",
	}

	lsCmd := &cobra.Command{
		Use:   "ls [section...]",
		Short: "Show settings, credentials masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := cfg.Settings()
			if err != nil {
				return err
			}
			for _, section := range settings.Sections() {
				if len(args) > 0 && !utils.Contains(args, section.Name) {
					continue
				}
				fmt.Printf("[%s]\n", section.Name)
				for _, variable := range section.Variables {
					fmt.Printf("  %s = %s\n", variable.Name, variable.Value)
				}
			}
			return nil
		},
	}

	updateCmd := &cobra.Command{
		Use:   "update SECTION.VARIABLE [VALUE]",
		Short: "Set a settings variable and save the file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			section, variable, found := strings.Cut(args[0], ".")
			if !found {
				return fmt.Errorf("expected SECTION.VARIABLE, got '%s'", args[0])
			}

			var value string
			if len(args) == 2 {
				value = args[1]
			} else if section == "registry" && variable == "credentials" {
				// Les credentials se saisissent masqués plutôt qu'en
				// clair dans l'historique du shell.
				if err := survey.AskOne(&survey.Password{
					Message: "registry credentials (user:password):"}, &value); err != nil {
					return err
				}
			} else {
				return fmt.Errorf("a value is required for %s", args[0])
			}

			settings, err := cfg.Settings()
			if err != nil {
				return err
			}
			if err := settings.Set(section, variable, value); err != nil {
				return err
			}
			if err := settings.Save(cfg.SettingsPath); err != nil {
				return err
			}
			cfg.Logger.Infof("✓ %s.%s updated", section, variable)
			return nil
		},
	}

	configCmd.AddCommand(lsCmd, updateCmd)
	return configCmd
}

///////////////////////////////////////////////////////////////////////////
// history                                                               //
///////////////////////////////////////////////////////////////////////////

func newHistoryCmd(cfg *config.Config) *cobra.Command {
	var operation string

	historyCmd := &cobra.Command{
		Use:   "history [subject...]",
		Short: "Show the local history of releases and deployments",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := database.NewDatabase(cfg.DbPath, cfg.Retention, cfg.Logger)
			if err != nil {
				return err
			}
			defer db.Close()

			entries, err := db.GetHistory(&options.HistoryOptions{
				Subjects:  args,
				Operation: operation,
				Limit:     cfg.Limit,
				Last:      cfg.Last,
				SortBy:    cfg.SortBy,
				Search:    cfg.Search,
				Since:     cfg.Since,
				Before:    cfg.Before,
			})
			if err != nil {
				return err
			}

			if cfg.JSON {
				fmt.Println(utils.PrettyJSON(entries))
				return nil
			}

			if len(entries) == 0 {
				fmt.Println("- no history entry")
				return nil
			}
			for _, entry := range entries {
				tags := ""
				if entry.SourceTag != "" || entry.TargetTag != "" {
					tags = fmt.Sprintf("  %s -> %s", entry.SourceTag, entry.TargetTag)
				}
				mark := "✓"
				if entry.Status != "ok" {
					mark = "✗"
				}
				fmt.Printf("%s %s  %-8s %s%s  %s\n",
					mark, entry.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					entry.Operation, entry.Subject, tags, entry.Message)
			}
			return nil
		},
	}

	historyCmd.Flags().IntVarP(&cfg.Limit, "limit", "n", 20, "maximum entries shown (0 = all)")
	historyCmd.Flags().BoolVarP(&cfg.Last, "last", "L", false, "only the last entry per subject")
	historyCmd.Flags().StringVarP(&cfg.SortBy, "sort-by", "s", cfg.SortBy, "sort order: date or subject")
	historyCmd.Flags().BoolVarP(&cfg.JSON, "json", "j", false, "output as json")
	historyCmd.Flags().StringVarP(&cfg.Search, "search", "q", "", "filter on status or message")
	historyCmd.Flags().StringVarP(&cfg.Since, "since", "S", "", "entries after this date")
	historyCmd.Flags().StringVarP(&cfg.Before, "before", "b", "", "entries before this date")
	historyCmd.Flags().StringVarP(&operation, "operation", "o", "", "filter on operation (release, deploy, ...)")

	return historyCmd
}

///////////////////////////////////////////////////////////////////////////
// schedule                                                              //
///////////////////////////////////////////////////////////////////////////

func newScheduleCmd(cfg *config.Config) *cobra.Command {
	scheduleCmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run recurring operations",
	}

	var development, quality, update bool

	deployCmd := &cobra.Command{
		Use:   "deploy CRON_EXPR [service...]",
		Short: "Redeploy the selected stages on a cron schedule",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := newOrchestrator(cfg)
			if err != nil {
				return err
			}
			defer orch.Close()

			sched := scheduler.NewScheduler(orch, scheduler.Options{
				Stages: stageList(development, quality),
				DeployOpts: options.NewDeployOptions(
					options.WithDeployServices(args[1:]),
					options.WithDeployUpdate(update),
				),
				Logger: cfg.Logger,
			})
			if err := sched.Start(args[0]); err != nil {
				return err
			}
			cfg.Logger.Infof("next deployment: %s", sched.NextRun().Format("2006-01-02 15:04:05"))
			sched.Wait()
			return nil
		},
	}
	deployCmd.Flags().BoolVarP(&development, "development", "d", false, "target the development stage")
	deployCmd.Flags().BoolVarP(&quality, "quality", "q", false, "target the quality stage")
	deployCmd.Flags().BoolVarP(&update, "update", "u", false, "update the remote repository before restarting")

	scheduleCmd.AddCommand(deployCmd)
	return scheduleCmd
}
