package main

import (
	"fmt"

	"github.com/spf13/cobra"

	cms "advising-workers/internal/workers/matching/calculate-match-score"
	mu "advising-workers/internal/workers/matching/match-universities"
	sst "advising-workers/internal/workers/shortlist/sync-stage-tasks"
	ts "advising-workers/internal/workers/shortlist/toggle-shortlist"
	"advising-workers/pkg/registry"
)

func newQueryCmd(flags *globalFlags) *cobra.Command {
	var input mu.Input

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Match universities for an optional user, country and search text",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := s.services.MatchHandler(s.cfg, s.log).Execute(cmd.Context(), &input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&input.UserID, "user", "u", "", "user id whose profile scores the results")
	cmd.Flags().StringVar(&input.Country, "country", "", "exact country filter")
	cmd.Flags().StringVarP(&input.Search, "search", "s", "", "free-text search")
	cmd.Flags().BoolVar(&input.Semantic, "semantic", false, "use semantic retrieval")
	return cmd
}

func newScoreCmd(flags *globalFlags) *cobra.Command {
	var input cms.Input

	cmd := &cobra.Command{
		Use:   "score",
		Short: "Score one university for one user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := s.services.ScoreHandler(s.cfg, s.log).Execute(cmd.Context(), &input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&input.UserID, "user", "u", "", "user id")
	cmd.Flags().StringVar(&input.UniversityID, "university", "", "catalog university id")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("university")
	return cmd
}

func newShortlistCmd(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shortlist",
		Short: "Change a user's shortlist",
	}
	for _, action := range []string{ts.ActionToggle, ts.ActionAdd, ts.ActionRemove} {
		cmd.AddCommand(newShortlistActionCmd(flags, action))
	}
	return cmd
}

func newShortlistActionCmd(flags *globalFlags, action string) *cobra.Command {
	input := ts.Input{Action: action}

	cmd := &cobra.Command{
		Use:   action,
		Short: fmt.Sprintf("Run the %s shortlist action for a catalog university", action),
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := s.services.ToggleHandler(s.cfg, s.log).Execute(cmd.Context(), &input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&input.UserID, "user", "u", "", "user id")
	cmd.Flags().StringVar(&input.UniversityID, "university", "", "catalog university id")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("university")
	return cmd
}

func newSyncTasksCmd(flags *globalFlags) *cobra.Command {
	var input sst.Input

	cmd := &cobra.Command{
		Use:   "sync-tasks",
		Short: "Create the missing default tasks of a stage for a user",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := s.services.SyncHandler(s.cfg, s.log).Execute(cmd.Context(), &input)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().StringVarP(&input.UserID, "user", "u", "", "user id")
	cmd.Flags().IntVar(&input.Stage, "stage", 0, "advising stage, 1 to 5")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("stage")
	return cmd
}

func newReindexCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the semantic search index from the catalog",
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := openSession(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer s.Close()

			if s.services.Indexer == nil {
				return fmt.Errorf("semantic search is disabled in config")
			}
			if err := s.services.Indexer.EnsureIndex(cmd.Context()); err != nil {
				return err
			}
			n, err := s.services.Indexer.Reindex(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d universities\n", n)
			return nil
		},
	}
}

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect the activity registry",
	}

	var path string
	validate := &cobra.Command{
		Use:   "validate",
		Short: "Validate the activity registry and its schemas",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var (
				reg *registry.ActivityRegistry
				err error
			)
			if path != "" {
				reg, err = registry.LoadRegistry(path)
			} else {
				reg, err = registry.Default()
			}
			if err != nil {
				return fmt.Errorf("failed to load registry: %w", err)
			}
			if err := reg.Validate(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Registry validation passed: %d activities.\n", len(reg.Activities))
			return nil
		},
	}
	validate.Flags().StringVar(&path, "path", "", "registry file (default is the embedded registry)")
	cmd.AddCommand(validate)
	return cmd
}
