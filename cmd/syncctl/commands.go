package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"example.com/activitysync/internal/actuals"
	"example.com/activitysync/internal/auth"
	"example.com/activitysync/internal/ingest"
	"example.com/activitysync/internal/migration"
)

func (c *cli) migrateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "migrate", Short: "Apply or roll back schema migrations"}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply every pending migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migration.NewRunner(c.cfg.PostgresURL, nil, c.logger).Up()
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return migration.NewRunner(c.cfg.PostgresURL, nil, c.logger).Down()
			},
		},
	)
	return cmd
}

func (c *cli) dispatchCmd() *cobra.Command {
	var athlete, providerName, after, activity string
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Queue a sync run for an athlete",
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, err := parseAfter(after)
			if err != nil {
				return err
			}
			backend, svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			run, err := svc.Dispatcher.Dispatch(cmd.Context(), athlete, providerName, ingest.DispatchOptions{
				After:              since,
				ExternalActivityID: activity,
			})
			if err != nil {
				return err
			}
			return c.print(map[string]any{"sync_run_id": run.ID, "status": run.Status, "queued_at": run.QueuedAt})
		},
	}
	athleteFlags(cmd, &athlete, &providerName)
	cmd.Flags().StringVar(&after, "after", "", "only fetch activities started after this RFC3339 time")
	cmd.Flags().StringVar(&activity, "activity", "", "fetch a single provider activity by id")
	return cmd
}

func (c *cli) syncCmd() *cobra.Command {
	var athlete, providerName, after, activity, runID string
	var link bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run a sync in the foreground",
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, err := parseAfter(after)
			if err != nil {
				return err
			}
			backend, svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			started := time.Now()
			res, err := svc.Sync.Sync(cmd.Context(), athlete, providerName, ingest.SyncOptions{
				SyncRunID:          runID,
				After:              since,
				ExternalActivityID: activity,
			})
			if err != nil {
				return err
			}
			out := map[string]any{"provider": res.Provider, "count": res.Count, "status": res.Status}
			if link {
				linked, err := svc.Linker.AutoLinkRecentActivities(cmd.Context(), athlete, res.Provider, &started)
				if err != nil {
					return fmt.Errorf("auto-link: %w", err)
				}
				out["linked"] = linked
			}
			return c.print(out)
		},
	}
	athleteFlags(cmd, &athlete, &providerName)
	cmd.Flags().StringVar(&after, "after", "", "only fetch activities started after this RFC3339 time")
	cmd.Flags().StringVar(&activity, "activity", "", "fetch a single provider activity by id")
	cmd.Flags().StringVar(&runID, "run", "", "sync run to drive to completion")
	cmd.Flags().BoolVar(&link, "link", true, "auto-link activities stored by this sync")
	return cmd
}

func (c *cli) autolinkCmd() *cobra.Command {
	var athlete, providerName, after string
	cmd := &cobra.Command{
		Use:   "autolink",
		Short: "Link unlinked activities to planned sessions",
		RunE: func(cmd *cobra.Command, _ []string) error {
			since, err := parseAfter(after)
			if err != nil {
				return err
			}
			backend, svc, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			linked, err := svc.Linker.AutoLinkRecentActivities(cmd.Context(), athlete, providerName, since)
			if err != nil {
				return err
			}
			return c.print(map[string]int{"linked": linked})
		},
	}
	cmd.Flags().StringVar(&athlete, "athlete", "", "athlete id")
	cmd.Flags().StringVar(&providerName, "provider", "", "restrict to one provider")
	cmd.Flags().StringVar(&after, "after", "", "only consider activities started after this RFC3339 time")
	_ = cmd.MarkFlagRequired("athlete")
	return cmd
}

func (c *cli) actualsCmd() *cobra.Command {
	var athlete string
	var sessionID int64
	cmd := &cobra.Command{
		Use:   "actuals",
		Short: "Resolve the actual duration and TSS of a planned session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, _, err := c.services(cmd.Context())
			if err != nil {
				return err
			}
			defer backend.Close()

			session, err := backend.Sessions.GetSession(cmd.Context(), athlete, sessionID)
			if err != nil {
				return err
			}
			if session == nil {
				return errors.New("planned session not found")
			}
			profile, err := backend.Profiles.GetProfile(cmd.Context(), athlete)
			if err != nil {
				return err
			}

			resolver := actuals.NewResolver()
			out := map[string]any{"session_id": session.ID, "duration_minutes": nil, "tss": nil}
			if res, ok := resolver.ResolveDuration(*session); ok {
				out["duration_minutes"] = res.Value
				out["duration_source"] = res.Source
			}
			if res, ok := resolver.ResolveTSS(*session, profile); ok {
				out["tss"] = res.Value
				out["tss_source"] = res.Source
				out["tss_detail"] = res.Detail
			}
			return c.print(out)
		},
	}
	cmd.Flags().StringVar(&athlete, "athlete", "", "athlete id")
	cmd.Flags().Int64Var(&sessionID, "session", 0, "planned session id")
	_ = cmd.MarkFlagRequired("athlete")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func (c *cli) tokenCmd() *cobra.Command {
	var athlete string
	var scopes []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for local API calls",
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := auth.Issue(auth.Config{Secret: c.cfg.JWTSecret, Issuer: c.cfg.JWTIssuer}, athlete, scopes, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(c.out, token)
			return err
		},
	}
	cmd.Flags().StringVar(&athlete, "athlete", "", "athlete id placed in the subject")
	cmd.Flags().StringSliceVar(&scopes, "scope", []string{auth.ScopeSyncRead, auth.ScopeSyncWrite}, "granted scopes")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("athlete")
	return cmd
}

func athleteFlags(cmd *cobra.Command, athlete, providerName *string) {
	cmd.Flags().StringVar(athlete, "athlete", "", "athlete id")
	cmd.Flags().StringVar(providerName, "provider", "strava", "provider name")
	_ = cmd.MarkFlagRequired("athlete")
}
