package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/Spok95/learning-platform/internal/app"
	"github.com/Spok95/learning-platform/internal/auth"
	"github.com/Spok95/learning-platform/internal/backupclient"
	"github.com/Spok95/learning-platform/internal/db"
	"github.com/Spok95/learning-platform/internal/export"
	"github.com/Spok95/learning-platform/internal/jobs"
	"github.com/Spok95/learning-platform/internal/models"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "platformctl",
		Short:         "Maintenance commands for the learning platform",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(),
		newRenewScanCmd(),
		newRemindCmd(),
		newExportEarningsCmd(),
		newBackupCmd(),
		newCreateAdminCmd(),
	)
	return root
}

// withApp builds the application for one command and tears it down afterwards.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := db.Migrate(ctx, a.DB.DB); err != nil {
					return err
				}
				v, err := db.MigrationVersion(ctx, a.DB.DB)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema version %d\n", v)
				return nil
			})
		},
	}
}

func newRenewScanCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "renew-scan",
		Short: "Report ACTIVE subscriptions inside the renewal window",
		Long:  "Lists subscriptions that can be renewed now. It does not charge or renew anything.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				rep, err := a.Subscriptions.ScanForRenewal(ctx, time.Now().In(a.Cfg.Location))
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(rep)
				}
				fmt.Fprintf(out, "active: %d, due: %d, auto-renew: %d, open-ended: %d\n",
					rep.Total, len(rep.Due), rep.AutoRenew, rep.OpenEnded)
				for _, c := range rep.Due {
					fmt.Fprintf(out, "  #%d user=%d %q ends %s (%d days) auto_renew=%t\n",
						c.SubscriptionID, c.UserID, c.PackageTitle, c.EndDate.Format("2006-01-02"), c.DaysLeft, c.AutoRenew)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func newRemindCmd() *cobra.Command {
	var within time.Duration
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send reminders for classes starting soon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				r := a.Reminders()
				r.Within = within
				var n int
				err := jobs.New(ctx, a.Log.Component("jobs")).Once("class_reminders", func(ctx context.Context) error {
					var err error
					n, err = r.Process(ctx)
					return err
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reminded %d sessions\n", n)
				a.Mailer.Wait()
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&within, "within", 24*time.Hour, "look-ahead window")
	return cmd
}

func newExportEarningsCmd() *cobra.Command {
	var (
		teacherID int64
		out       string
	)
	cmd := &cobra.Command{
		Use:   "export-earnings",
		Short: "Write a teacher's monthly earnings to an xlsx file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				u, err := a.Store.GetUserByID(ctx, teacherID)
				if err != nil {
					return err
				}
				rows, err := a.Store.ListEarnings(ctx, teacherID)
				if err != nil {
					return err
				}
				f, err := export.EarningsWorkbook(rows)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				if out == "" {
					out = export.BuildEarningsFilename(u.FullName, time.Now())
				}
				if err := f.SaveAs(out); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d months)\n", out, len(rows))
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&teacherID, "teacher", 0, "teacher user id")
	cmd.Flags().StringVar(&out, "out", "", "output path (default: generated name in the current directory)")
	_ = cmd.MarkFlagRequired("teacher")
	return cmd
}

func newBackupCmd() *cobra.Command {
	var restore bool
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Trigger a database backup through the backup controller",
		RunE: func(cmd *cobra.Command, _ []string) error {
			url := os.Getenv("BACKUPCTL_URL")
			if url == "" {
				url = "http://pgbackup:8081"
			}
			c := backupclient.New(url)
			var (
				res string
				err error
			)
			if restore {
				res, err = c.RestoreLatest(cmd.Context())
			} else {
				res, err = c.TriggerBackup(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), res)
			return nil
		},
	}
	cmd.Flags().BoolVar(&restore, "restore-latest", false, "restore the most recent backup instead")
	return cmd
}

func newCreateAdminCmd() *cobra.Command {
	var email, name, password string
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				hash, err := auth.HashPassword(password)
				if err != nil {
					return err
				}
				u := &models.User{Email: email, PasswordHash: hash, FullName: name, Role: models.Admin}
				if err := a.Store.CreateUser(ctx, u); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "admin #%d created\n", u.ID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "login email")
	cmd.Flags().StringVar(&name, "name", "Administrator", "display name")
	cmd.Flags().StringVar(&password, "password", "", "password, at least 8 characters")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}
