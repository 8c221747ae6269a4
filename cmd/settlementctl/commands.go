package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ignatzorin/marketplace-backend/internal/db"
)

func sweepCmd() *cobra.Command {
	var (
		timeoutHours int
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Выплатить продавцам заказы с истёкшим сроком подтверждения",
		Long: `Выплачивает заказы в статусах paid и release_pending, по которым покупатель
не подтвердил получение и не открыл спор до autoReleaseAt.

Примеры:
  settlementctl sweep
  settlementctl sweep --timeout-hours 72 --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, rt *env) error {
				now := time.Now().UTC()
				if dryRun {
					n, err := rt.services.AutoRelease.CountEligible(ctx, now, timeoutHours)
					if err != nil {
						return err
					}
					return printJSON(cmd, map[string]int{"eligible": n})
				}

				res, err := rt.services.AutoRelease.Sweep(ctx, now, timeoutHours)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				return failOnItemErrors(res.Errors)
			})
		},
	}

	cmd.Flags().IntVar(&timeoutHours, "timeout-hours", 0, "дополнительно требовать paidAt не позже now-N часов (0: только autoReleaseAt)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "только посчитать подходящие заказы")
	return cmd
}

func settleAuctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "settle-auctions",
		Short: "Закрыть истёкшие аукционы сделками с победителями",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, rt *env) error {
				res, err := rt.services.Auctions.SettleExpiredAuctions(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				return failOnItemErrors(res.Errors)
			})
		},
	}
}

func processPayoutsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process-payouts",
		Short: "Повторить выплаты продавцам, завершившим онбординг",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, rt *env) error {
				res, err := rt.services.Escrow.ProcessPendingPayouts(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				return failOnItemErrors(res.Errors)
			})
		},
	}
}

func markOverdueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mark-overdue",
		Short: "Отметить просроченные счета и заблокировать должников",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, rt *env) error {
				res, err := rt.services.Invoices.MarkOverdue(ctx, time.Now().UTC())
				if err != nil {
					return err
				}
				if err := printJSON(cmd, res); err != nil {
					return err
				}
				return failOnItemErrors(res.Errors)
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Применить SQL миграции",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withServices(cmd.Context(), func(ctx context.Context, rt *env) error {
				if dir == "" {
					dir = rt.cfg.MigrationsPath
				}
				applied, err := db.RunMigrations(ctx, rt.conn, dir)
				if err != nil {
					return err
				}
				if len(applied) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "миграции актуальны")
					return nil
				}
				for _, name := range applied {
					fmt.Fprintln(cmd.OutOrStdout(), "применена:", name)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "каталог миграций (по умолчанию MIGRATIONS_PATH)")
	return cmd
}
