// settlementctl запускает операции расчётов без HTTP: для cron на хосте и ручного разбора.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/ignatzorin/marketplace-backend/internal/app"
	"github.com/ignatzorin/marketplace-backend/internal/config"
	"github.com/ignatzorin/marketplace-backend/internal/db"
	"github.com/ignatzorin/marketplace-backend/internal/logger"
	"github.com/ignatzorin/marketplace-backend/internal/service"
)

var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "settlementctl",
		Short:         "Операции расчётов маркетплейса: автовыплаты, аукционы, счета",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(settleAuctionsCmd())
	rootCmd.AddCommand(processPayoutsCmd())
	rootCmd.AddCommand(markOverdueCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// env - то, что нужно каждой команде.
type env struct {
	cfg      *config.Config
	conn     *sqlx.DB
	services *app.Services
}

// withServices поднимает конфигурацию, базу и сервисы, вызывает fn и закрывает соединение.
func withServices(ctx context.Context, fn func(ctx context.Context, rt *env) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel)

	conn, err := db.NewPostgres(ctx, cfg.DatabaseURL, db.PoolConfig{MaxOpenConns: 5, MaxIdleConns: 1})
	if err != nil {
		return err
	}
	defer conn.Close()

	services := app.NewServices(cfg, conn, app.NewProvider(cfg), func(store *service.NotificationService) service.Notifier {
		return service.NewStoreNotifier(store)
	})
	return fn(ctx, &env{cfg: cfg, conn: conn, services: services})
}

// printJSON печатает итог команды в stdout, чтобы cron мог его сохранить.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// failOnItemErrors превращает частичные ошибки пакетной операции в ненулевой код выхода.
func failOnItemErrors(errs []service.ItemError) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%d элементов обработано с ошибкой", len(errs))
}
