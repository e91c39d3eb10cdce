package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Spok95/learning-platform/internal/app"
	"github.com/Spok95/learning-platform/internal/db"
	"github.com/Spok95/learning-platform/internal/jobs"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Не удалось загрузить .env файл, используем переменные окружения")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		log.Fatalf("Ошибка запуска: %v", err)
	}
	defer a.Close()
	lg := a.Log.Base

	if err := db.Migrate(ctx, a.DB.DB); err != nil {
		lg.Fatal("migration failed", zap.Error(err))
	}

	if n, err := a.Store.PromoteAdmins(ctx, db.EnvAdminEmails()); err != nil {
		lg.Warn("admin promotion failed", zap.Error(err))
	} else if n > 0 {
		lg.Info("admins promoted", zap.Int("count", n))
	}

	runner := jobs.New(ctx, a.Log.Component("jobs"))
	runner.Every(a.Cfg.RenewalScanInterval, "renewal_scan", jobs.RenewalScan(a.Subscriptions))
	runner.Every(a.Cfg.ReminderInterval, "class_reminders", a.Reminders().Run)

	srv := app.StartHTTP(ctx, a.Cfg.HTTPAddr, a.Router(), lg)
	if err := srv.Wait(); err != nil {
		lg.Error("http server stopped", zap.Error(err))
		stop()
		return
	}
	lg.Info("shutdown complete")
}
