// Command daily-summary sends each project's client a digest of the day's
// recorded expenses. It is meant to run once a day from a scheduler, near the
// end of the working day in Argentina.
package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/gasto-obra/backend/internal/config"
	"github.com/gasto-obra/backend/internal/logging"
	"github.com/gasto-obra/backend/internal/repository"
	"github.com/gasto-obra/backend/internal/service"
	"github.com/gasto-obra/backend/internal/transport/whatsapp"
)

// Buenos Aires has no DST; a fixed offset is enough.
var artZone = time.FixedZone("ART", -3*60*60)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("gasto-obra-daily-summary", cfg.LogLevel, cfg.AppEnv)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx := context.Background()
	chat := whatsapp.NewClient(cfg.PhoneNumberID, cfg.AccessToken)
	projects := repository.NewProjectRepository(db)
	ledger := repository.NewLedgerRepository(db)

	if err := run(ctx, projects, ledger, chat, cfg.AppURL, time.Now()); err != nil {
		slog.Error("daily summary failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, projects *repository.ProjectRepository, ledger *repository.LedgerRepository, chat *whatsapp.Client, appURL string, now time.Time) error {
	day := now.In(artZone)
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, artZone)
	dayEnd := dayStart.Add(24 * time.Hour)

	active, err := projects.ListActiveAll(ctx)
	if err != nil {
		return err
	}

	sent := 0
	for _, project := range active {
		log := slog.With("project", project.Name)

		if project.ClientPhone == "" {
			log.Debug("no client phone, skipping")
			continue
		}

		entries, err := ledger.ListByProjectBetween(ctx, project.ID, dayStart, dayEnd)
		if err != nil {
			log.Error("failed to list entries", "error", err)
			continue
		}
		if len(entries) == 0 {
			log.Debug("no entries today, skipping")
			continue
		}

		accumulated, err := ledger.SumByProject(ctx, project.ID)
		if err != nil {
			log.Error("failed to sum project", "error", err)
			continue
		}

		msg := service.DailyDigestMessage(&project, entries, accumulated, day, appURL)
		if err := chat.Send(ctx, project.ClientPhone, msg); err != nil {
			log.Error("failed to send digest", "error", err)
			continue
		}

		log.Info("digest sent", "entries", len(entries))
		sent++
	}

	slog.Info("daily summary complete", "projects", len(active), "sent", sent)
	return nil
}
