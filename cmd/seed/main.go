package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"bookingflow/internal/config"
	"bookingflow/internal/logging"
	"bookingflow/internal/repository"
	"bookingflow/pkg/models"
)

// Seeds a local development database with a demo approver and an approved
// invoice to trigger bookings against.
func main() {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	store := repository.NewPostgresStore(pool, logger)

	if err := store.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	approver := &models.User{
		ID:          "u-demo-approver",
		DisplayName: "Dana Weber",
		Email:       "dana.weber@example.com",
	}
	if _, err := store.GetUser(ctx, approver.ID); err != nil {
		logger.Info("Creating demo approver %s", approver.ID)
		if err := store.CreateUser(ctx, approver); err != nil {
			log.Fatalf("Failed to create user: %v", err)
		}
	}

	approvedAt := time.Now().Add(-1 * time.Hour)
	invoice := &models.Invoice{
		ID:             "INV-DEMO-1",
		ContractorName: "Acme Ltd",
		Scope:          "Platform migration support",
		Amount:         500,
		DepartmentFrom: "Engineering",
		DepartmentTo:   "Finance",
		Days:           2,
		MonthLabel:     "March 2024",
		DaysLabel:      "2 full days",
		DayRate:        250,
		BookedBy:       "Ops Desk",
		ApprovedBy:     approver.ID,
		ApprovedAt:     &approvedAt,
	}
	if _, err := store.GetInvoice(ctx, invoice.ID); err != nil {
		logger.Info("Creating demo invoice %s", invoice.ID)
		if err := store.CreateInvoice(ctx, invoice); err != nil {
			log.Fatalf("Failed to create invoice: %v", err)
		}
	}

	logger.Info("Seed complete")
}
