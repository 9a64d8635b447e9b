// Command maintenance runs one-off repair operations against the booking
// database. Every operation is idempotent.
//
//	maintenance repair-blocks
//	maintenance cleanup-holds
//	maintenance recover-transaction -order <order_id>
//	maintenance generate-slots -resources 1,2 -from 2030-01-14 [-to 2030-01-20] [-start 10:00] [-end 22:00] [-step 60]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"skibook/internal/config"
	"skibook/internal/db"
	"skibook/internal/events"
	"skibook/internal/logger"
	"skibook/internal/maintenance"
	"skibook/internal/payment"
	"skibook/internal/schedule"
	"skibook/internal/wallet"

	"github.com/jmoiron/sqlx"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel, "console")

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := build(database, cfg)
	if err != nil {
		logger.Fatalf("Failed to init: %v", err)
	}

	result, err := run(ctx, svc, os.Args[1], os.Args[2:])
	if err != nil {
		logger.Fatalf("%s failed: %v", os.Args[1], err)
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}

// build wires the services the operations need. No notifier is attached, so
// recovered bookings are not announced to clients.
func build(database *sqlx.DB, cfg *config.Config) (*maintenance.Service, error) {
	loc := cfg.Location()
	slotRepo := schedule.NewRepository(database)
	walletRepo := wallet.NewRepository(database)
	paymentRepo := payment.NewRepository(database)

	var providers []payment.Provider
	if cfg.PaymentsEnabled() {
		om, err := payment.NewOmise(cfg.OmisePublicKey, cfg.OmiseSecretKey, cfg.OmiseSourceType)
		if err != nil {
			return nil, err
		}
		providers = append(providers, om)
	}

	bookings := newBookingService(database, slotRepo, walletRepo, loc)
	reconciler := payment.NewReconciler(database, paymentRepo, slotRepo, bookings, walletRepo, quietNotifier{}, events.NopPublisher{}, providers...)

	return maintenance.New(
		database,
		slotRepo,
		paymentRepo,
		reconciler,
		schedule.NewService(database, slotRepo, loc),
	), nil
}

func run(ctx context.Context, svc *maintenance.Service, cmd string, args []string) (any, error) {
	switch cmd {
	case "repair-blocks":
		return svc.RepairBlocks(ctx)

	case "cleanup-holds":
		return svc.CleanupHolds(ctx)

	case "recover-transaction":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		orderID := fs.String("order", "", "transaction order id")
		_ = fs.Parse(args)
		if *orderID == "" {
			return nil, fmt.Errorf("-order is required")
		}
		res, err := svc.RecoverTransaction(ctx, *orderID)
		if err != nil {
			return nil, err
		}
		return map[string]string{"order_id": *orderID, "result": string(res)}, nil

	case "generate-slots":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		resources := fs.String("resources", "", "comma separated resource ids")
		from := fs.String("from", "", "first date, YYYY-MM-DD")
		to := fs.String("to", "", "last date, defaults to -from")
		start := fs.String("start", "10:00", "first slot start")
		end := fs.String("end", "22:00", "last slot end")
		step := fs.Int("step", 60, "slot length in minutes")
		_ = fs.Parse(args)

		ids, err := parseIDs(*resources)
		if err != nil {
			return nil, err
		}
		return svc.GenerateSlots(ctx, schedule.GenerateSlotsRequest{
			ResourceIDs: ids,
			From:        *from,
			To:          *to,
			DayStart:    *start,
			DayEnd:      *end,
			StepMinutes: *step,
		})
	}

	usage()
	return nil, fmt.Errorf("unknown command %q", cmd)
}

func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad resource id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("-resources is required")
	}
	return ids, nil
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: maintenance repair-blocks | cleanup-holds | recover-transaction -order ID | generate-slots -resources IDS -from DATE")
}
