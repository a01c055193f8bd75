package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"pinboard.dev/internal/auth"
	"pinboard.dev/internal/mail"
	"pinboard.dev/internal/migrate"
	"pinboard.dev/internal/obs"
	"pinboard.dev/internal/store/pg"
)

func main() {
	log.SetFlags(0)
	var (
		dsn            = flag.String("dsn", os.Getenv("PINBOARD_PG_DSN"), "PostgreSQL DSN")
		migrationsPath = flag.String("migrations", os.Getenv("MIGRATIONS_DIR"), "Path to SQL migrations (embedded set when empty)")
		target         = flag.Int64("to", 0, "Target version for down (latest only when 0)")
		timeout        = flag.Duration("timeout", time.Minute, "Overall timeout")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or PINBOARD_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status|purge]")
	}

	logger, err := obs.NewLogger(os.Getenv("APP_ENV"))
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	obs.SetLogger(logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	st, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer st.Close()

	mgr, err := migrate.NewManager(st.DB(),
		migrate.WithDir(*migrationsPath),
		migrate.WithTimeout(*timeout),
		migrate.WithLogger(logger.Named("migrate")),
	)
	if err != nil {
		log.Fatalf("migrations: %v", err)
	}

	switch flag.Arg(0) {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx, *target)
	case "status":
		var history []migrate.Migration
		history, err = mgr.Status(ctx)
		if err == nil {
			for _, m := range history {
				state := "pending"
				if m.Applied {
					state = "applied"
				}
				fmt.Printf("%05d\t%s\t%s\n", m.Version, state, m.Source)
			}
		}
	case "purge":
		err = purge(ctx, st, logger)
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}

// purge removes expired verification tokens and sessions.
func purge(ctx context.Context, st *pg.Store, logger *zap.Logger) error {
	svc, err := auth.NewService(st.Auth(), mail.LogMailer{Logger: logger},
		auth.WithSecret("purge-only"),
		auth.WithBaseURL("http://localhost"),
		auth.WithLogger(logger.Named("auth")),
	)
	if err != nil {
		return err
	}
	tokens, sessions, err := svc.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d verification tokens, %d sessions\n", tokens, sessions)
	return nil
}
