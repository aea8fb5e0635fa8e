package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"accountd.dev/internal/migrate"
	"accountd.dev/internal/obs"
)

func main() {
	var (
		dsn     = flag.String("dsn", os.Getenv("ACCOUNTD_DATABASE_DSN"), "PostgreSQL DSN")
		verbose = flag.Bool("v", false, "log each migration file")
	)
	flag.Parse()
	log := obs.Logger()

	if *dsn == "" {
		log.Error("missing DSN: provide via -dsn or ACCOUNTD_DATABASE_DSN")
		os.Exit(2)
	}
	if len(flag.Args()) == 0 {
		fmt.Fprintln(os.Stderr, "usage: migrate [up|down|status|version]")
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Error("open db", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	mgr, err := migrate.NewManager(db, migrate.WithVerbose(*verbose))
	if err != nil {
		log.Error("init migrations", slog.Any("error", err))
		os.Exit(1)
	}

	cmd := flag.Arg(0)
	switch cmd {
	case "up":
		var applied []string
		applied, err = mgr.Up(ctx)
		for _, name := range applied {
			fmt.Println("applied", name)
		}
	case "down":
		var name string
		name, err = mgr.Down(ctx)
		if err == nil && name != "" {
			fmt.Println("rolled back", name)
		}
	case "status":
		var entries []migrate.Entry
		entries, err = mgr.Status(ctx)
		for _, e := range entries {
			state := "pending"
			if e.Applied {
				state = "applied"
			}
			fmt.Printf("%05d %-40s %s\n", e.Version, e.Name, state)
		}
	case "version":
		var v int64
		v, err = mgr.Version(ctx)
		if err == nil {
			fmt.Println(v)
		}
	default:
		log.Error("unknown command", slog.String("command", cmd))
		os.Exit(2)
	}
	if err != nil {
		log.Error("migrate failed", slog.String("command", cmd), slog.Any("error", err))
		os.Exit(1)
	}
}
