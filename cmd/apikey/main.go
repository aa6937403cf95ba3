package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-platform/pkg/postgres"
)

// apikey administers API keys. The key id printed at creation is the owner
// id of every document uploaded with that key.
//
// Usage:
//
//	apikey create --name "ci" [--rate-limit 100] [--expires-in 720h]
//	apikey revoke --id <key-id>
//	apikey list
func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fail("failed to load config: %v", err)
	}
	logger.Setup(cfg.Logging.Level, "text")

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		fail("failed to connect to postgres: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	validator := apikey.NewValidator(db)
	if err := validator.EnsureSchema(ctx); err != nil {
		fail("failed to migrate api key schema: %v", err)
	}

	switch args[0] {
	case "create":
		err = cmdCreate(ctx, validator, args[1:])
	case "revoke":
		err = cmdRevoke(ctx, validator, args[1:])
	case "list":
		err = cmdList(ctx, validator)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", args[0])
		printUsage()
		os.Exit(2)
	}
	if err != nil {
		fail("%s: %v", args[0], err)
	}
}

func cmdCreate(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("create", flag.ExitOnError)
	name := fs.String("name", "", "name for the api key")
	rateLimit := fs.Int("rate-limit", 100, "requests per rate limit window")
	expiresIn := fs.Duration("expires-in", 0, "expiry, e.g. 720h (never when zero)")
	fs.Parse(args)

	var expiresAt *time.Time
	if *expiresIn > 0 {
		t := time.Now().Add(*expiresIn)
		expiresAt = &t
	}
	raw, info, err := v.CreateKey(ctx, *name, *rateLimit, expiresAt)
	if err != nil {
		return err
	}

	fmt.Println("API key created. Store it now, it cannot be shown again.")
	fmt.Println()
	fmt.Printf("  Key:        %s\n", raw)
	fmt.Printf("  Owner ID:   %s\n", info.ID)
	fmt.Printf("  Name:       %s\n", info.Name)
	fmt.Printf("  Rate limit: %d\n", info.RateLimit)
	fmt.Printf("  Expires:    %s\n", formatExpiry(info.ExpiresAt))
	return nil
}

func cmdRevoke(ctx context.Context, v *apikey.Validator, args []string) error {
	fs := flag.NewFlagSet("revoke", flag.ExitOnError)
	id := fs.String("id", "", "id of the key to revoke")
	fs.Parse(args)
	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if err := v.RevokeKey(ctx, *id); err != nil {
		return err
	}
	fmt.Printf("API key %s revoked.\n", *id)
	return nil
}

func cmdList(ctx context.Context, v *apikey.Validator) error {
	keys, err := v.ListKeys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		fmt.Println("No active API keys.")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tRATE LIMIT\tCREATED\tEXPIRES")
	for _, k := range keys {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n", k.ID, k.Name, k.RateLimit, k.CreatedAt.Format(time.RFC3339), formatExpiry(k.ExpiresAt))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nTotal: %d active key(s)\n", len(keys))
	return nil
}

func formatExpiry(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Format(time.RFC3339)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `Usage: apikey [--config file] <command> [flags]

Commands:
  create   Create a new API key
  revoke   Revoke an API key by id
  list     List active API keys

Examples:
  apikey create --name "ci" --rate-limit 100 --expires-in 720h
  apikey revoke --id 6f1d2c3e-...
  apikey list`)
}
