package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"checkpoint-gate/internal/authdoc"
	"checkpoint-gate/internal/config"
	"checkpoint-gate/internal/db"
	apphttp "checkpoint-gate/internal/http"
	"checkpoint-gate/internal/logger"
	"checkpoint-gate/internal/repository"
	"checkpoint-gate/internal/service"
)

const defaultConfigPath = "./config.yaml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "authorize":
		err = authorizeCommand(os.Args[2:])
	case "inspect-doc":
		err = inspectDocCommand(os.Args[2:])
	case "token":
		err = tokenCommand(os.Args[2:])
	case "cleanup":
		err = cleanupCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		printUsage()
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "checkpoint %s: %v\n", cmd, err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`usage: checkpoint <command> [flags]

commands:
  run          start the camera pipeline, gate worker and HTTP server
  validate     check a configuration file
  authorize    record an authorization check for a plate
  inspect-doc  report whether a PDF carries the approval phrase
  token        issue an operator bearer token
  cleanup      delete old actuation events and recognitions`)
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger.New(cfg.Log))
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if _, err := config.Load(*cfgPath); err != nil {
		return err
	}
	fmt.Printf("config %s looks good\n", *cfgPath)
	return nil
}

func authorizeCommand(args []string) error {
	fs := flag.NewFlagSet("authorize", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	plateNumber := fs.String("plate", "", "Plate of the vehicle to authorize")
	doc := fs.String("doc", "", "Authorization PDF to inspect for the approval phrase")
	approve := fs.Bool("approve", false, "Approve without a document (ignored when -doc is set)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *plateNumber == "" {
		return fmt.Errorf("-plate is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log)

	approved := *approve
	if *doc != "" {
		approved, err = authdoc.Inspect(*doc, cfg.Checkpoint.ApprovalPhrase)
		if err != nil {
			log.Warn().Err(err).Str("document", *doc).Msg("authorization document rejected")
		}
	}

	conn, err := db.Open(cfg.Database, log, repository.Models()...)
	if err != nil {
		return err
	}
	defer db.Close(conn)

	svc := service.NewGateService(repository.NewGateRepository(conn), nil, cfg.Checkpoint.Name, log)
	status, err := svc.RecordAuthorization(context.Background(), *plateNumber, approved, *doc)
	if err != nil {
		return err
	}
	fmt.Printf("vehicle %s approved=%t at %s\n", status.VehicleID, status.Approved, status.CheckedAt.Format(time.RFC3339))
	return nil
}

func inspectDocCommand(args []string) error {
	fs := flag.NewFlagSet("inspect-doc", flag.ExitOnError)
	doc := fs.String("doc", "", "PDF document to inspect")
	phrase := fs.String("phrase", authdoc.DefaultPhrase, "Approval phrase to look for")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *doc == "" {
		return fmt.Errorf("-doc is required")
	}

	ok, err := authdoc.Inspect(*doc, *phrase)
	if err != nil {
		fmt.Printf("%s: not approved (%v)\n", *doc, err)
		return nil
	}
	if ok {
		fmt.Printf("%s: approved\n", *doc)
	} else {
		fmt.Printf("%s: not approved\n", *doc)
	}
	return nil
}

func tokenCommand(args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	subject := fs.String("subject", "", "Operator name embedded in the token")
	ttl := fs.Duration("ttl", 12*time.Hour, "Token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *subject == "" {
		return fmt.Errorf("-subject is required")
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	token, err := apphttp.IssueToken(cfg.Auth, *subject, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}

func cleanupCommand(args []string) error {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	cfgPath := fs.String("config", defaultConfigPath, "Path to configuration file")
	days := fs.Int("days", 30, "Delete records older than this many days")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Log)

	conn, err := db.Open(cfg.Database, log, repository.Models()...)
	if err != nil {
		return err
	}
	defer db.Close(conn)

	svc := service.NewGateService(repository.NewGateRepository(conn), nil, cfg.Checkpoint.Name, log)
	deleted, err := svc.CleanupOldRecords(context.Background(), *days)
	if err != nil {
		return err
	}
	fmt.Printf("deleted %d records older than %d days\n", deleted, *days)
	return nil
}
