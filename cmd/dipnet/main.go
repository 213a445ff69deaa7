package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"diplomacy/client/internal/config"
	"diplomacy/client/internal/connection"
	"diplomacy/client/internal/logging"
	"diplomacy/client/internal/protocol"
	"diplomacy/client/internal/session"
	"diplomacy/client/internal/store"
)

func main() {
	username := flag.String("user", "", "account username")
	password := flag.String("password", "", "account password")
	status := flag.String("status", "", "filter the game listing by status")
	archiveID := flag.String("archive", "", "print a locally saved game instead of connecting")
	timeout := flag.Duration("timeout", 45*time.Second, "overall deadline for the exchange")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{
		Level:      cfg.Logging.Level,
		Path:       cfg.Logging.Path,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.ReplaceGlobals(logger)
	defer logger.Sync()

	if *archiveID != "" {
		if err := printArchive(cfg, *archiveID); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	if *username == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "both -user and -password are required")
		os.Exit(1)
	}
	if err := listGames(cfg, logger, *username, *password, *status, *timeout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// printArchive dumps a saved game bundle as indented JSON.
func printArchive(cfg *config.Config, gameID string) error {
	if cfg.ArchiveDir == "" {
		return fmt.Errorf("DIPNET_ARCHIVE_DIR is not set")
	}
	archives, err := store.NewArchiveStore(cfg.ArchiveDir, nil)
	if err != nil {
		return err
	}
	archive, err := archives.Load(gameID)
	if err != nil {
		return err
	}
	payload, err := json.MarshalIndent(archive, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return nil
}

// listGames connects, signs in and prints the game directory.
func listGames(cfg *config.Config, logger *logging.Logger, username, password, status string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	conn := connection.New(cfg, protocol.NewRegistry(), connection.Dialer(cfg), logger)
	defer conn.Close()
	if err := conn.Connect(ctx); err != nil {
		return err
	}
	sess, err := conn.SignIn(ctx, username, password)
	if err != nil {
		return err
	}
	games, err := sess.ListGames(ctx, session.GameFilter{Status: status})
	if err != nil {
		return err
	}

	payload, err := json.MarshalIndent(games, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(payload))
	return sess.Logout(ctx)
}
