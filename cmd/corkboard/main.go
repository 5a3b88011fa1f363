// Copyright 2026 The Corkboard Authors
// SPDX-License-Identifier: Apache-2.0

// Corkboard is the operator CLI for Matrix-backed Kanban boards. It
// discovers board spaces on the configured homeserver, creates lists
// and cards, and moves cards between lists. Board data lives entirely
// on the homeserver; this binary holds no state beyond the local
// relationship cache.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/corkboard-dev/corkboard/kanban"
	"github.com/corkboard-dev/corkboard/kanban/adapter"
	"github.com/corkboard-dev/corkboard/kanban/cardcache"
	"github.com/corkboard-dev/corkboard/kanban/ordering"
	"github.com/corkboard-dev/corkboard/kanban/resolver"
	"github.com/corkboard-dev/corkboard/lib/config"
	"github.com/corkboard-dev/corkboard/lib/ref"
	"github.com/corkboard-dev/corkboard/messaging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   string
		passwordFile string
	)

	flagSet := pflag.NewFlagSet("corkboard", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to corkboard.yaml (default: $CORKBOARD_CONFIG)")
	flagSet.StringVar(&passwordFile, "password-file", "-", "login password source: a file path, or - for stdin")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}

	args := flagSet.Args()
	if len(args) == 0 {
		printHelp(flagSet)
		return fmt.Errorf("a subcommand is required")
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Login runs before any session exists.
	if args[0] == "login" {
		return runLogin(ctx, cfg, logger, passwordFile, os.Stdout)
	}

	remote, userID, err := connect(ctx, cfg, logger)
	if err != nil {
		return err
	}

	switch command := args[0]; command {
	case "boards":
		return runBoards(ctx, remote, os.Stdout)
	case "create-list":
		if len(args) != 2 {
			return fmt.Errorf("usage: corkboard create-list <name>")
		}
		return runCreateList(ctx, remote, args[1], os.Stdout)
	case "create-card":
		if len(args) != 3 {
			return fmt.Errorf("usage: corkboard create-card <list-id> <title>")
		}
		return runCreateCard(ctx, remote, args[1], args[2], os.Stdout)
	case "move-card":
		if len(args) < 3 || len(args) > 4 {
			return fmt.Errorf("usage: corkboard move-card <card-id> <list-id> [index]")
		}
		index := -1 // append by default
		if len(args) == 4 {
			parsed, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("index %q is not a number", args[3])
			}
			index = parsed
		}
		return runMoveCard(ctx, remote, userID, args[1], args[2], index, os.Stdout)
	default:
		return fmt.Errorf("unknown subcommand %q", command)
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `corkboard - Matrix-backed Kanban boards

Usage:
  corkboard [flags] <subcommand>

Subcommands:
  login                                 obtain an access token with a password
  boards                                list all boards with their cards
  create-list <name>                    create a new board list
  create-card <list-id> <title>         create a card at the end of a list
  move-card <card-id> <list-id> [index] move a card (appends when index omitted)

Flags:
%s`, flagSet.FlagUsages())
}

func loadConfig(configPath string) (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// newLogger writes JSON records to stderr, and to a rotating file when
// one is configured.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch cfg.Log.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var output io.Writer = os.Stderr
	if cfg.Log.File != "" {
		output = io.MultiWriter(os.Stderr, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
		})
	}
	return slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level}))
}

// connect builds the remote adapter from the configuration. The access
// token comes from a file or stdin, never from argv.
func connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*adapter.Adapter, ref.UserID, error) {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		Logger:        logger,
	})
	if err != nil {
		return nil, ref.UserID{}, err
	}

	userID, err := ref.ParseUserID(cfg.Matrix.UserID)
	if err != nil {
		return nil, ref.UserID{}, fmt.Errorf("matrix.user_id: %w", err)
	}
	token, err := readSecret(cfg.Matrix.AccessTokenFile)
	if err != nil {
		return nil, ref.UserID{}, fmt.Errorf("reading access token: %w", err)
	}
	if token == "" {
		return nil, ref.UserID{}, fmt.Errorf("access token is empty")
	}

	session, err := client.SessionFromToken(userID, token)
	if err != nil {
		return nil, ref.UserID{}, err
	}
	if _, err := session.WhoAmI(ctx); err != nil {
		return nil, ref.UserID{}, fmt.Errorf("access token rejected: %w", err)
	}

	res, err := resolver.New(resolver.Config{
		Session:    session,
		Cache:      cardcache.New(cfg.CachePath()),
		ServerName: cfg.Matrix.ServerName,
		Logger:     logger,
	})
	if err != nil {
		return nil, ref.UserID{}, err
	}
	remote, err := adapter.New(adapter.Config{
		Session:  session,
		Resolver: res,
		Logger:   logger,
	})
	if err != nil {
		return nil, ref.UserID{}, err
	}
	return remote, userID, nil
}

// runLogin exchanges a password for an access token and stores the
// token where the configuration expects to read it. The password comes
// from a file or stdin, never from argv.
func runLogin(ctx context.Context, cfg *config.Config, logger *slog.Logger, passwordFile string, output io.Writer) error {
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: cfg.Matrix.HomeserverURL,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	password, err := readSecret(passwordFile)
	if err != nil {
		return fmt.Errorf("reading password: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password is empty")
	}

	session, err := client.Login(ctx, cfg.Matrix.UserID, password)
	if err != nil {
		return err
	}

	tokenPath := cfg.Matrix.AccessTokenFile
	if tokenPath == "-" {
		fmt.Fprintln(output, session.AccessToken())
		return nil
	}
	if err := os.WriteFile(tokenPath, []byte(session.AccessToken()+"\n"), 0o600); err != nil {
		return fmt.Errorf("storing access token: %w", err)
	}
	fmt.Fprintf(output, "logged in as %s, token stored in %s\n", session.UserID(), tokenPath)
	return nil
}

// readSecret reads a secret from a file path, or from stdin if path is
// "-". Secrets never appear in CLI arguments, which are visible in
// /proc/*/cmdline, ps output, and shell history.
func readSecret(path string) (string, error) {
	if path == "-" {
		scanner := bufio.NewScanner(os.Stdin)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return "", fmt.Errorf("reading stdin: %w", err)
			}
			return "", fmt.Errorf("stdin is empty")
		}
		return strings.TrimSpace(scanner.Text()), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func runBoards(ctx context.Context, remote kanban.Remote, output io.Writer) error {
	lists, cards, err := remote.Boards(ctx)
	if err != nil {
		return err
	}

	state := kanban.NewBoardState()
	for _, list := range lists {
		state.UpsertList(list)
	}
	for _, card := range cards {
		state.UpsertCard(card)
	}

	if len(lists) == 0 {
		fmt.Fprintln(output, "no boards found")
		return nil
	}
	for _, list := range state.AllLists() {
		fmt.Fprintf(output, "%s  %s\n", list.Name, list.ID)
		for _, card := range state.ListCards(list.ID) {
			line := fmt.Sprintf("  - %s  %s", card.Title, card.ID)
			if done, total := kanban.TodoProgress(card); total > 0 {
				line += fmt.Sprintf("  [%d/%d]", done, total)
			}
			if card.EndTime != nil {
				line += "  due " + card.EndTime.Format("2006-01-02")
			}
			fmt.Fprintln(output, line)
		}
	}
	return nil
}

func runCreateList(ctx context.Context, remote kanban.Remote, name string, output io.Writer) error {
	list, err := remote.CreateList(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "created list %q  %s\n", list.Name, list.ID)
	return nil
}

func runCreateCard(ctx context.Context, remote kanban.Remote, listArg, title string, output io.Writer) error {
	listID, err := ref.ParseRoomID(listArg)
	if err != nil {
		return fmt.Errorf("list ID: %w", err)
	}

	// Append after the list's current tail.
	state, err := loadState(ctx, remote)
	if err != nil {
		return err
	}
	if state.List(listID) == nil {
		return fmt.Errorf("list %s is not a known board", listID)
	}
	var before *float64
	if cards := state.ListCards(listID); len(cards) > 0 {
		tail := cards[len(cards)-1].Position
		before = &tail
	}
	position, err := ordering.Between(before, nil)
	if err != nil {
		return err
	}

	card, err := remote.CreateCard(ctx, listID, title, position)
	if err != nil {
		return err
	}
	fmt.Fprintf(output, "created card %q  %s\n", card.Title, card.ID)
	return nil
}

func runMoveCard(ctx context.Context, remote kanban.Remote, userID ref.UserID, cardArg, listArg string, index int, output io.Writer) error {
	cardID, err := ref.ParseRoomID(cardArg)
	if err != nil {
		return fmt.Errorf("card ID: %w", err)
	}
	listID, err := ref.ParseRoomID(listArg)
	if err != nil {
		return fmt.Errorf("list ID: %w", err)
	}

	state, err := loadState(ctx, remote)
	if err != nil {
		return err
	}
	if state.Card(cardID) == nil {
		return fmt.Errorf("card %s not found on any board", cardID)
	}
	if state.List(listID) == nil {
		return fmt.Errorf("list %s is not a known board", listID)
	}

	dispatcher, err := kanban.NewDispatcher(state, kanban.DispatcherConfig{
		Remote: remote,
		UserID: userID,
	})
	if err != nil {
		return err
	}
	siblings := state.ListCards(listID)
	if index < 0 || index > len(siblings) {
		index = len(siblings)
	}
	dispatcher.Dispatch(ctx, kanban.MoveCard{CardID: cardID, ToListID: listID, Index: index})

	// Remote workers report only failures; confirm the move against
	// the server before declaring success.
	for {
		select {
		case event := <-dispatcher.Events():
			if failed, ok := event.(kanban.SyncFailed); ok {
				return fmt.Errorf("%s: %w", failed.Op, failed.Err)
			}
			dispatcher.Apply(event)
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
			moved, err := remote.LoadCard(ctx, cardID)
			if err != nil {
				return err
			}
			if moved.ListID == listID {
				fmt.Fprintf(output, "moved card %s to %s\n", cardID, listID)
				return nil
			}
		}
	}
}

func loadState(ctx context.Context, remote kanban.Remote) (*kanban.BoardState, error) {
	lists, cards, err := remote.Boards(ctx)
	if err != nil {
		return nil, err
	}
	state := kanban.NewBoardState()
	for _, list := range lists {
		state.UpsertList(list)
	}
	for _, card := range cards {
		state.UpsertCard(card)
	}
	return state, nil
}
