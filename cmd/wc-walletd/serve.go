package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	wcserver "github.com/wcproto/wc-server-go"
	redisbridge "github.com/wcproto/wc-server-go/bridge/redis"
	"github.com/wcproto/wc-server-go/wc"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve [wc-uri...]",
		Short: "Run the wallet daemon",
		Long: `Connects to the bridge and serves wallet sessions. Any wc: URIs given
as arguments are joined at startup; more can be pasted on stdin while
the daemon runs. Type y or n to answer approval prompts, "sessions" to
list open sessions, and "quit" to exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadDaemonConfig(configPath)
			if err != nil {
				return err
			}
			if verbose {
				cfg.LogLevel = slog.LevelDebug
			}
			return serve(cmd.Context(), cfg, args)
		},
	}
}

func serve(parent context.Context, cfg daemonConfig, uris []string) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logHandler := newConsoleHandler(os.Stderr, cfg.LogLevel)
	log := slog.New(logHandler)

	transport, err := redisbridge.New(redisbridge.Config{
		RedisAddr: cfg.RedisAddr,
		KeyPrefix: cfg.KeyPrefix,
		CacheTTL:  cfg.CacheTTL,
	})
	if err != nil {
		return err
	}
	defer transport.Close()

	delegate := &promptDelegate{
		log:      log,
		accounts: cfg.Accounts,
		chainID:  cfg.ChainID,
		meta:     cfg.Meta,
		auto:     cfg.AutoApprove,
	}

	srv, err := wcserver.New(wcserver.Config{
		Transport:  transport,
		Delegate:   delegate,
		LogHandler: logHandler,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Run(ctx)
	})

	for _, uri := range uris {
		url, err := wc.ParseURL(uri)
		if err != nil {
			return fmt.Errorf("argument %q: %w", uri, err)
		}
		if err := srv.Connect(ctx, url); err != nil {
			return fmt.Errorf("connect %q: %w", uri, err)
		}
		log.Info("joined connection", slog.String("topic", url.Topic))
	}

	g.Go(func() error {
		return readCommands(ctx, cancel, srv, delegate)
	})

	log.Info("wc-walletd running",
		slog.String("redis", cfg.RedisAddr),
		slog.Bool("auto_approve", cfg.AutoApprove))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// readCommands drives the daemon from stdin: wc: URIs join sessions,
// y/n answer the oldest approval prompt.
func readCommands(ctx context.Context, cancel context.CancelFunc, srv *wcserver.Server, delegate *promptDelegate) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- strings.TrimSpace(scanner.Text()):
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// stdin closed; keep serving until a signal arrives.
				<-ctx.Done()
				return ctx.Err()
			}
			handleCommand(ctx, cancel, srv, delegate, line)
		}
	}
}

func handleCommand(ctx context.Context, cancel context.CancelFunc, srv *wcserver.Server, delegate *promptDelegate, line string) {
	switch {
	case line == "":

	case strings.HasPrefix(line, "wc:"):
		url, err := wc.ParseURL(line)
		if err != nil {
			color.Red("invalid connection url: %v", err)
			return
		}
		if err := srv.Connect(ctx, url); err != nil {
			color.Red("connect failed: %v", err)
			return
		}
		fmt.Printf("%s %s\n", color.GreenString("listening on topic"), url.Topic)

	case isYes(line):
		if !delegate.answer(true) {
			color.Yellow("no pending session request")
		}

	case isNo(line):
		if !delegate.answer(false) {
			color.Yellow("no pending session request")
		}

	case line == "sessions":
		open := srv.OpenSessions()
		if len(open) == 0 {
			fmt.Println("no open sessions")
			return
		}
		for _, sess := range open {
			fmt.Printf("  %s  %s (%s)\n", sess.URL.Topic,
				color.CyanString(sess.DAppInfo.PeerMeta.Name),
				sess.DAppInfo.PeerMeta.URL)
		}

	case line == "quit", line == "exit":
		cancel()

	default:
		color.Yellow("unrecognized input %q (expected a wc: uri, y, n, sessions, or quit)", line)
	}
}

func isYes(line string) bool {
	switch strings.ToLower(line) {
	case "y", "yes":
		return true
	}
	return false
}

func isNo(line string) bool {
	switch strings.ToLower(line) {
	case "n", "no":
		return true
	}
	return false
}
