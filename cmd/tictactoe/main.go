package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jaminalder/minimax-tic-tac-toe/internal/app"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/config"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/domain"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/logging"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/minimax"
	"github.com/jaminalder/minimax-tic-tac-toe/internal/web"
	"github.com/rs/zerolog/log"
)

const usage = `usage:
  tictactoe serve [-addr :8080]
  tictactoe best BOARD      e.g. tictactoe best "XX./OO./..."`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		return err
	}

	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "serve":
		return serve(cfg, args)
	case "best":
		return best(cfg, args, stdout)
	default:
		return errors.New(usage)
	}
}

func newEngine(cfg config.Config) *minimax.Engine {
	return minimax.New(minimax.WithParallel(cfg.ParallelSearch), minimax.WithStrict(true))
}

func serve(cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", cfg.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	engine := newEngine(cfg)
	svc := app.NewService(
		app.WithEngine(engine),
		app.WithOpponent(app.LevelRandom, minimax.NewRandom(cfg.RandomSeed)),
	)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           web.NewServer(svc, web.WithEngine(engine), web.WithHeartbeat(cfg.Heartbeat)),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", *addr).Bool("parallel_search", cfg.ParallelSearch).Msg("listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func best(cfg config.Config, args []string, stdout io.Writer) error {
	if len(args) != 1 {
		return errors.New(usage)
	}
	b, err := domain.ParseBoard(args[0])
	if err != nil {
		return err
	}
	res, err := newEngine(cfg).Evaluate(b)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s to move: best %v value %+d (%d positions)\n", b.PlayerToMove(), res.Action, res.Value, res.Nodes)
	for _, s := range res.Scores {
		fmt.Fprintf(stdout, "  %v %+d\n", s.Action, s.Value)
	}
	return nil
}
