package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"battleship-backend/internal/archive"
	"battleship-backend/internal/config"
	"battleship-backend/internal/httpapi"
	"battleship-backend/internal/hub"
	"battleship-backend/internal/match"
	"battleship-backend/internal/matchmaking"
	"battleship-backend/internal/relay"
	"battleship-backend/internal/store"
	"battleship-backend/internal/ws"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("bad configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.NewMemory()

	var pg *archive.Postgres
	if cfg.DatabaseURL != "" {
		pg, err = archive.OpenPostgres(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatal("could not open archive", zap.Error(err))
		}
	}
	var archiver archive.Archiver
	if pg != nil {
		archiver = pg
	}

	coord := matchmaking.New(ctx, st, clock.New(), matchmaking.Config{
		BoardSize:    cfg.BoardSize,
		Manifest:     cfg.Fleet,
		ChallengeTTL: cfg.ChallengeTTL,
	}, logger)

	h := hub.NewHub(ctx, st, archiver, logger)

	handler := httpapi.SetupRoutes(st, pg, ws.Handler(ws.Deps{
		Coord:     coord,
		Hub:       h,
		Store:     st,
		Log:       logger,
		BoardSize: cfg.BoardSize,
		Manifest:  cfg.Fleet,
	}))

	srv := &http.Server{Addr: cfg.Addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shctx)
	})

	// Boot a session as soon as a challenge is accepted, so both players
	// find it live when they join.
	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case mc := <-coord.Matches():
				reply := make(chan *match.Session, 1)
				h.Inbox() <- hub.EnsureSession{MatchID: mc.MatchID, Reply: reply}
				if <-reply == nil {
					logger.Warn("could not boot session", zap.String("match_id", mc.MatchID))
					continue
				}
				logger.Info("match session ready", zap.String("match_id", mc.MatchID))
			}
		}
	})

	g.Go(func() error {
		err := relay.PumpChallenges(gctx, st, coord, logger)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
