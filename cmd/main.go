package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/hellofresh/health-go/v5"
	healthPgx "github.com/hellofresh/health-go/v5/checks/pgx5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/yakoovad/head2head/internal/api"
	"github.com/yakoovad/head2head/internal/auth"
	"github.com/yakoovad/head2head/internal/config"
	"github.com/yakoovad/head2head/internal/db"
	"github.com/yakoovad/head2head/internal/db/migrations"
	"github.com/yakoovad/head2head/internal/rating"
	"github.com/yakoovad/head2head/internal/repository"
	"github.com/yakoovad/head2head/internal/repository/memory"
	"github.com/yakoovad/head2head/internal/service"
	"github.com/yakoovad/head2head/pkg/logger"
	"go.uber.org/zap"
)

type storage struct {
	tx db.Transactor

	users       repository.UserRepository
	groups      repository.GroupRepository
	memberships repository.MembershipRepository
	invites     repository.InviteRepository
	matches     repository.MatchRepository

	checks []health.Config
	close  func()
}

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		panic(err)
	}

	log, err := logger.NewLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting application",
		zap.String("app", cfg.AppName),
		zap.String("version", cfg.AppVersion),
		zap.String("storage", string(cfg.Storage)),
	)

	st, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to open storage", zap.Error(err))
	}
	defer st.close()

	checker, err := api.NewHealthChecker(health.Component{Name: cfg.AppName, Version: cfg.AppVersion}, st.checks...)
	if err != nil {
		log.Fatal("failed to create health checker", zap.Error(err))
	}

	tokens := auth.NewTokenManager(cfg.TokenSecret, cfg.TokenTTL)
	engine := rating.NewEngine(rating.Config{TeamK: cfg.Rating.TeamK, FFAK: cfg.Rating.FFAK})

	user := service.NewUserService(st.tx).
		WithUserRepo(st.users).
		WithTokenIssuer(tokens)
	group := service.NewGroupService(st.tx).
		WithUserRepo(st.users).
		WithGroupRepo(st.groups).
		WithMembershipRepo(st.memberships).
		WithInviteRepo(st.invites)
	invite := service.NewInviteService(st.tx).
		WithUserRepo(st.users).
		WithGroupRepo(st.groups).
		WithMembershipRepo(st.memberships).
		WithInviteRepo(st.invites)
	match := service.NewMatchService(st.tx).
		WithGroupRepo(st.groups).
		WithMembershipRepo(st.memberships).
		WithMatchRepo(st.matches).
		WithRatingEngine(engine)

	e := echo.New()
	e.HideBanner = true

	handler := api.NewHandler(log).
		WithHealthChecker(checker).
		WithAuthenticator(tokens).
		WithUserService(user).
		WithGroupService(group).
		WithInviteService(invite).
		WithMatchService(match)

	handler.RegisterRoutes(e)

	go func() {
		log.Info("server starting", zap.String("addr", cfg.HTTPAddr))
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shut down server", zap.Error(err))
	}
}

func openStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) (*storage, error) {
	if cfg.Storage == config.StorageMemory {
		store := memory.NewStore()
		log.Warn("using in-memory storage, data is lost on restart")
		return &storage{
			tx:          store,
			users:       store.Users(),
			groups:      store.Groups(),
			memberships: store.Memberships(),
			invites:     store.Invites(),
			matches:     store.Matches(),
			close:       func() {},
		}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse database url")
	}
	poolCfg.MaxConns = cfg.DBMaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to database")
	}

	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	log.Info("database connection established")

	if err = db.Migrate(ctx, pool, migrations.FS, log); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "failed to apply migrations")
	}

	return &storage{
		tx:          db.NewPgxTransactor(pool),
		users:       repository.NewPgxUserRepository(pool),
		groups:      repository.NewPgxGroupRepository(pool),
		memberships: repository.NewPgxMembershipRepository(pool),
		invites:     repository.NewPgxInviteRepository(pool),
		matches:     repository.NewPgxMatchRepository(pool),
		checks: []health.Config{
			{
				Name:      "postgres",
				Timeout:   2 * time.Second,
				SkipOnErr: false,
				Check:     healthPgx.New(healthPgx.Config{DSN: cfg.DatabaseURL}),
			},
		},
		close: pool.Close,
	}, nil
}
