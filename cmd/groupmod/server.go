package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/groupmeg/groupmod/automod/chat"
	"github.com/groupmeg/groupmod/automod/enforce"
	"github.com/groupmeg/groupmod/automod/engine"
	"github.com/groupmeg/groupmod/automod/floodstore"
	"github.com/groupmeg/groupmod/automod/ledger"
	"github.com/groupmeg/groupmod/automod/policy"
	"github.com/groupmeg/groupmod/automod/schedule"
	"github.com/groupmeg/groupmod/util/cliutil"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Long-polling source of inbound chat messages (the Telegram client, in production).
type UpdateSource interface {
	Run(ctx context.Context, offset int, handler func(ctx context.Context, updateID int, msg *chat.Message)) error
}

type Server struct {
	engine     *engine.Engine
	ledger     *ledger.Ledger
	dispatcher *schedule.Dispatcher
	runner     *schedule.Runner
	platform   chat.Platform
	roles      chat.RoleOracle
	policies   policy.PolicyStore
	// nil when flood windows are kept in redis
	memFloods *floodstore.MemFloodStore
	rdb       *redis.Client
	echo      *echo.Echo
	httpd     *http.Server
	logger    *slog.Logger
	// id of the last update handed to the consumer
	lastUpdate int64
}

type Config struct {
	Logger          *slog.Logger
	RedisURL        string
	PolicyFile      string
	Bind            string
	SlackWebhookURL string
	TickInterval    time.Duration
	FloodWindow     time.Duration
	FloodLimit      int
	PolicyCacheTTL  time.Duration
}

func migrate(db *gorm.DB) error {
	if err := ledger.NewLedger(db).Migrate(); err != nil {
		return fmt.Errorf("migrating ledger tables: %w", err)
	}
	if err := schedule.NewGormPostStore(db).Migrate(); err != nil {
		return fmt.Errorf("migrating scheduled posts table: %w", err)
	}
	return nil
}

func NewServer(db *gorm.DB, platform chat.Platform, roles chat.RoleOracle, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if config.PolicyCacheTTL <= 0 {
		config.PolicyCacheTTL = time.Minute
	}
	if config.FloodWindow <= 0 {
		config.FloodWindow = floodstore.DefaultWindow
	}
	if config.FloodLimit <= 0 {
		config.FloodLimit = floodstore.DefaultLimit
	}

	if err := migrate(db); err != nil {
		return nil, err
	}
	ldg := ledger.NewLedger(db)

	var (
		rdb       *redis.Client
		policies  policy.PolicyStore
		floods    floodstore.FloodStore
		memFloods *floodstore.MemFloodStore
	)
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %w", err)
		}
		rdb = redis.NewClient(opt)
		// check redis connection
		if _, err := rdb.Ping(context.TODO()).Result(); err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}

		rps := policy.NewRedisPolicyStoreFromClient(rdb, config.PolicyCacheTTL)
		if config.PolicyFile != "" {
			fallback, groups, err := policy.ReadFileJSON(config.PolicyFile)
			if err != nil {
				return nil, fmt.Errorf("loading policy file: %w", err)
			}
			rps.Fallback = fallback
			added, err := rps.Seed(context.TODO(), groups)
			if err != nil {
				return nil, err
			}
			logger.Info("seeded group policies", "path", config.PolicyFile, "added", added, "total", len(groups))
		}
		policies = rps
		floods = floodstore.NewRedisFloodStoreFromClient(rdb, config.FloodWindow, config.FloodLimit)
	} else {
		mps := policy.NewMemPolicyStore()
		if config.PolicyFile != "" {
			if err := mps.LoadFromFileJSON(config.PolicyFile); err != nil {
				return nil, fmt.Errorf("loading policy file: %w", err)
			}
			logger.Info("loaded group policies", "path", config.PolicyFile)
		}
		policies = policy.NewCachedStore(mps, 10_000, config.PolicyCacheTTL)
		memFloods = floodstore.NewMemFloodStore(config.FloodWindow, config.FloodLimit)
		floods = memFloods
	}

	executor := enforce.NewExecutor(platform, ldg, logger)
	if config.SlackWebhookURL != "" {
		executor.Notifier = &enforce.SlackNotifier{
			SlackWebhookURL: config.SlackWebhookURL,
			Client:          cliutil.RobustHTTPClient(logger.With("component", "slack")),
		}
	}

	eng := &engine.Engine{
		Logger:            logger,
		Policies:          policies,
		Floods:            floods,
		Ledger:            ldg,
		Executor:          executor,
		Platform:          platform,
		Roles:             roles,
		Clock:             chat.SystemClock,
		Locks:             engine.NewKeyLocks(),
		FloodMuteDuration: engine.DefaultFloodMuteDuration,
	}

	dispatcher := schedule.NewDispatcher(platform, schedule.NewGormPostStore(db), logger)
	if err := dispatcher.Load(context.TODO()); err != nil {
		return nil, fmt.Errorf("loading scheduled posts: %w", err)
	}

	srv := &Server{
		engine:     eng,
		ledger:     ldg,
		dispatcher: dispatcher,
		runner:     schedule.NewRunner(dispatcher, chat.SystemClock, config.TickInterval),
		platform:   platform,
		roles:      roles,
		policies:   policies,
		memFloods:  memFloods,
		rdb:        rdb,
		logger:     logger,
	}
	srv.setupEcho(config.Bind)
	return srv, nil
}

// collectors register on the default registry, which panics on repeats
var adminMetrics = sync.OnceValue(func() echo.MiddlewareFunc {
	return echoprometheus.NewMiddleware("groupmod_admin")
})

func (srv *Server) setupEcho(bind string) {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)
	srv.echo = e
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(srv.logger))
	e.Use(adminMetrics())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("64K"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)
	e.GET("/groups/:group/policy", srv.HandleGroupPolicy)
	e.GET("/groups/:group/warnings/:user", srv.HandleWarnings)
	e.GET("/groups/:group/actions", srv.HandleActions)
	e.GET("/groups/:group/topwarned", srv.HandleTopWarned)
	e.GET("/posts", srv.HandleListPosts)
	e.DELETE("/posts/:id", srv.HandleCancelPost)
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Runs every long-lived component until ctx is cancelled or one of them fails, then shuts the rest down.
func (srv *Server) Run(ctx context.Context, src UpdateSource) error {
	offset, err := srv.ReadLastOffset(ctx)
	if err != nil {
		return err
	}

	if err := srv.runner.Start(); err != nil {
		return fmt.Errorf("starting post dispatcher: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		srv.logger.Info("starting update consumer", "offset", offset)
		return src.Run(ctx, offset, srv.HandleMessage)
	})
	g.Go(func() error {
		return srv.RunPersistOffset(ctx)
	})
	if srv.memFloods != nil {
		g.Go(func() error {
			srv.memFloods.RunSweeper(ctx, time.Minute)
			return nil
		})
	}
	g.Go(func() error {
		srv.logger.Info("starting admin API", "bind", srv.httpd.Addr)
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin API: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown()
	})

	err = g.Wait()
	srv.logger.Info("graceful shutdown complete")
	return err
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

func (srv *Server) Shutdown() error {
	srv.logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := srv.runner.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stopping post dispatcher: %w", err))
	}
	if err := srv.httpd.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server shutdown: %w", err))
	}
	return errors.Join(errs...)
}

var offsetKey = "groupmod/update-offset"

// Update id to resume polling from: one past the last persisted update, or zero when nothing was persisted (or redis isn't configured).
func (srv *Server) ReadLastOffset(ctx context.Context) (int, error) {
	if srv.rdb == nil {
		return 0, nil
	}
	val, err := srv.rdb.Get(ctx, offsetKey).Result()
	if err == redis.Nil || val == "" {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	offset, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid persisted update offset %q: %w", val, err)
	}
	return offset, nil
}

func (srv *Server) PersistOffset(ctx context.Context) error {
	// if redis isn't configured, just skip
	if srv.rdb == nil {
		return nil
	}
	last := atomic.LoadInt64(&srv.lastUpdate)
	if last <= 0 {
		return nil
	}
	return srv.rdb.Set(ctx, offsetKey, last+1, 14*24*time.Hour).Err()
}

// this method runs in a loop, persisting the current update offset every 5 seconds
func (srv *Server) RunPersistOffset(ctx context.Context) error {

	// if redis isn't configured, just skip
	if srv.rdb == nil {
		return nil
	}
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.logger.Info("persisting final update offset", "update", atomic.LoadInt64(&srv.lastUpdate))
			if err := srv.PersistOffset(context.WithoutCancel(ctx)); err != nil {
				srv.logger.Error("failed to persist update offset", "err", err)
			}
			return nil
		case <-ticker.C:
			if err := srv.PersistOffset(ctx); err != nil {
				srv.logger.Error("failed to persist update offset", "err", err)
			}
		}
	}
}
