package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/rl1809/digital-inventory/internal/adapter/handler"
	"github.com/rl1809/digital-inventory/internal/adapter/storage"
	"github.com/rl1809/digital-inventory/internal/config"
	"github.com/rl1809/digital-inventory/internal/core/domain"
	"github.com/rl1809/digital-inventory/internal/core/service"
	"github.com/rl1809/digital-inventory/internal/logger"
	"github.com/rl1809/digital-inventory/internal/port"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:          "inventory-server",
		Short:        "Serve the digital inventory API over HTTP and gRPC",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}
	root.PersistentFlags().StringVar(&configFile, "config", "", "config file (yaml, json or toml)")

	root.AddCommand(&cobra.Command{
		Use:   "token <seller-id>",
		Short: "Print a bearer token for a seller",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			token, err := handler.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL).IssueToken(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	})
	return root
}

// productSeeder is implemented by both database adapters.
type productSeeder interface {
	SaveProduct(ctx context.Context, p domain.Product) error
}

type stores struct {
	db      port.DatabaseRepository
	cache   port.CacheRepository
	seeder  productSeeder
	closeFn func()
}

func run(ctx context.Context, cfg *config.Config) error {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer log.Sync()

	if !cfg.Log.Development {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer st.closeFn()

	if cfg.SeedProducts != "" {
		if err := seedProducts(ctx, st.seeder, cfg.SeedProducts, log); err != nil {
			return err
		}
	}

	// Initialize object storage
	var objects port.ObjectStorage
	if cfg.MinIO.Enabled() {
		minioAdapter, err := storage.NewMinIOAdapter(cfg.MinIO, log)
		if err != nil {
			return fmt.Errorf("failed to create minio client: %w", err)
		}
		if err := minioAdapter.EnsureBucket(ctx); err != nil {
			return fmt.Errorf("failed to prepare bucket %s: %w", cfg.MinIO.Bucket, err)
		}
		objects = minioAdapter
		log.Info("uploads enabled", zap.String("endpoint", cfg.MinIO.Endpoint), zap.String("bucket", cfg.MinIO.Bucket))
	} else {
		log.Warn("MINIO_ENDPOINT not set, uploads disabled")
	}

	// Initialize service
	inventoryService := service.NewInventoryService(st.db, st.cache, objects, cfg.Workers.QueueSize, log)

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.Workers.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, inventoryService, log)
		}(i)
	}
	log.Info("started cleanup workers", zap.Int("count", cfg.Workers.Count))

	auth := handler.NewAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(handler.AuthInterceptor(auth)))
	handler.RegisterInventoryServer(grpcServer, handler.NewGRPCHandler(inventoryService, log))

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		inventoryService.Close()
		wg.Wait()
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPCAddr, err)
	}

	// Initialize HTTP server
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(handler.NewHTTPHandler(inventoryService, log), auth),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		return grpcServer.Serve(lis)
	})
	g.Go(func() error {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("HTTP shutdown incomplete", zap.Error(err))
		}
		log.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		log.Info("gRPC server stopped")
		return nil
	})

	err = g.Wait()

	// Close cleanup queue and wait for workers
	inventoryService.Close()
	wg.Wait()
	log.Info("workers stopped")

	return err
}

func openStores(ctx context.Context, cfg *config.Config, log *zap.Logger) (*stores, error) {
	if cfg.Store == config.StoreMemory {
		mem := storage.NewMemoryAdapter()
		log.Warn("using in-memory store, data is lost on exit")
		return &stores{db: mem, cache: storage.NewMemoryCache(), seeder: mem, closeFn: func() {}}, nil
	}

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect mysql: %w", err)
	}
	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping mysql: %w", err)
	}
	mysqlAdapter := storage.NewMySQLAdapter(db)
	if err := mysqlAdapter.Migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate mysql: %w", err)
	}
	log.Info("connected to mysql")

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		db.Close()
		rdb.Close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	log.Info("connected to redis", zap.String("addr", cfg.Redis.Addr))

	return &stores{
		db:     mysqlAdapter,
		cache:  storage.NewRedisAdapter(rdb),
		seeder: mysqlAdapter,
		closeFn: func() {
			rdb.Close()
			db.Close()
			log.Info("connections closed")
		},
	}, nil
}

func seedProducts(ctx context.Context, seeder productSeeder, path string, log *zap.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read product seed: %w", err)
	}
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return fmt.Errorf("decode product seed %s: %w", path, err)
	}

	now := time.Now().UTC()
	for _, p := range products {
		if p.ID == "" || p.SellerID == "" {
			return fmt.Errorf("product seed %s: id and sellerId are required", path)
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		if err := seeder.SaveProduct(ctx, p); err != nil {
			return fmt.Errorf("seed product %s: %w", p.ID, err)
		}
	}
	log.Info("seeded products", zap.Int("count", len(products)), zap.String("file", path))
	return nil
}

func workerLoop(id int, svc *service.InventoryService, log *zap.Logger) {
	for job := range svc.GetCleanupQueue() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := svc.ProcessCleanup(ctx, job); err != nil {
			log.Error("cleanup failed",
				zap.Int("worker", id),
				zap.String("group_id", job.GroupID),
				zap.String("product_id", job.ProductID),
				zap.Error(err))
		} else {
			log.Debug("cleanup done",
				zap.Int("worker", id),
				zap.String("group_id", job.GroupID),
				zap.String("product_id", job.ProductID))
		}

		cancel()
	}
}
