package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/go-sql-driver/mysql"
	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"

	"github.com/carryo/job-intake/internal/adapter/api"
	"github.com/carryo/job-intake/internal/adapter/handler"
	"github.com/carryo/job-intake/internal/adapter/storage"
	"github.com/carryo/job-intake/internal/config"
	"github.com/carryo/job-intake/internal/core/domain"
	"github.com/carryo/job-intake/internal/core/service"
	"github.com/carryo/job-intake/internal/port"
)

const geocoderUserAgent = "carryo-job-intake/1.0"

func main() {
	cfg := config.LoadConfig()
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize MySQL
	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		log.Fatalf("failed to connect mysql: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping mysql: %v", err)
	}
	log.Println("connected to mysql")

	mysqlAdapter := storage.NewMySQLAdapter(db)
	if cfg.MySQL.Migrate {
		if err := mysqlAdapter.Migrate(ctx); err != nil {
			log.Fatalf("failed to migrate mysql: %v", err)
		}
	}

	// Sync recycling centres to MySQL
	catalog, err := storage.LoadYAMLCatalog(cfg.Catalog.File)
	if err != nil {
		log.Fatalf("failed to load recycling centers: %v", err)
	}
	seeded, err := syncRecyclingCenters(ctx, catalog, mysqlAdapter)
	if err != nil {
		log.Fatalf("failed to sync recycling centers: %v", err)
	}
	log.Printf("seeded %d recycling centers", seeded)

	// Initialize Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		PoolSize: 50,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect redis: %v", err)
	}
	log.Println("connected to redis")
	redisAdapter := storage.NewRedisAdapter(rdb)

	// Initialize outbound clients. Calls made for a customer carry the
	// customer's own token from the request context.
	jobs := api.NewJobs(api.NewClient(cfg.API.BaseURL, api.ContextTokens{},
		api.WithTimeout(cfg.API.Timeout)))
	images := api.NewStorage(api.NewClient(cfg.Supabase.URL, api.ContextTokens{},
		api.WithTimeout(cfg.API.Timeout),
		api.WithHeader("apikey", cfg.Supabase.AnonKey)), cfg.Supabase.StorageBucket)
	geocoder := api.NewGeocoder(api.NewClient(cfg.API.GeocoderURL, nil,
		api.WithTimeout(cfg.API.Timeout),
		api.WithHeader("User-Agent", geocoderUserAgent)))

	// Initialize service
	forms := service.NewJobFormService(redisAdapter, mysqlAdapter, jobs, geocoder, images, service.Options{
		SessionTTL: cfg.Session.TTL,
		LockTTL:    cfg.Session.LockTTL,
		QueueSize:  cfg.Worker.QueueSize,
	})

	// Start worker pool
	var wg sync.WaitGroup
	for i := 0; i < cfg.Worker.Count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			workerLoop(id, forms.GetSubmissionQueue(), mysqlAdapter)
		}(i)
	}
	log.Printf("started %d workers", cfg.Worker.Count)

	auth := handler.NewAuthenticator(cfg.Supabase.JWTSecret)

	// Initialize gRPC server
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(auth.UnaryInterceptor))
	handler.RegisterJobFormServer(grpcServer, handler.NewGRPCHandler(forms))

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		log.Fatalf("failed to listen: %v", err)
	}

	go func() {
		log.Printf("gRPC server listening on %s", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			log.Printf("gRPC server error: %v", err)
		}
	}()

	// Initialize HTTP server
	httpHandler := handler.NewHTTPHandler(forms)
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", httpHandler.HealthCheck)
	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)
		httpHandler.RegisterRoutes(r)
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("HTTP server listening on %s", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown: %v", err)
	}
	log.Println("HTTP server stopped")

	grpcServer.GracefulStop()
	log.Println("gRPC server stopped")

	// Close submission queue and wait for workers
	forms.Close()
	wg.Wait()
	log.Println("workers stopped")

	rdb.Close()
	db.Close()
	log.Println("connections closed")
}

// workerLoop writes created jobs to the submission ledger. A failed write
// only loses the local record; the job already exists upstream.
func workerLoop(id int, queue <-chan domain.Submission, repo port.SubmissionRepository) {
	for sub := range queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)

		if err := repo.RecordSubmission(ctx, sub); err != nil {
			log.Printf("worker %d: failed to record job %s for session %s: %v", id, sub.JobID, sub.SessionID, err)
		} else {
			log.Printf("worker %d: recorded job %s", id, sub.JobID)
		}

		cancel()
	}
}

type centerSeeder interface {
	SeedRecyclingCenters(ctx context.Context, centers []domain.RecyclingCenter) error
}

// syncRecyclingCenters copies the catalogue into the ledger database.
func syncRecyclingCenters(ctx context.Context, catalog port.RecyclingCenterCatalog, seeder centerSeeder) (int, error) {
	centers, err := catalog.ListRecyclingCenters(ctx)
	if err != nil {
		return 0, fmt.Errorf("list recycling centers: %w", err)
	}
	if err := seeder.SeedRecyclingCenters(ctx, centers); err != nil {
		return 0, fmt.Errorf("seed recycling centers: %w", err)
	}
	return len(centers), nil
}
