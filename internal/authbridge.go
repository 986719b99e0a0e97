package internal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/crypto"
	"github.com/dgellow/authbridge/internal/exchange"
	"github.com/dgellow/authbridge/internal/identity"
	"github.com/dgellow/authbridge/internal/log"
	"github.com/dgellow/authbridge/internal/provider"
	"github.com/dgellow/authbridge/internal/region"
	"github.com/dgellow/authbridge/internal/server"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
)

// shutdownTimeout bounds graceful shutdown of in-flight requests
const shutdownTimeout = 30 * time.Second

// AuthBridge is the complete login bridge application
type AuthBridge struct {
	config     config.Config
	httpServer *server.HTTPServer
	handler    http.Handler
	sweeper    *exchange.Sweeper
	closers    []func() error
}

// stores groups the persistence backends selected by configuration
type stores struct {
	exchange exchange.Store
	region   region.Store
	closers  []func() error
}

// NewAuthBridge creates the application with all dependencies built
func NewAuthBridge(ctx context.Context, cfg config.Config) (*AuthBridge, error) {
	log.LogInfoWithFields("authbridge", "Building auth bridge", map[string]any{
		"provider": cfg.Provider.Name,
		"project":  cfg.Firebase.ProjectID,
		"storage":  string(cfg.Exchange.Storage),
	})

	providerClient, err := provider.NewClient(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("failed to create provider client: %w", err)
	}

	minter, err := identity.NewMinterFromConfig(cfg.Firebase)
	if err != nil {
		return nil, fmt.Errorf("failed to create token minter: %w", err)
	}

	verifier := identity.NewVerifier(ctx, cfg.Firebase.ProjectID)

	st, err := setupStorage(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	authHandlers := server.NewAuthHandlers(providerClient, minter, st.exchange, cfg.Frontend)
	regionHandlers := server.NewRegionHandlers(verifier, st.region)
	handler := buildHTTPHandler(cfg, authHandlers, regionHandlers)

	return &AuthBridge{
		config:     cfg,
		httpServer: server.NewHTTPServer(handler, cfg.Server.Addr),
		handler:    handler,
		sweeper:    exchange.NewSweeper(st.exchange, cfg.Exchange.CleanupInterval),
		closers:    st.closers,
	}, nil
}

// Handler returns the routed HTTP handler, for embedding or tests
func (a *AuthBridge) Handler() http.Handler {
	return a.handler
}

// Run serves HTTP and sweeps expired exchange tokens until ctx is cancelled
// or the server fails, then shuts down gracefully
func (a *AuthBridge) Run(ctx context.Context) error {
	log.LogInfoWithFields("authbridge", "Starting auth bridge", map[string]any{
		"addr": a.config.Server.Addr,
	})
	defer a.close()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := a.httpServer.Start(); err != nil {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.sweeper.Run(gctx)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.LogInfoWithFields("authbridge", "Starting graceful shutdown", map[string]any{
			"reason":  context.Cause(gctx).Error(),
			"timeout": shutdownTimeout.String(),
		})
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return a.httpServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if err != nil {
		log.LogErrorWithFields("authbridge", "Auth bridge stopped with error", map[string]any{
			"error": err.Error(),
		})
		return err
	}
	log.LogInfoWithFields("authbridge", "Application shutdown complete", nil)
	return nil
}

func (a *AuthBridge) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.LogWarnWithFields("authbridge", "Failed to close resource", map[string]any{
				"error": err.Error(),
			})
		}
	}
}

// setupStorage creates the exchange and region stores. Firestore storage
// shares one client between both; other backends keep regions in memory.
func setupStorage(ctx context.Context, cfg config.Config) (*stores, error) {
	ex := cfg.Exchange

	switch ex.Storage {
	case config.StorageFirestore:
		log.LogInfoWithFields("storage", "Using Firestore storage", map[string]any{
			"project":    cfg.Firebase.ProjectID,
			"database":   ex.FirestoreDatabase,
			"collection": ex.Collection,
		})
		encryptor, err := crypto.NewEncryptor([]byte(ex.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}

		var opts []option.ClientOption
		if cfg.Firebase.ServiceAccountFile != "" {
			opts = append(opts, option.WithCredentialsFile(cfg.Firebase.ServiceAccountFile))
		}
		client, err := exchange.NewFirestoreClient(ctx, cfg.Firebase.ProjectID, ex.FirestoreDatabase, opts...)
		if err != nil {
			return nil, err
		}
		closeClient := func() error { return client.Close() }

		exchangeStore, err := exchange.NewFirestoreStore(client, ex.Collection, encryptor, ex.TTL)
		if err != nil {
			return nil, errors.Join(err, closeClient())
		}
		regionStore, err := region.NewFirestoreStore(client, cfg.Region.Collection)
		if err != nil {
			return nil, errors.Join(err, closeClient())
		}
		return &stores{
			exchange: exchangeStore,
			region:   regionStore,
			closers:  []func() error{closeClient},
		}, nil

	case config.StorageSQLite:
		log.LogInfoWithFields("storage", "Using SQLite storage", map[string]any{
			"path": ex.SQLitePath,
		})
		encryptor, err := crypto.NewEncryptor([]byte(ex.EncryptionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create encryptor: %w", err)
		}
		sqliteStore, err := exchange.OpenSQLite(ex.SQLitePath, encryptor, ex.TTL)
		if err != nil {
			return nil, err
		}
		return &stores{
			exchange: sqliteStore,
			region:   region.NewMemoryStore(),
			closers:  []func() error{sqliteStore.Close},
		}, nil

	default:
		log.LogInfoWithFields("storage", "Using in-memory storage", map[string]any{
			"ttl": ex.TTL.String(),
		})
		return &stores{
			exchange: exchange.NewMemoryStore(ex.TTL),
			region:   region.NewMemoryStore(),
		}, nil
	}
}

// buildHTTPHandler creates the complete HTTP handler with routing and middleware
func buildHTTPHandler(cfg config.Config, authHandlers *server.AuthHandlers, regionHandlers *server.RegionHandlers) http.Handler {
	mux := http.NewServeMux()

	corsMiddleware := server.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	requestID := server.NewRequestIDMiddleware()

	authMiddleware := []server.MiddlewareFunc{
		corsMiddleware,
		server.NewRecoverMiddleware("auth"),
		server.NewLoggerMiddleware("auth"),
		requestID,
	}
	regionMiddleware := []server.MiddlewareFunc{
		corsMiddleware,
		server.NewRecoverMiddleware("region"),
		server.NewLoggerMiddleware("region"),
		requestID,
	}

	mux.Handle("/health", server.NewHealthHandler())

	// Preflight requests are answered by the CORS middleware
	preflight := http.NotFoundHandler()

	mux.Handle("GET /auth/login", server.ChainMiddleware(http.HandlerFunc(authHandlers.LoginHandler), authMiddleware...))
	mux.Handle("GET /auth/callback", server.ChainMiddleware(http.HandlerFunc(authHandlers.CallbackHandler), authMiddleware...))
	mux.Handle("POST /auth/firebasetoken", server.ChainMiddleware(http.HandlerFunc(authHandlers.FirebaseTokenHandler), authMiddleware...))
	mux.Handle("OPTIONS /auth/firebasetoken", server.ChainMiddleware(preflight, authMiddleware...))

	mux.Handle("POST /region/regist", server.ChainMiddleware(http.HandlerFunc(regionHandlers.RegistHandler), regionMiddleware...))
	mux.Handle("OPTIONS /region/regist", server.ChainMiddleware(preflight, regionMiddleware...))

	log.LogInfoWithFields("server", "Auth bridge routes registered", nil)
	return mux
}
