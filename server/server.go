package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"EchoFM/cache"
	"EchoFM/config"
	"EchoFM/core/audio"
	"EchoFM/core/auth"
	"EchoFM/core/hls"
	"EchoFM/core/stream"
	"EchoFM/db"
	"EchoFM/logger"
	"EchoFM/repository"
	"EchoFM/storage"
)

// Start wires the application together and runs the HTTP server until
// SIGINT/SIGTERM.
func Start() {
	cfg := config.Load()

	logger.InitLogger(logger.Config{
		Level:      logger.LogLevel(getLogLevel()),
		OutputPath: "logs/echofm.log",
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     30,
		Compress:   true,
	})

	store, err := storage.NewMinioStore(cfg)
	if err != nil {
		logger.Fatal("Failed to initialize media store", logger.ErrorField(err))
	}

	if err := db.ConnectDB(cfg); err != nil {
		logger.Fatal("Failed to connect to database", logger.ErrorField(err))
	}
	defer db.DB.Close()

	if err := db.InitDB(); err != nil {
		logger.Fatal("Failed to initialize database", logger.ErrorField(err))
	}

	if err := db.ConnectGormDB(cfg); err != nil {
		logger.Fatal("Failed to connect GORM", logger.ErrorField(err))
	}
	defer db.CloseGormDB()

	if err := cache.ConnectRedis(cfg); err != nil {
		logger.Fatal("Failed to connect to Redis", logger.ErrorField(err))
	}
	defer cache.CloseRedis()

	processor := audio.NewFFmpegProcessor(cfg.FFmpegPath)
	fetcher := hls.NewHTTPFetcher(nil)
	segments, err := hls.NewSegmentCache(cfg.HLSCacheDir, processor, fetcher, cfg.HLSBitrate, cfg.HLSSegmentTime)
	if err != nil {
		logger.Fatal("Failed to initialize segment cache", logger.ErrorField(err))
	}
	segments.SetWarmer(hls.NewCacheWarmer(cache.SegmentStore{}, cache.DefaultSegmentTTL))

	stopReaper := segments.StartReaper(cfg.ReaperInterval, cfg.CacheMaxAge)
	defer stopReaper()

	userRepo := repository.NewMySQLUserRepository(db.DB)
	songRepo := repository.NewMySQLSongRepository(db.DB)
	playlistRepo := repository.NewGormPlaylistRepository(db.GormDB)
	resolver := stream.NewResolver(store)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpire)

	apiHandler := NewAPIHandler(userRepo, songRepo, playlistRepo, store, resolver, segments, processor, tokens, cfg)

	router := NewRouter(apiHandler)

	server := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // streaming and ingest routes need the headroom
		IdleTimeout:  120 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Server starting", logger.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", logger.ErrorField(err))
		}
	}()

	<-stop
	logger.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", logger.ErrorField(err))
	}
	logger.Info("Server stopped")
}

func getLogLevel() string {
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		return lvl
	}
	return "info"
}

// NewRouter builds the full route table with the CORS middleware applied.
// The middleware wraps the router itself so preflight requests are
// answered even on method-mismatched routes. Split out from Start so
// tests can mount the real routes.
func NewRouter(h *APIHandler) http.Handler {
	router := mux.NewRouter()

	// Health
	router.HandleFunc("/api/health", h.HealthHandler).Methods(http.MethodGet)

	// Auth
	router.HandleFunc("/api/auth/register", h.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/login", h.LoginHandler).Methods(http.MethodPost)
	router.HandleFunc("/api/auth/me", h.AuthMiddleware(h.MeHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/auth/profile", h.AuthMiddleware(h.UpdateProfileHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/auth/password", h.AuthMiddleware(h.UpdatePasswordHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/auth/account", h.AuthMiddleware(h.DeactivateAccountHandler)).Methods(http.MethodDelete)

	// Songs
	router.HandleFunc("/api/songs", h.AuthMiddleware(h.ListSongsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs", h.AuthMiddleware(h.UploadSongHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/songs/trending", h.TrendingSongsHandler).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/recommended", h.AuthMiddleware(h.RecommendedSongsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", h.OptionalAuthMiddleware(h.GetSongHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}", h.AuthMiddleware(h.UpdateSongHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/songs/{id}", h.AuthMiddleware(h.DeleteSongHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/songs/{id}/like", h.AuthMiddleware(h.LikeSongHandler)).Methods(http.MethodPost, http.MethodDelete)
	router.HandleFunc("/api/songs/{id}/play", h.AuthMiddleware(h.PlaySongHandler)).Methods(http.MethodPost)

	// Streaming. Public, but a bearer token is honored when present so
	// uploaders can reach their private songs.
	router.HandleFunc("/api/songs/{id}/stream.m3u8", h.OptionalAuthMiddleware(h.StreamManifestHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}/hls/{segment}", h.OptionalAuthMiddleware(h.SegmentHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}/stream", h.OptionalAuthMiddleware(h.ResolveStreamHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/songs/{id}/audio", h.OptionalAuthMiddleware(h.AudioProxyHandler)).Methods(http.MethodGet)

	// Playlists
	router.HandleFunc("/api/playlists", h.AuthMiddleware(h.ListPlaylistsHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists", h.AuthMiddleware(h.CreatePlaylistHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}", h.OptionalAuthMiddleware(h.GetPlaylistHandler)).Methods(http.MethodGet)
	router.HandleFunc("/api/playlists/{id}", h.AuthMiddleware(h.UpdatePlaylistHandler)).Methods(http.MethodPut)
	router.HandleFunc("/api/playlists/{id}", h.AuthMiddleware(h.DeletePlaylistHandler)).Methods(http.MethodDelete)
	router.HandleFunc("/api/playlists/{id}/songs", h.AuthMiddleware(h.AddPlaylistSongHandler)).Methods(http.MethodPost)
	router.HandleFunc("/api/playlists/{id}/songs/{song_id}", h.AuthMiddleware(h.RemovePlaylistSongHandler)).Methods(http.MethodDelete)

	// Users
	router.HandleFunc("/api/users/recently-played", h.AuthMiddleware(h.RecentlyPlayedHandler)).Methods(http.MethodGet)

	// Play queue
	router.HandleFunc("/api/queue", h.AuthMiddleware(h.QueueHandler)).
		Methods(http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)

	// Direct uploads
	router.HandleFunc("/api/uploads/sign", h.AuthMiddleware(h.SignUploadHandler)).Methods(http.MethodPost)

	return corsMiddleware(router)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, Range")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Length, Content-Range")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
