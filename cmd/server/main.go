package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/himanishpuri/SoundMeta/pkg/logger"
	"github.com/himanishpuri/SoundMeta/pkg/metrics"
	"github.com/himanishpuri/SoundMeta/pkg/soundmeta"
)

var (
	port           int
	dbPath         string
	tempDir        string
	fpcalcPath     string
	ffmpegPath     string
	logLevel       string
	allowedOrigins string
)

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func registerFlags() {
	defaultPort, err := strconv.Atoi(getEnvOrDefault("PORT", "3000"))
	if err != nil {
		defaultPort = 3000
	}
	flag.IntVar(&port, "port", defaultPort, "HTTP server port")
	flag.StringVar(&dbPath, "db", getEnvOrDefault("SOUNDMETA_DB_PATH", "soundmeta.sqlite3"), "Path to SQLite history database (empty disables history)")
	flag.StringVar(&tempDir, "temp", getEnvOrDefault("SOUNDMETA_TEMP_DIR", os.TempDir()), "Temporary directory for uploads")
	flag.StringVar(&fpcalcPath, "fpcalc", getEnvOrDefault("FPCALC_PATH", "fpcalc"), "Path to the fpcalc binary")
	flag.StringVar(&ffmpegPath, "ffmpeg", getEnvOrDefault("FFMPEG_PATH", "ffmpeg"), "Path to the ffmpeg binary")
	flag.StringVar(&logLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	flag.StringVar(&allowedOrigins, "origins", "*", "Comma-separated list of allowed CORS origins (use * for all)")
}

func main() {
	// .env is optional
	_ = godotenv.Load()
	registerFlags()
	flag.Parse()

	log := logger.GetLogger()
	if level, ok := logger.ParseLevel(logLevel); ok {
		log.SetLevel(level)
	} else {
		log.Warnf("Unknown log level %q, using info", logLevel)
	}

	var origins []string
	if allowedOrigins == "*" {
		origins = []string{"*"}
	} else {
		origins = strings.Split(allowedOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
	}

	service, err := soundmeta.NewService(
		soundmeta.WithAcoustIDKey(os.Getenv("ACOUSTID_API_KEY")),
		soundmeta.WithAudDToken(os.Getenv("AUDD_API_TOKEN")),
		soundmeta.WithFpcalcPath(fpcalcPath),
		soundmeta.WithFFmpegPath(ffmpegPath),
		soundmeta.WithTempDir(tempDir),
		soundmeta.WithDBPath(dbPath),
		soundmeta.WithLogger(log),
		soundmeta.WithMetrics(metrics.New(prometheus.DefaultRegisterer)),
	)
	if err != nil {
		log.Fatalf("Failed to create service: %v", err)
	}
	defer service.Close()

	config := &ServerConfig{
		Port:           port,
		TempDir:        tempDir,
		DBPath:         dbPath,
		AllowedOrigins: origins,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := NewServer(service, config)
	if err := server.Start(ctx); err != nil {
		log.Errorf("Server failed: %v", err)
		service.Close()
		os.Exit(1)
	}
}
