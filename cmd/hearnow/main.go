package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/codev612/hearnow/internal/api"
	"github.com/codev612/hearnow/internal/asr"
	"github.com/codev612/hearnow/internal/assistant"
	"github.com/codev612/hearnow/internal/audio"
	"github.com/codev612/hearnow/internal/config"
	"github.com/codev612/hearnow/internal/session"
	"github.com/codev612/hearnow/internal/storage/sqlite"
	"github.com/codev612/hearnow/internal/transcript"
	"github.com/codev612/hearnow/internal/websocket"
	"github.com/codev612/hearnow/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Create logger
	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting HearNow server",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
	)

	// Daily database file
	today := time.Now().Format("2006-01-02")
	dbFilename := fmt.Sprintf("hearnow-%s.db", today)
	dbPath := filepath.Join(cfg.Storage.SQLiteBasePath, dbFilename)

	if err := os.MkdirAll(cfg.Storage.SQLiteBasePath, 0755); err != nil {
		log.Error("Failed to create database directory", logger.Error(err), logger.String("path", cfg.Storage.SQLiteBasePath))
		os.Exit(1)
	}

	log.Info("Using daily database", logger.String("path", dbPath))

	db, err := sqlite.Open(dbPath, log)
	if err != nil {
		log.Error("Failed to open SQLite database", logger.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	sessionStorage := sqlite.NewSessionStorage(db, log)
	transcriptStorage := sqlite.NewTranscriptStorage(db, log)
	assistantStorage := sqlite.NewAssistantStorage(db, log)

	// WebSocket broadcast hub
	wsServer := websocket.NewServer(log)
	go wsServer.Run()

	// Main context for background services
	ctx, cancel := context.WithCancel(context.Background())

	// Transcription provider client, shared by both per-session streams
	asrClient := asr.NewOpenAIClient(
		cfg.ASR.OpenAIAPIKey,
		cfg.ASR.Model,
		cfg.ASR.TimeoutSeconds,
		log,
		cfg.OpenAI.BaseURL,
		asr.Endpoints{
			TranscriptionSessionPath: cfg.OpenAI.TranscriptionSessionPath,
			RealtimeWebsocketPath:    cfg.OpenAI.RealtimeWebsocketPath,
		},
	)

	asrConfig := asr.Config{
		Model:                cfg.ASR.Model,
		Language:             cfg.ASR.Language,
		NoiseReduction:       cfg.ASR.NoiseReduction,
		PromptPath:           cfg.ASR.PromptPath,
		ReconnectIntervalSec: cfg.ASR.ReconnectIntervalSec,
		MaxRetries:           cfg.ASR.MaxRetries,
		TurnDetectionType:    cfg.ASR.TurnDetectionType,
		PrefixPaddingMs:      cfg.ASR.PrefixPaddingMs,
		SilenceDurationMs:    cfg.ASR.SilenceDurationMs,
		VADThreshold:         cfg.ASR.VADThreshold,
		TimeoutSeconds:       cfg.ASR.TimeoutSeconds,
	}
	if cfg.ASR.PromptPath != "" {
		if data, err := os.ReadFile(cfg.ASR.PromptPath); err == nil {
			asrConfig.Prompt = string(data)
		} else {
			log.Warn("Failed to read transcription prompt file", logger.String("path", cfg.ASR.PromptPath), logger.Error(err))
		}
	}

	// Capture shim boundary: raw PCM named pipes, one per source
	capture := &audio.PipeCapture{
		MicPath:    cfg.Audio.MicPipePath,
		SystemPath: cfg.Audio.SystemPipePath,
		FrameBytes: cfg.Audio.FrameBytes,
		Logger:     log,
	}

	// Meeting assistant (optional)
	var asst *assistant.Assistant
	if cfg.Assistant.Enabled {
		provider, err := buildChatProvider(ctx, cfg, log)
		if err != nil {
			log.Error("Failed to create assistant provider, continuing without assistant", logger.Error(err))
		} else {
			asst, err = assistant.New(ctx, transcriptStorage, assistantStorage, provider, wsServer, assistant.Config{
				Enabled:          cfg.Assistant.Enabled,
				Model:            cfg.Assistant.Model,
				IntervalSeconds:  cfg.Assistant.IntervalSeconds,
				ContextBubbles:   cfg.Assistant.ContextBubbles,
				SystemPromptPath: cfg.Assistant.SystemPromptPath,
				TimeoutSeconds:   cfg.Assistant.TimeoutSeconds,
			}, log)
			if err != nil {
				log.Error("Failed to create assistant, continuing without it", logger.Error(err))
			} else if err := asst.Start(); err != nil {
				log.Error("Failed to start assistant", logger.Error(err))
				asst = nil
			}
		}
	} else {
		log.Info("Assistant disabled in configuration")
	}

	// Session manager
	sessionConfig := session.Config{
		ASR:         asrConfig,
		Suppression: suppressionConfig(cfg),
		Pump: audio.PumpConfig{
			SampleRate:   cfg.Audio.SampleRate,
			Channels:     cfg.Audio.Channels,
			ChunkMs:      cfg.Audio.ChunkMs,
			PollInterval: time.Duration(cfg.Audio.PollIntervalMs) * time.Millisecond,
		},
	}

	var sessionAssistant session.Assistant
	if asst != nil {
		sessionAssistant = asst
	}

	sessionManager := session.NewManager(asrClient, capture, wsServer, sessionStorage,
		transcriptStorage, sessionAssistant, sessionConfig, log)

	// Retention cleanup loop
	if cfg.Storage.RetentionDays > 0 {
		go runRetentionCleanup(ctx, sessionStorage, cfg, log)
	}

	// HTTP server
	router := api.NewRouter(sessionManager, sessionStorage, transcriptStorage, assistantStorage, cfg, log, wsServer)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	go func() {
		log.Info("Starting HTTP server", logger.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("HTTP server error on startup", logger.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down server...")

	log.Info("Stopping active recording sessions...")
	sessionManager.StopAll()
	log.Info("Recording sessions stopped.")

	if asst != nil {
		log.Info("Stopping assistant...")
		if err := asst.Stop(); err != nil {
			log.Error("Error stopping assistant", logger.Error(err))
		}
		log.Info("Assistant stopped.")
	}

	// Cancel the main context
	cancel()

	log.Info("Shutting down HTTP server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server shutdown error", logger.Error(err))
	}

	log.Info("Server fully stopped")
}

// buildChatProvider creates the configured assistant LLM provider
func buildChatProvider(ctx context.Context, cfg *config.Config, log *logger.Logger) (assistant.ChatProvider, error) {
	switch cfg.Assistant.Provider {
	case "gemini":
		return assistant.NewGeminiProvider(ctx, cfg.Assistant.GeminiAPIKey, log)
	case "openai":
		apiKey := cfg.Assistant.OpenAIAPIKey
		if apiKey == "" {
			apiKey = cfg.ASR.OpenAIAPIKey
		}
		if apiKey == "" {
			return nil, fmt.Errorf("no OpenAI API key configured for the assistant")
		}
		return assistant.NewOpenAIProvider(apiKey, cfg.Assistant.TimeoutSeconds, log,
			cfg.OpenAI.BaseURL, cfg.OpenAI.ChatCompletionsPath), nil
	default:
		return nil, fmt.Errorf("unknown assistant provider: %s", cfg.Assistant.Provider)
	}
}

// suppressionConfig maps the config file section onto the suppression
// settings, keeping the built-in defaults for unset fields.
func suppressionConfig(cfg *config.Config) transcript.SuppressionConfig {
	sc := transcript.DefaultSuppressionConfig()
	if cfg.Suppression.MicSimilarityThreshold > 0 {
		sc.MicSimilarityThreshold = cfg.Suppression.MicSimilarityThreshold
	}
	if cfg.Suppression.SystemSimilarityThreshold > 0 {
		sc.SystemSimilarityThreshold = cfg.Suppression.SystemSimilarityThreshold
	}
	if cfg.Suppression.SimilarityWindowSecs > 0 {
		sc.SimilarityWindow = time.Duration(cfg.Suppression.SimilarityWindowSecs) * time.Second
	}
	if cfg.Suppression.ScanDepth > 0 {
		sc.ScanDepth = cfg.Suppression.ScanDepth
	}
	if cfg.Suppression.CaptureHoldoffMs > 0 {
		sc.CaptureHoldoff = time.Duration(cfg.Suppression.CaptureHoldoffMs) * time.Millisecond
	}
	if cfg.Suppression.EarlySessionWindowSecs > 0 {
		sc.EarlySessionWindow = time.Duration(cfg.Suppression.EarlySessionWindowSecs) * time.Second
	}
	if cfg.Suppression.SystemActivityWindowSecs > 0 {
		sc.SystemActivityWindow = time.Duration(cfg.Suppression.SystemActivityWindowSecs) * time.Second
	}
	sc.PhoneticMatching = cfg.Suppression.PhoneticMatching
	return sc
}

// runRetentionCleanup periodically deletes sessions older than the
// configured retention period, with their transcript and assistant rows.
func runRetentionCleanup(ctx context.Context, sessionStorage *sqlite.SessionStorage, cfg *config.Config, log *logger.Logger) {
	interval := time.Duration(cfg.Storage.CleanupIntervalMin) * time.Minute
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("Retention cleanup enabled",
		logger.Int("retention_days", cfg.Storage.RetentionDays),
		logger.Int("interval_minutes", cfg.Storage.CleanupIntervalMin))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().UTC().AddDate(0, 0, -cfg.Storage.RetentionDays)
			deleted, err := sessionStorage.DeleteSessionsOlderThan(cutoff)
			if err != nil {
				log.Error("Retention cleanup failed", logger.Error(err))
				continue
			}
			if deleted > 0 {
				log.Info("Retention cleanup removed old sessions", logger.Int64("deleted", deleted))
			}
		}
	}
}
