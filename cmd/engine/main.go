package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/lmittmann/tint"

	"github.com/rawblock/geoshield-engine/internal/api"
	"github.com/rawblock/geoshield-engine/internal/config"
	"github.com/rawblock/geoshield-engine/internal/fingerprint"
	"github.com/rawblock/geoshield-engine/internal/llm"
	"github.com/rawblock/geoshield-engine/internal/risk"
	"github.com/rawblock/geoshield-engine/internal/session"
	"github.com/rawblock/geoshield-engine/internal/vector"
	"github.com/rawblock/geoshield-engine/internal/verify"
	"github.com/rawblock/geoshield-engine/internal/vpn"
)

func main() {
	// .env is optional; real deployments pass environment directly.
	_ = godotenv.Load()

	log := newLogger()
	log.Info("starting GeoShield verification engine")

	// ─── Thresholds ─────────────────────────────────────────────────────
	// Built-in defaults always apply; THRESHOLDS_PATH overlays them and
	// the PUT /thresholds endpoint can hot-replace the snapshot later.
	// ────────────────────────────────────────────────────────────────────

	thresholds := config.NewRegistry(log)
	if path := os.Getenv("THRESHOLDS_PATH"); path != "" {
		if err := thresholds.LoadFile(path); err != nil {
			log.Warn("threshold file not loaded, using defaults", "path", path, "error", err)
		} else {
			log.Info("thresholds loaded", "path", path)
		}
	}

	// ─── VPN Provider Registry ──────────────────────────────────────────

	httpClient := &http.Client{Timeout: 8 * time.Second}
	providers := vpn.ProvidersFromEnv(httpClient)

	aggregator, err := vpn.NewAggregator(vpn.AggregatorConfig{
		Logger:     log,
		Thresholds: thresholds,
		Providers:  providers,
	})
	if err != nil {
		log.Error("vpn aggregator setup failed", "error", err)
		os.Exit(1)
	}
	defer aggregator.Close()
	log.Info("vpn providers configured", "providers", aggregator.ProviderNames())

	// ─── Generative Model and Embeddings ────────────────────────────────
	// Gemini covers both generation and embeddings. Without it, Claude
	// can still serve generation, and pattern analysis is disabled.
	// ────────────────────────────────────────────────────────────────────

	ctx := context.Background()

	var (
		generator llm.Generator
		embedder  llm.Embedder
	)
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		gemini, err := llm.NewGeminiClient(ctx, key, "", "", log)
		if err != nil {
			log.Warn("gemini unavailable", "error", err)
		} else {
			generator = gemini
			embedder = gemini
		}
	}
	if generator == nil {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			generator = llm.NewClaudeClient(key, "", log)
		}
	}
	generatorName := "none"
	if generator != nil {
		generatorName = generator.Name()
	}
	log.Info("generative model selected", "generator", generatorName, "embeddings", embedder != nil)

	// ─── Vector Store ───────────────────────────────────────────────────

	var store *vector.Store
	if host := os.Getenv("QDRANT_HOST"); host != "" && embedder != nil {
		port, _ := strconv.Atoi(getEnvOrDefault("QDRANT_PORT", "6334"))
		store, err = vector.NewStore(vector.StoreConfig{
			Logger:    log,
			Host:      host,
			Port:      port,
			APIKey:    os.Getenv("QDRANT_API_KEY"),
			UseTLS:    os.Getenv("QDRANT_USE_TLS") == "true",
			Dimension: embedder.Dimension(),
		})
		if err != nil {
			log.Warn("vector store unavailable, pattern analysis disabled", "error", err)
		} else {
			ensureCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
			if err := store.EnsureCollection(ensureCtx); err != nil {
				log.Warn("vector collection setup failed, pattern analysis disabled", "error", err)
				store.Close()
				store = nil
			}
			cancel()
		}
	}
	if store != nil {
		defer store.Close()
	}

	// ─── Pipeline Assembly ──────────────────────────────────────────────

	clock := clockwork.NewRealClock()
	evaluator := risk.NewEvaluator(risk.EvaluatorConfig{
		Logger:     log,
		Thresholds: thresholds,
		Generator:  generator,
	})

	wsHub := api.NewHub(log)
	go wsHub.Run()

	orchCfg := session.OrchestratorConfig{
		Logger:      log,
		Thresholds:  thresholds,
		VPN:         aggregator,
		Location:    verify.NewLocationVerifier(thresholds, clock, log),
		Environment: verify.NewEnvironmentAnalyzer(thresholds, log),
		Fingerprint: fingerprint.NewBuilder(clock),
		Risk:        evaluator,
		Embedder:    embedder,
		OnVerdict:   api.BroadcastVerdictAlert(log, wsHub),
	}
	if store != nil {
		orchCfg.Index = store
	}

	orchestrator, err := session.NewOrchestrator(orchCfg)
	if err != nil {
		log.Error("orchestrator setup failed", "error", err)
		os.Exit(1)
	}

	health := api.Health{
		Generator: generatorName,
		Providers: aggregator.ProviderNames(),
	}
	if store != nil {
		health.VectorStore = store.Healthy
	}

	r := api.SetupRouter(log, orchestrator, aggregator, thresholds, wsHub, health)

	port := getEnvOrDefault("PORT", "5340")
	log.Info("engine listening", "port", port)
	if err := r.Run(":" + port); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// newLogger builds the tinted slog logger; LOG_LEVEL selects verbosity.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	switch getEnvOrDefault("LOG_LEVEL", "info") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	return slog.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}

// getEnvOrDefault returns the env var value or a safe default for non-secret settings.
func getEnvOrDefault(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
