package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"safeguardd/internal/acquire"
	"safeguardd/internal/app"
	"safeguardd/internal/assistant"
	"safeguardd/internal/common/fsutil"
	"safeguardd/internal/config"
	"safeguardd/internal/httpapi"
	"safeguardd/internal/infer"
	"safeguardd/internal/mesh"
	"safeguardd/internal/safety"
	"safeguardd/internal/session"
	"safeguardd/pkg/types"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// envOr returns the environment value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// splitCSV splits a comma-separated flag value, trimming blanks.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		p := strings.TrimSpace(part)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func buildRootCmd() *cobra.Command {
	var (
		cfgPath   string
		addr      string
		modelsDir string
		logLevel  string
	)

	root := &cobra.Command{
		Use:           "safeguardd",
		Short:         "Local AI core for the SafeGuardian safety assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", envOr("SAFEGUARDD_CONFIG", ""), "Path to config file (.yaml|.json|.toml)")
	root.PersistentFlags().StringVar(&addr, "addr", envOr("SAFEGUARDD_ADDR", ":8080"), "HTTP listen address")
	root.PersistentFlags().StringVar(&modelsDir, "models-dir", envOr("SAFEGUARDD_MODELS_DIR", "~/models/safeguard"), "Directory holding the model artifact")
	root.PersistentFlags().StringVar(&logLevel, "log-level", envOr("SAFEGUARDD_LOG_LEVEL", "info"), "Log level: debug|info|warn|error")

	loadConfig := func() (config.Config, error) {
		var cfg config.Config
		if cfgPath != "" {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return config.Config{}, err
			}
		}
		// Flags win over file values.
		if addr != "" {
			cfg.Addr = addr
		}
		if cfg.ModelsDir == "" {
			cfg.ModelsDir = modelsDir
		}
		applyDefaults(&cfg)
		return cfg, nil
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Short:   "Run the HTTP daemon",
		Example: "  safeguardd serve --addr :8080 --backend script",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if v, _ := cmd.Flags().GetString("backend"); v != "" {
				cfg.Backend = v
			}
			bootDownload, _ := cmd.Flags().GetBool("download")
			origins, _ := cmd.Flags().GetString("cors-origins")
			httpapi.SetCORSOptions(origins != "",
				splitCSV(origins),
				[]string{"GET", "POST", "DELETE", "OPTIONS"},
				[]string{"Accept", "Content-Type", "X-Log-Level"})
			return runServe(cfg, logLevel, bootDownload)
		},
	}
	serveCmd.Flags().String("backend", "", "Inference backend: llama|script (overrides config)")
	serveCmd.Flags().Bool("download", false, "Start the model download on boot if the artifact is missing")
	serveCmd.Flags().String("cors-origins", envOr("SAFEGUARDD_CORS_ORIGINS", ""), "Comma-separated CORS origins (empty disables CORS)")

	downloadCmd := &cobra.Command{
		Use:     "download",
		Short:   "Fetch and verify the model artifact, then exit",
		Example: "  safeguardd download --config safeguardd.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runDownload(cmd.Context(), cfg)
		},
	}

	classifyCmd := &cobra.Command{
		Use:     "classify <text>",
		Short:   "Run the emergency keyword classifier on text and print the verdict",
		Example: "  safeguardd classify \"I am trapped, please help\"",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cls := safety.NewClassifier(cfg.EmergencyKeywords).Classify(strings.Join(args, " "))
			return json.NewEncoder(os.Stdout).Encode(types.ClassifyResponse{
				Emergency: cls.Emergency,
				Matches:   cls.Matches,
			})
		},
	}

	root.AddCommand(serveCmd, downloadCmd, classifyCmd)
	return root
}

// applyDefaults fills unset config fields.
func applyDefaults(cfg *config.Config) {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ModelsDir == "" {
		cfg.ModelsDir = "~/models/safeguard"
	}
	if cfg.ModelName == "" {
		cfg.ModelName = "safeguard-3b-q4.gguf"
	}
	if cfg.Backend == "" {
		cfg.Backend = "llama"
	}
	if cfg.GenTimeoutSecs <= 0 {
		cfg.GenTimeoutSecs = int(infer.DefaultTimeout / time.Second)
	}
}

// buildManager resolves the models dir and constructs the acquisition
// manager for the configured asset.
func buildManager(cfg config.Config) (*acquire.Manager, error) {
	dir, err := fsutil.ExpandHome(cfg.ModelsDir)
	if err != nil {
		return nil, fmt.Errorf("models dir: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("models dir: %w", err)
	}
	asset := types.ModelAsset{
		Name:          cfg.ModelName,
		URL:           cfg.ModelURL,
		ExpectedBytes: cfg.ModelExpectedBytes,
		Path:          filepath.Join(dir, cfg.ModelName),
	}
	return acquire.NewManager(asset), nil
}

func buildBackend(cfg config.Config) infer.Backend {
	if cfg.Backend == "script" {
		return &infer.ScriptBackend{}
	}
	return infer.NewLlamaBackend(cfg.Threads)
}

func runServe(cfg config.Config, logLevel string, bootDownload bool) error {
	logger := newLogger(logLevel)
	httpapi.SetLogger(logger)

	manager, err := buildManager(cfg)
	if err != nil {
		return err
	}

	timeout := time.Duration(cfg.GenTimeoutSecs) * time.Second
	rt := infer.NewRuntime(buildBackend(cfg), infer.WithTimeout(timeout))
	ctrl := session.New(rt, session.WithTimeout(timeout))

	loop := mesh.NewLoopback()
	pipe := safety.NewPipeline(safety.NewClassifier(cfg.EmergencyKeywords), func() (bool, int) {
		return loop.Connected(), loop.PeerCount()
	})
	asst := assistant.New(assistant.Config{
		Pipeline:   pipe,
		Controller: ctrl,
		Runtime:    rt,
		Transport:  loop,
		Params: infer.Params{
			MaxTokens:   cfg.MaxTokens,
			Temperature: float32(cfg.Temperature),
			CtxSize:     cfg.CtxSize,
		},
	})
	core := app.NewCore(manager, rt, asst)

	if bootDownload && manager.State().Phase != types.DownloadReady {
		if err := core.StartDownload(); err != nil {
			return err
		}
	}

	// Low-memory signal: SIGUSR1 unloads the model; the next generate
	// reloads lazily or falls back.
	pressure := make(chan os.Signal, 1)
	signal.Notify(pressure, syscall.SIGUSR1)
	go func() {
		for range pressure {
			core.OnMemoryPressure()
		}
	}()

	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)
	httpapi.SetGenerateTimeoutSeconds(int64(cfg.GenTimeoutSecs) + 5)

	srv := &http.Server{Addr: cfg.Addr, Handler: httpapi.NewMux(core)}
	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", cfg.Addr).Str("backend", cfg.Backend).Str("model", cfg.ModelName).Msg("safeguardd listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-stop:
	}
	cancelBase()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("graceful shutdown")
	}
	return nil
}

func runDownload(ctx context.Context, cfg config.Config) error {
	if cfg.ModelURL == "" {
		return fmt.Errorf("model_url is required for download")
	}
	manager, err := buildManager(cfg)
	if err != nil {
		return err
	}
	states, cancel := manager.Subscribe()
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- manager.Download(ctx) }()
	for {
		select {
		case st := <-states:
			fmt.Printf("%s %3.0f%% (%d/%d bytes)\n", st.Phase, st.Progress*100, st.ReceivedBytes, st.ExpectedBytes)
		case err := <-done:
			return err
		}
	}
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
