package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/showrun-ai/showrun/internal/chat"
	"github.com/showrun-ai/showrun/internal/config"
	"github.com/showrun-ai/showrun/internal/editor"
	"github.com/showrun-ai/showrun/internal/engine"
	"github.com/showrun-ai/showrun/internal/gmail"
	"github.com/showrun-ai/showrun/internal/llm"
	"github.com/showrun-ai/showrun/internal/mcphub"
	"github.com/showrun-ai/showrun/internal/planner"
	"github.com/showrun-ai/showrun/internal/server"
	"github.com/showrun-ai/showrun/internal/sheets"
	"github.com/showrun-ai/showrun/internal/steps"
	"github.com/showrun-ai/showrun/internal/store"
	"github.com/showrun-ai/showrun/internal/telegram"
	"github.com/showrun-ai/showrun/internal/video"
)

var version = "dev"

var (
	listenAddr    string
	settingsPath  string
	mcpSettings   string
	providersPath string
)

var rootCmd = &cobra.Command{
	Use:   "showrun",
	Short: "Turns screen recordings into runnable automation workflows",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the workflow service",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve()
	},
}

var planCmd = &cobra.Command{
	Use:   "plan <steps.json>",
	Short: "Analyze a step list and print what is still missing",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read %s: %w", args[0], err)
		}
		list, err := steps.DecodeSteps(data)
		if err != nil {
			return fmt.Errorf("decode steps: %w", err)
		}
		res := planner.New(nil).Plan(list, args[0])
		out, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("showrun", version)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", ":8090", "Address to listen on")
	serveCmd.Flags().StringVar(&settingsPath, "settings", "", "Settings file (default ~/.showrun/settings.json)")
	serveCmd.Flags().StringVar(&mcpSettings, "mcp-settings", "", "MCP servers config file")
	serveCmd.Flags().StringVar(&providersPath, "providers", "", "Model providers catalogue (default ~/.showrun/providers.yaml)")
	rootCmd.AddCommand(serveCmd, planCmd, versionCmd)
}

func main() {
	log.SetPrefix("[showrun] ")
	log.SetFlags(log.LstdFlags)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve() error {
	config.LoadEnv()

	var settings *config.Store
	var err error
	if settingsPath != "" {
		settings, err = config.NewStoreAt(settingsPath)
	} else {
		settings, err = config.NewStore()
	}
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	cfg := settings.Get()

	provCfg := llm.Config{
		Provider: cfg.Provider.Provider,
		Model:    cfg.Provider.Model,
		APIKey:   cfg.Provider.APIKey,
	}
	// The catalogue, when present, overrides the settings file so a
	// deployment can rotate keys and models without touching per-user state.
	if providersPath == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			providersPath = filepath.Join(homeDir, ".showrun", "providers.yaml")
		}
	}
	if catalog, err := config.LoadProviders(providersPath); err != nil {
		log.Printf("providers catalogue: %v", err)
	} else if name, key, model, err := catalog.Resolve(cfg.Provider.Provider); err == nil {
		provCfg.Provider = name
		provCfg.APIKey = key
		if provCfg.Model == "" {
			provCfg.Model = model
		}
		log.Printf("provider %s resolved from %s", name, providersPath)
	}
	provider, err := llm.New(provCfg)
	if err != nil {
		return fmt.Errorf("create provider: %w", err)
	}

	var st store.Store
	if cfg.Storage.BaseURL != "" {
		st = store.NewREST(cfg.Storage.BaseURL, cfg.Storage.APIKey, cfg.Storage.Table)
		log.Printf("storage: %s", cfg.Storage.BaseURL)
	} else {
		st = store.NewMemory()
		log.Printf("storage: in-memory (records do not survive restarts)")
	}

	tokens := sheets.StaticToken(cfg.Google.AccessToken)
	sheetsSvc := sheets.NewClient(tokens, "")
	gmailSvc := gmail.NewClient(tokens, "")

	var eng engine.Service
	if cfg.Engine.BaseURL != "" {
		eng = engine.New(cfg.Engine.BaseURL, cfg.Engine.APIKey)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hub := mcphub.NewHub()
	if mcpSettings != "" {
		if err := hub.Load(ctx, mcpSettings); err != nil {
			log.Printf("mcp: %v", err)
		}
		defer hub.Close()
	}

	searcher := sheets.NewSearcher(sheetsSvc)
	enricher := steps.NewEnricher(searcher)
	loop := chat.NewLoop(provider, st, sheetsSvc, chat.Options{Hub: hub})

	handler := &server.Handler{
		Planner:   planner.New(nil),
		Chat:      loop,
		Editor:    editor.New(provider, eng, st),
		Store:     st,
		Engine:    eng,
		Enricher:  enricher,
		Video:     video.NewProcessor(video.NewFFmpegProducer(), video.NewLLMOracle(provider), 0),
		GlobalCtx: ctx,
	}

	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		tgBot, err := telegram.New(cfg.Telegram.Token, cfg.Telegram.AllowedUserIDs, loop)
		if err != nil {
			log.Printf("telegram: %v", err)
		} else {
			go tgBot.Start(ctx)
		}
	}

	wsHub := server.NewWsHub()
	go wsHub.Run(ctx)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", server.ServeWs(wsHub, handler))
	server.RegisterToolRoutes(mux, sheetsSvc, gmailSvc)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	srv := &http.Server{Addr: listenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Printf("listening on %s", listenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
