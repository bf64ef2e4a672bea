package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/tmc/langchaingo/llms/openai"
	"golang.org/x/sync/errgroup"

	"github.com/GML-FMGroup/cappuccino/internal/agent"
	"github.com/GML-FMGroup/cappuccino/internal/gateway"
	"github.com/GML-FMGroup/cappuccino/internal/governance"
	"github.com/GML-FMGroup/cappuccino/internal/observability"
	"github.com/GML-FMGroup/cappuccino/internal/oracle"
	"github.com/GML-FMGroup/cappuccino/internal/store"
	"github.com/GML-FMGroup/cappuccino/internal/surface"
	"github.com/GML-FMGroup/cappuccino/pkg/config"
)

func main() {
	observability.PrintBanner()
	observability.InitializeTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	_ = godotenv.Load()

	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatal(err)
	}

	history, err := store.NewHistoryStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	defer history.Close()

	logger := observability.NewLogger()
	prompts := oracle.NewPromptManager("./prompts")

	gov := governance.NewDefaultPolicyEngine()
	// Default safety rules: Block dangerous destructive commands
	_ = gov.DenyPayload(`rm\s+-rf`)
	_ = gov.DenyPayload(`mkfs`)
	_ = gov.DenyPayload(`shutdown`)
	_ = gov.DenyPayload(`reboot`)

	planningClient := newOracleClient(cfg, "planning", logger)
	groundingClient := newOracleClient(cfg, "grounding", logger)

	runFolder := filepath.Join(cfg.App.Workspace, "runs", time.Now().Format("20060102-150405"))

	var surf surface.Surface
	switch cfg.Surface.Kind {
	case "browser":
		surf = surface.NewBrowserSurface(runFolder, cfg.Surface.StartURL)
	default:
		surf = surface.NewX11Surface(cfg.Surface.Display, runFolder)
	}

	driver := &agent.Driver{
		Planner: &oracle.Planner{
			Client:  planningClient,
			Prompts: prompts,
			Retries: cfg.Limits.TaskRetries,
		},
		Dispatcher: &oracle.Dispatcher{
			Client:   planningClient,
			Prompts:  prompts,
			Attempts: cfg.Limits.DispatchAttempts,
		},
		Executor: &oracle.Executor{Client: groundingClient, Prompts: prompts},
		Verifier: &oracle.Verifier{Client: planningClient, Prompts: prompts},
		Surface:  surface.NewExclusive(surf),
		Policy:   &governance.CommandGate{Engine: gov},
		History:  history,
		Log:      logger,
		Limits: agent.Limits{
			MaxIterations:   cfg.Limits.MaxIterations,
			TaskRetries:     cfg.Limits.TaskRetries,
			SurfaceAttempts: cfg.Limits.SurfaceAttempts,
			Replans:         cfg.Limits.Replans,
			StageTimeout:    cfg.Limits.StageTimeout.Std(),
			TaskTimeout:     cfg.Limits.TaskTimeout.Std(),
		},
	}

	manager := agent.NewManager(driver, agent.BusyPolicy(cfg.Limits.BusyPolicy))

	var gateways []gateway.Messenger

	if tgCfg, ok := cfg.GetGateway("telegram"); ok {
		tg, err := gateway.NewTelegramGateway(tgCfg.Token, parseUserIDs(tgCfg.AllowedUsers), manager)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, tg)
	}

	if dcCfg, ok := cfg.GetGateway("discord"); ok {
		dc, err := gateway.NewDiscordGateway(dcCfg.Token, dcCfg.AllowedUsers, manager)
		if err != nil {
			log.Fatal(err)
		}
		gateways = append(gateways, dc)
	}

	if len(gateways) == 0 {
		log.Fatal("No gateway is enabled; configure telegram or discord in config.yaml")
	}

	// Status updates fan out to every connected gateway.
	manager.SetNotifier(func(chatID, text string) {
		for _, gw := range gateways {
			if err := gw.Send(chatID, text); err == nil {
				return
			}
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// Live Resource Dashboard (1-second updates)
	g.Go(func() error {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				observability.PrintLiveStatus()
			}
		}
	})

	g.Go(func() error {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				observability.Heartbeat()
				logger.LogHeartbeat()
			}
		}
	})

	for _, gw := range gateways {
		gw := gw
		g.Go(func() error {
			if err := gw.Start(); err != nil {
				log.Printf("\033[91m[ FAIL ] GATEWAY CRITICAL ERROR: %v\033[0m", err)
				return err
			}
			return nil
		})
	}

	// Wait for shutdown signal
	<-ctx.Done()

	for _, gw := range gateways {
		_ = gw.Stop()
	}

	// Reset terminal aesthetics
	observability.CleanupTerminal()

	// Give a short time for final logs/syncs
	time.Sleep(500 * time.Millisecond)
	log.Println("\033[95m[ EXIT ] PILOT DISENGAGED. GOODBYE.\033[0m")
}

func newOracleClient(cfg *config.Config, name string, logger *observability.Logger) *oracle.Client {
	pCfg, ok := cfg.GetProvider(name)
	if !ok {
		log.Fatalf("No %s provider configured", name)
	}

	opts := []openai.Option{
		openai.WithToken(pCfg.APIKey),
		openai.WithModel(pCfg.Model),
	}
	if pCfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		log.Fatal(err)
	}
	return oracle.NewClient(model, name, cfg.Limits.OracleRPS, logger)
}

func parseUserIDs(ids []string) []int64 {
	var out []int64
	for _, s := range ids {
		if id, err := strconv.ParseInt(s, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
