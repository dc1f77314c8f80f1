package main

import (
	"context"
	"flag"
	"net/http"
	"polwatch-backend/internal/app"
	"polwatch-backend/internal/components/chrono"
	"polwatch-backend/internal/components/serviceutil"
	"polwatch-backend/internal/components/telemetry"
	"polwatch-backend/internal/service"
	"time"
)

func main() {
	verbose := flag.Bool("v", false, "Enable verbose logging/instrumentation.")
	configPath := flag.String("config", "config.json5", "The config file to read.")
	flag.Parse()

	logger := telemetry.InitSlog(*verbose)
	ctx := serviceutil.SignalContext()

	cfg, err := app.LoadConfig(*configPath)
	if err != nil {
		serviceutil.Fatal("read config", err)
	}

	tracing, err := telemetry.SetupTracing(ctx, "polwatch-server", cfg.Otlp)
	if err != nil {
		serviceutil.Fatal("setup tracing", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tracing.Shutdown(shutdownCtx)
	}()

	tel := telemetry.NewSlogAPI(logger)

	a, err := app.New(cfg, tel)
	if err != nil {
		serviceutil.Fatal("init app", err)
	}
	defer a.Close()

	cron := chrono.NewStandardCron(tel, a.Clock)
	defer func() {
		<-cron.Stop()
	}()
	err = a.Schedule(ctx, cron)
	if err != nil {
		serviceutil.Fatal("schedule jobs", err)
	}

	mux := http.NewServeMux()
	service.NewService(a.Ingest, a.Stats, tel).Register(mux)

	err = serviceutil.StartHttpServer(ctx, cfg.Listen, mux)
	if err != nil {
		serviceutil.Fatal("serve http", err)
	}
}
