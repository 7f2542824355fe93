package main

import (
	"context"
	"log"
	"net/http"

	"bankcore/internal/api"
	"bankcore/internal/config"
	"bankcore/internal/idgen"
	"bankcore/internal/service"
	"bankcore/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	ctx := context.Background()
	pg, err := store.NewPostgres(ctx, cfg.DBSource)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pg.Close()

	if err := pg.Migrate(ctx); err != nil {
		log.Fatalf("Schema migration failed: %v", err)
	}

	// Counters must reflect the persisted maxima before traffic arrives; a
	// degraded seed keeps the process up but /health reports 503.
	ids := idgen.New()
	if err := ids.Seed(ctx, pg); err != nil {
		log.Printf("WARN starting with degraded id generator: %v", err)
	}

	verifier := service.NewIdentityVerifier(cfg.PINLength)
	engine := service.NewTransferEngine(pg, ids, verifier, cfg)
	onboard := service.NewOnboarding(pg, ids, verifier)
	handler := api.NewHandler(engine, onboard, ids)

	log.Printf("Server starting on :%s (env=%s)", cfg.Port, cfg.Env)
	if err := http.ListenAndServe(":"+cfg.Port, api.NewRouter(handler)); err != nil {
		log.Fatal(err)
	}
}
