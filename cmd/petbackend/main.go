package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/click-gz/deskpet-backend/config"
	"github.com/click-gz/deskpet-backend/contextassembler"
	"github.com/click-gz/deskpet-backend/inference"
	"github.com/click-gz/deskpet-backend/kv"
	"github.com/click-gz/deskpet-backend/llm"
	"github.com/click-gz/deskpet-backend/log"
	"github.com/click-gz/deskpet-backend/metrics"
	"github.com/click-gz/deskpet-backend/orchestrator"
	"github.com/click-gz/deskpet-backend/profile"
	"github.com/click-gz/deskpet-backend/server"
	"github.com/click-gz/deskpet-backend/session"
	"github.com/click-gz/deskpet-backend/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Log.Errorf("load configuration: %v", err)
		return
	}

	store := openKVStore(cfg)
	log.Log.Infof("=== deskpet backend ===")
	log.Log.Infof("kv backend: %s", store.Info(context.Background()))

	seedPersonaDefaults(context.Background(), store, cfg.Persona)

	registry := llm.NewRegistry(cfg.Providers, metrics.OnFailover)
	sessions := session.New(store)
	profiles := profile.New(store)
	assembler := contextassembler.New(store, profiles, sessions)
	analyzer := inference.NewAnalyzer(registry)
	orch := orchestrator.New(profiles, sessions, assembler, registry)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Worker.Enabled {
		bg := worker.New(sessions, profiles, analyzer)
		bg.Start(ctx)
		defer bg.Stop()
	} else {
		log.Log.Infof("background worker disabled (DESKPET_WORKER_ENABLED=false)")
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	srv := server.New(store, orch, sessions, profiles, registry)
	srv.RegisterRoutes(router)

	httpServer := &http.Server{
		Addr:    cfg.GetAddress(),
		Handler: router,
	}

	go func() {
		log.Log.Infof("listening on %s", cfg.GetAddress())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Log.Errorf("http server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Log.Errorf("http server shutdown: %v", err)
	}
}

// openKVStore connects to Redis, falling back to the in-memory degraded
// mode (spec.md §1) if the connection cannot be established.
func openKVStore(cfg *config.Config) kv.Store {
	store, err := kv.NewRedisStore(cfg.Redis.Addr, cfg.Redis.DB, cfg.Redis.Password)
	if err != nil {
		log.Log.Warnf("redis unavailable (%v), falling back to in-memory KV store", err)
		return kv.NewMemoryStore()
	}
	return store
}

// seedPersonaDefaults writes the loaded persona defaults into every
// pet:config:* key that is not already set, so the Context Assembler's KV
// lookups resolve to the configured persona instead of its own hardcoded
// fallback. Values already present in the store are left untouched.
func seedPersonaDefaults(ctx context.Context, store kv.Store, persona config.PersonaDefaults) {
	fields := map[string]string{
		"name":          persona.Name,
		"system_prompt": persona.SystemPrompt,
		"personality":   persona.Personality,
		"greeting":      persona.Greeting,
		"avatar_style":  persona.AvatarStyle,
		"voice_enabled": boolString(persona.VoiceEnabled),
	}
	for field, value := range fields {
		if _, err := store.SetStringIfAbsent(ctx, "pet:config:"+field, value, 0); err != nil {
			log.Log.Warnf("seed pet:config:%s: %v", field, err)
		}
	}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
