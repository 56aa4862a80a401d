// Command proxy runs the Edge Proxy: a public-facing listener that
// health-checks a pool of game server backends, forwards client
// connections to a healthy one, and migrates live connections on
// backend failure.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"hokm/internal/config"
	"hokm/internal/proxy"
)

func main() {
	log.Println("starting hokm edge proxy...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	p := proxy.New(cfg.Proxy)
	go p.Run(ctx)
	defer p.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", p.HandleClient)

	srv := &http.Server{Addr: cfg.Proxy.ListenAddr, Handler: mux}
	go func() {
		<-ctx.Done()
		srv.Close()
	}()

	log.Printf("edge proxy listening on %s, backends: %v", cfg.Proxy.ListenAddr, cfg.Proxy.Backends)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("edge proxy failed: %v", err)
	}
}
