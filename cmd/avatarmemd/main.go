// Command avatarmemd runs the avatar memory service: the HTTP chat surface,
// asset endpoints, and the background session sweeper.
package main

import (
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/companionlabs/avatarmem-go/pkg/core"
)

func main() {
	config, err := core.LoadConfigFromEnv()
	if err != nil {
		log.Fatalf("avatarmemd: load config: %v", err)
	}

	service, err := core.NewService(config)
	if err != nil {
		log.Fatalf("avatarmemd: %v", err)
	}

	service.Start()

	httpServer := &http.Server{
		Addr:    config.ListenAddr,
		Handler: service.Handler(),
	}

	go func() {
		log.Printf("avatarmemd: listening on %s", config.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("avatarmemd: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Printf("avatarmemd: shutting down")
	_ = httpServer.Close()
	if err := service.Close(); err != nil {
		log.Printf("avatarmemd: close: %v", err)
	}
}
