package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tmx156/Crm-sub003/config"
	"github.com/tmx156/Crm-sub003/db"
	"github.com/tmx156/Crm-sub003/services"
)

type Server struct {
	Config            *config.Config
	MessageService    services.MessageService
	MessageRepository db.MessageRepository
	LeadRepository    db.LeadRepository
	Hub               *Hub
	DB                db.GormDB
}

// Start runs the HTTP server until interrupted, then shuts down
// gracefully.
func (s *Server) Start() {
	port := s.Config.Port
	if port == 0 {
		port = 8080
	}

	r := s.setupRouter()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}

	go func() {
		log.Printf("Server started on port %d", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
	log.Println("Server exiting")
}
