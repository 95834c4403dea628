// Package main runs the development push simulator: the marketplace
// notification REST API plus a WebSocket push gateway, backed by an
// in-memory table. It also exposes a /dev/push endpoint so pushes can
// be fired at a connected agent from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/coursehub/coursehub-client/internal/notification/domain/model"
	"github.com/coursehub/coursehub-client/internal/platform/config"
	"github.com/coursehub/coursehub-client/internal/platform/logger"
	"github.com/coursehub/coursehub-client/internal/pushsim/server"
)

func main() {
	cfg, err := config.Load("pushsim")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.Logger)

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "dev-secret-change-me"
	}

	sim := server.New(secret, log)
	router := sim.Router()

	// Development-only helpers, not part of the marketplace API.
	router.HandleFunc("/dev/token/{user}", func(w http.ResponseWriter, r *http.Request) {
		user := mux.Vars(r)["user"]
		token, err := sim.IssueToken(user)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		fmt.Fprintln(w, token)
	}).Methods("GET")

	router.HandleFunc("/dev/push/{user}", func(w http.ResponseWriter, r *http.Request) {
		user := mux.Vars(r)["user"]
		var msg model.PushMessage
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		id := sim.Push(user, msg)
		fmt.Fprintf(w, `{"success":true,"id":%q}`+"\n", id)
	}).Methods("POST")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      logger.HTTPMiddleware(log)(router),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("push simulator listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down simulator")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("forced shutdown", "error", err)
	}
}
