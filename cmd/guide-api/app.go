package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	guidesapi "github.com/BearBump/GuideBox/internal/api/guides_api"
	"github.com/BearBump/GuideBox/internal/broker/messages"
	"github.com/BearBump/GuideBox/internal/services/guides"
)

type guideAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	// ready reports storage health for /readyz. Optional.
	ready func(ctx context.Context) error

	onListen func(httpAddr string)
}

type kafkaConsumer interface {
	Consume(ctx context.Context, handler func(key, value []byte) error) error
}

func runGuideAPI(ctx context.Context, opts guideAPIOpts, svc *guides.Service, consumer kafkaConsumer) error {
	if opts.httpAddr == "" {
		opts.httpAddr = ":8080"
	}
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if opts.ready != nil {
			if err := opts.ready(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(w).Encode(map[string]string{"status": "not ready", "error": err.Error()})
				return
			}
		}
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})

	r.Mount("/guides", guidesapi.New(svc).Routes())

	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})

	swaggerURL := "/swagger.json"
	if fi, err := os.Stat(opts.swaggerPath); err == nil {
		swaggerURL = fmt.Sprintf("/swagger.json?v=%d", fi.ModTime().Unix())
	}
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL(swaggerURL)))

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		_ = consumer.Consume(ctx, func(_, value []byte) error {
			var m messages.GuideSynced
			if err := json.Unmarshal(value, &m); err != nil {
				return err
			}
			return svc.ApplyCarrierUpdate(ctx, m)
		})
	}()

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	return srv.Serve(lis)
}
