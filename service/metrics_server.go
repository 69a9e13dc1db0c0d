package service

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsServer struct {
	server *http.Server
}

func (m *MetricsServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Handler: hdlr,
		Addr:    addr,
	}
	m.server = server
	return m.server.ListenAndServe()
}

// Shutdown drains in-flight scrapes under its own deadline. The run context
// is usually already cancelled by the time shutdown happens.
func (m *MetricsServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.server.Shutdown(ctx)
}
