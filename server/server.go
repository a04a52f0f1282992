/*
 * SPDX-License-Identifier: AGPL-3.0-or-later
 * Copyright 2020 Kopano and its licensors
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"github.com/longsleep/go-metrics/loggedwriter"
	"github.com/longsleep/go-metrics/timing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	apiv0 "stash.kopano.io/kwm/kwmsdp/api/v0/service"
	cfg "stash.kopano.io/kwm/kwmsdp/config"
	"stash.kopano.io/kwm/kwmsdp/internal/relay"
	"stash.kopano.io/kwm/kwmsdp/sdptransform"
	"stash.kopano.io/kwm/kwmsdp/service"
)

const shutdownTimeout = 10 * time.Second

// Server serves the decoration API, the signaling relay and optionally
// metrics.
type Server struct {
	config *cfg.Config

	listenAddr string
	logger     logrus.FieldLogger

	requestLog    bool
	requestsTotal *prometheus.CounterVec

	services     *service.Services
	relayManager *relay.Manager
}

// NewServer constructs a server from the provided parameters.
func NewServer(c *cfg.Config) (*Server, error) {
	if c.Logger == nil {
		return nil, fmt.Errorf("server requires a logger")
	}

	s := &Server{
		config: c,

		listenAddr: c.ListenAddr,
		logger:     c.Logger,

		requestLog: c.RequestLog,
	}

	if c.Metrics != nil {
		s.requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Number of handled HTTP requests by status code and method",
		}, []string{"code", "method"})
		if err := c.Metrics.Register(s.requestsTotal); err != nil {
			return nil, fmt.Errorf("failed to register server metrics: %w", err)
		}
	}

	return s, nil
}

// WithMetrics counts and optionally logs every request handled by next.
func (s *Server) WithMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		loggedWriter := metrics.NewLoggedResponseWriter(rw)

		ctx, cancel := context.WithCancel(req.Context())
		ctx = timing.NewContext(ctx, func(duration time.Duration) {
			status := loggedWriter.Status()
			if s.requestsTotal != nil {
				s.requestsTotal.WithLabelValues(strconv.Itoa(status), req.Method).Inc()
			}
			if !s.requestLog {
				return
			}
			s.logger.WithFields(logrus.Fields{
				"status":     status,
				"method":     req.Method,
				"path":       req.URL.Path,
				"remote":     req.RemoteAddr,
				"duration":   float64(duration) / float64(time.Millisecond),
				"user-agent": req.UserAgent(),
				"origin":     req.Header.Get("Origin"),
			}).Debug("HTTP request complete")
		})

		next.ServeHTTP(loggedWriter, req.WithContext(ctx))

		// Canceling stops the timer and runs the callback.
		cancel()
	})
}

// AddContext adds the accociated server's context to the provided http.Hander
// request.
func (s *Server) AddContext(parent context.Context, next http.Handler) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, req *http.Request) {
		next.ServeHTTP(rw, req.WithContext(parent))
	})
}

// AddRoutes add the accociated Servers URL routes to the provided router with
// the provided context.Context.
func (s *Server) AddRoutes(ctx context.Context, router *mux.Router, chain alice.Chain) http.Handler {
	router.Handle("/health-check", chain.ThenFunc(s.HealthCheckHandler))

	return router
}

// Handler creates the services of the accociated server bound to ctx and
// returns the router serving all of them.
func (s *Server) Handler(ctx context.Context) (http.Handler, error) {
	logger := s.logger

	transformer, err := sdptransform.NewTransformer(&sdptransform.TransformerOptions{
		Logger:       logger.WithField("scope", "sdptransform"),
		Metrics:      s.config.Metrics,
		VerifyOutput: s.config.VerifyOutput,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transformer: %w", err)
	}

	relayManager, err := relay.NewManager(ctx, &relay.Options{
		Logger:  logger,
		Metrics: s.config.Metrics,

		Transformer:   transformer,
		DefaultPolicy: s.config.DefaultPolicy,

		MaxRooms:        s.config.RelayMaxRooms,
		RoomIdleTimeout: s.config.RelayRoomIdleTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create relay manager: %w", err)
	}
	s.relayManager = relayManager
	s.services = &service.Services{
		RelayManager: relayManager,
	}

	router := mux.NewRouter()
	commonHandlers := alice.New()
	if s.requestLog || s.requestsTotal != nil {
		commonHandlers = commonHandlers.Append(s.WithMetrics)
	}

	s.AddRoutes(ctx, router, commonHandlers)

	apiv0Service := apiv0.NewHTTPService(ctx, logger, s.services, transformer, s.config.DefaultPolicy)
	apiv0Service.AddRoutes(ctx, router, commonHandlers)

	return router, nil
}

// listen starts an HTTP server for handler on addr. Serve errors are sent to
// errCh.
func (s *Server) listen(name string, addr string, handler http.Handler, wg *sync.WaitGroup, errCh chan<- error) (*http.Server, error) {
	logger := s.logger.WithField("listener", name)

	logger.WithField("listenAddr", addr).Infoln("starting http listener")
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{
		Handler:  handler,
		ErrorLog: log.New(&debugLogger{logger: logger, prefix: name + " "}, "", 0),
	}
	wg.Add(1)
	go func() {
		defer func() {
			logger.Debugln("http listener stopped")
			wg.Done()
		}()

		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- fmt.Errorf("%s listener failed: %w", name, serveErr)
		}
	}()

	return srv, nil
}

// Serve starts all the accociated servers resources and listeners and blocks
// forever until signals or error occurs. Returns error and gracefully stops
// all HTTP listeners before return.
func (s *Server) Serve(ctx context.Context) error {
	serveCtx, serveCtxCancel := context.WithCancel(ctx)
	defer serveCtxCancel()

	logger := s.logger

	router, err := s.Handler(serveCtx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 2)
	wg := &sync.WaitGroup{}
	var servers []*http.Server

	srv, err := s.listen("http", s.listenAddr, s.AddContext(serveCtx, router), wg, errCh)
	if err != nil {
		return err
	}
	servers = append(servers, srv)

	if s.config.WithMetrics && s.config.MetricsListenAddr != "" && s.config.MetricsGatherer != nil {
		handler := http.NewServeMux()
		handler.Handle("/metrics", promhttp.HandlerFor(s.config.MetricsGatherer, promhttp.HandlerOpts{}))
		metricsSrv, metricsErr := s.listen("metrics", s.config.MetricsListenAddr, handler, wg, errCh)
		if metricsErr != nil {
			srv.Close()
			return metricsErr
		}
		servers = append(servers, metricsSrv)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.relayManager.Wait()
	}()

	exitCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(exitCh)
	}()

	logger.Infoln("ready to handle requests")

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signalCh)

	select {
	case err = <-errCh:
		logger.WithError(err).Errorln("listener failed")
	case reason := <-signalCh:
		logger.WithField("signal", reason).Warnln("received signal")
	case <-ctx.Done():
	}

	// Listeners stop accepting, then the relay connections are closed.
	logger.Infoln("clean server shutdown start")
	shutdownCtx, shutdownCtxCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCtxCancel()
	for _, srv := range servers {
		if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.WithError(shutdownErr).Warnln("clean server shutdown failed")
		}
	}
	serveCtxCancel()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-exitCh:
			logger.Infoln("clean server shutdown complete")
			return err
		case reason := <-signalCh:
			logger.WithField("signal", reason).Warnln("received signal, exit now")
			return err
		case <-ticker.C:
			logger.WithField("active", s.services.NumActive()).Debugln("waiting for services to exit")
		}
	}
}
