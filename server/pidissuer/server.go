// Package pidissuer serves the metadata documents and the trusted CAs of the PID issuer
// over HTTP, and periodically reloads them from disk.
package pidissuer

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-co-op/gocron/v2"
	"github.com/go-errors/errors"
	"github.com/privacybydesign/pidissuer/eudi"
	"github.com/privacybydesign/pidissuer/internal/metrics"
	"github.com/privacybydesign/pidissuer/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const (
	PathCredentialIssuerMetadata = "/.well-known/openid-credential-issuer"
	PathOAuthMetadata            = "/.well-known/oauth-authorization-server"
	PathOpenIDConfiguration      = "/.well-known/openid-configuration"
	PathTrustAnchors             = "/.well-known/trust-anchors"
	PathMetrics                  = "/metrics"
)

// Server is a PID issuer instance.
type Server struct {
	conf      *server.Configuration
	eudiConf  *eudi.Configuration
	registry  *prometheus.Registry
	scheduler gocron.Scheduler
	stop      chan struct{}
	stopped   chan struct{}
	stopOnce  sync.Once
}

// New loads the trusted CAs and credential descriptors and assembles the metadata
// documents. The configuration must have been checked with Check().
func New(conf *server.Configuration) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	eudiConf, err := eudi.NewConfiguration(conf.EudiOptions(metrics.New(registry)))
	if err != nil {
		return nil, errors.WrapPrefix(err, "Invalid issuer configuration", 0)
	}
	if _, err := eudiConf.Reload(); err != nil {
		return nil, errors.WrapPrefix(err, "Failed to load issuer configuration", 0)
	}

	s := &Server{
		conf:     conf,
		eudiConf: eudiConf,
		registry: registry,
	}
	if err := s.startScheduler(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) startScheduler() error {
	scheduler, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return errors.WrapPrefix(err, "Failed to create scheduler", 0)
	}

	if s.conf.ReloadInterval > 0 {
		interval := time.Duration(s.conf.ReloadInterval) * time.Minute
		_, err = scheduler.NewJob(
			gocron.DurationJob(interval),
			gocron.NewTask(s.Reload),
			gocron.WithName("reload"),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return errors.WrapPrefix(err, "Failed to schedule reloading", 0)
		}
		s.conf.Logger.WithField("interval", interval).Info("Reloading trusted CAs and credential descriptors periodically")
	}

	scheduler.Start()
	s.scheduler = scheduler
	return nil
}

// Reload rescans the trusted CAs and credential descriptors. When it fails the documents
// served so far stay in place.
func (s *Server) Reload() {
	result, err := s.eudiConf.Reload()
	if err != nil {
		_ = server.LogWarning(errors.WrapPrefix(err, "Reload failed, keeping current issuer metadata", 0))
		return
	}
	if skipErr := result.TrustAnchorsReport.Err(); skipErr != nil {
		s.conf.Logger.WithError(skipErr).Debug("Trusted CA files skipped during reload")
	}
	if skipErr := result.DescriptorsReport.Err(); skipErr != nil {
		s.conf.Logger.WithError(skipErr).Debug("Credential descriptor files skipped during reload")
	}
}

// EudiConfiguration returns the trusted CA registry and metadata documents served.
func (s *Server) EudiConfiguration() *eudi.Configuration {
	return s.eudiConf
}

// Start the server. If successful then it will not return until Stop() is called.
func (s *Server) Start() error {
	s.stop = make(chan struct{})
	s.stopped = make(chan struct{})

	addr := s.conf.Addr()
	s.conf.Logger.Info("Server listening at ", addr)

	serv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-s.stop
		ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
		defer cancel()
		if err := serv.Shutdown(ctx); err != nil {
			_ = server.LogError(err)
		}
		close(s.stopped)
	}()

	if err := serv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop the server and the periodic reloading. Calls after the first do nothing.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if err := s.scheduler.Shutdown(); err != nil {
			_ = server.LogError(err)
		}
		if s.stop != nil {
			close(s.stop)
			<-s.stopped
		}
	})
}

// Handler returns a http.Handler serving the well-known documents below the path of the
// issuer URL, and the metrics if enabled.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(s.logMiddleware)
	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, server.ErrorNotFound, r.URL.Path)
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		server.WriteError(w, server.ErrorMethodNotAllowed, r.Method)
	})

	routes := func(r chi.Router) {
		r.Get(PathCredentialIssuerMetadata, s.handleCredentialIssuerMetadata)
		r.Get(PathOAuthMetadata, s.handleOAuthMetadata)
		r.Get(PathOpenIDConfiguration, s.handleOpenIDConfiguration)
		r.Get(PathTrustAnchors, s.handleTrustAnchors)
	}
	if prefix := strings.TrimSuffix(s.eudiConf.ServiceURL().BasePath(), "/"); prefix != "" {
		router.Route(prefix, routes)
	} else {
		routes(router)
	}

	if s.conf.EnableMetrics {
		router.Handle(PathMetrics, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}

	return router
}

func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.conf.Logger.WithFields(logrus.Fields{
			"method":   r.Method,
			"url":      r.URL.String(),
			"status":   ww.Status(),
			"duration": time.Since(start).String(),
		}).Trace("Handled request")
	})
}
