// Package dashboard serves the charts and the JSON API of the plants.
package dashboard

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/evkuzin/planthealth/assistant"
	"github.com/evkuzin/planthealth/broker"
	"github.com/evkuzin/planthealth/cache"
	"github.com/evkuzin/planthealth/config"
	"github.com/evkuzin/planthealth/storage"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 5 * time.Second

type Server struct {
	storage   storage.Adapter
	cache     cache.Cache
	assistant assistant.Assistant
	logger    *logrus.Logger
	conf      *config.Config

	engine   *gin.Engine
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	hub      *hub
	// pdf turns a rendered page into a PDF document
	pdf func(ctx context.Context, html []byte) ([]byte, error)
}

// New builds the router. ai may be nil, the charts are then shown without
// generated texts.
func New(conf *config.Config, store storage.Adapter, c cache.Cache, ai assistant.Assistant, logger *logrus.Logger) *Server {
	s := &Server{
		storage:   store,
		cache:     c,
		assistant: ai,
		logger:    logger,
		conf:      conf,
		registry:  prometheus.NewRegistry(),
		hub:       newHub(logger),
		pdf:       wkhtmlPDF,
	}
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.requests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "planthealth_http_requests_total",
		Help: "Dashboard requests by route and status code.",
	}, []string{"route", "code"})
	s.registry.MustRegister(s.requests)

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), s.observe)

	r.GET("/", s.index)
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	r.GET("/ws", s.hub.serve)
	r.GET("/report/:id", s.report)

	api := r.Group("/api")
	api.GET("/plants", s.listPlants)
	api.POST("/plants", s.createPlant)
	api.GET("/plants/:id", s.getPlant)
	api.GET("/plants/:id/readings", s.readings)
	api.GET("/plants/:id/readings.csv", s.readingsCSV)

	s.engine = r
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// observe logs every request and counts it by route.
func (s *Server) observe(c *gin.Context) {
	start := time.Now()
	c.Next()
	route := c.FullPath()
	if route == "" {
		route = "unmatched"
	}
	code := c.Writer.Status()
	s.requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
	s.logger.Debugf("%s %s %d %s", c.Request.Method, c.Request.URL.Path, code, time.Since(start))
}

// Start serves the dashboard until ctx is done. When a broker is configured
// readings received over MQTT are pushed to websocket clients.
func (s *Server) Start(ctx context.Context) error {
	if s.conf.MQTT.Broker != "" {
		// the sensor connects with the configured client id
		mq := s.conf.MQTT
		mq.ClientID += "-dashboard"
		client, err := broker.Connect(ctx, &mq, s.logger)
		if err != nil {
			s.logger.Warnf("live feed disabled: %s", err)
		} else if err := broker.Subscribe(client, s.conf.MQTT.TopicPrefix, s.logger, s.hub.broadcast); err != nil {
			s.logger.Warnf("live feed disabled: %s", err)
		}
	}

	srv := &http.Server{
		Addr:              s.conf.Dashboard.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Infof("dashboard listening on %s", s.conf.Dashboard.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	s.logger.Info("Stopping dashboard")
	s.hub.close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) healthz(c *gin.Context) {
	if err := s.storage.Ping(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
