package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog"
	"github.com/go-chi/traceid"
	idpagent "github.com/ndidplatform/idp-agent"
	"github.com/ndidplatform/idp-agent/broker"
	"github.com/ndidplatform/idp-agent/config"
	"github.com/ndidplatform/idp-agent/data"
	"github.com/ndidplatform/idp-agent/notify"
	"github.com/ndidplatform/idp-agent/o11y"
	"github.com/ndidplatform/idp-agent/trustapi"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RPC struct {
	Config     *config.Config
	Log        zerolog.Logger
	Server     *http.Server
	HTTPClient o11y.HTTPClient
	Broker     *broker.Broker
	Channel    *notify.Channel

	startTime time.Time
	running   int32
}

func New(cfg *config.Config, transport http.RoundTripper) (*RPC, error) {
	apiTimeout := 30 * time.Second
	if cfg.Upstream.TimeoutSeconds > 0 {
		apiTimeout = time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second
	}
	client := &http.Client{
		Timeout:   apiTimeout,
		Transport: transport,
	}
	wrappedClient := o11y.WrapClient(client)

	log := httplog.NewLogger("idp-agent", httplog.Options{
		LogLevel: zerolog.LevelDebugValue,
	})

	directory, err := newDirectory(cfg, wrappedClient)
	if err != nil {
		return nil, err
	}

	var keys data.KeyStore
	if cfg.Keys.Dir != "" {
		keys, err = data.NewFileKeyStore(cfg.Keys.Dir)
		if err != nil {
			return nil, err
		}
	} else {
		keys = data.NewMemoryKeyStore()
	}

	httpServer := &http.Server{
		ReadTimeout:       45 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       45 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	channel := notify.NewChannel(log)
	upstream := trustapi.NewClient(cfg.Upstream.BaseURL, wrappedClient)
	b, err := broker.New(log, directory, data.NewRequestStore(), keys, upstream, channel)
	if err != nil {
		return nil, err
	}

	s := &RPC{
		Config:     cfg,
		Log:        log,
		Server:     httpServer,
		HTTPClient: wrappedClient,
		Broker:     b,
		Channel:    channel,
		startTime:  time.Now(),
	}
	return s, nil
}

func newDirectory(cfg *config.Config, httpClient o11y.HTTPClient) (data.Directory, error) {
	if cfg.Database.Backend != "dynamodb" {
		return data.NewMemoryDirectory(), nil
	}

	options := []func(options *awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Database.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.Database.AWSEndpoint != "" {
		options = append(options, awsconfig.WithEndpointResolverWithOptions(
			aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
				return aws.Endpoint{URL: cfg.Database.AWSEndpoint}, nil
			}),
		), awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("test", "test", "test")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), options...)
	if err != nil {
		return nil, err
	}

	db := dynamodb.NewFromConfig(awsCfg)
	return data.NewUserTable(db, cfg.Database.UsersTable, data.UserIndices{ByID: "ID-Index"}), nil
}

func (s *RPC) Run(ctx context.Context, l net.Listener) error {
	if s.IsRunning() {
		return fmt.Errorf("rpc: already running")
	}

	s.Log.Info().
		Str("op", "run").
		Str("ver", idpagent.VERSION).
		Msgf("-> rpc: started idp-agent")

	atomic.StoreInt32(&s.running, 1)
	defer atomic.StoreInt32(&s.running, 0)

	s.Server.Handler = s.Handler()

	// Ingress consumer: single serialization point for inbound
	// trust-network callbacks.
	go func() {
		if err := s.Broker.Run(ctx); err != nil && ctx.Err() == nil {
			s.Log.Error().Err(err).Msg("rpc: ingress consumer stopped")
		}
	}()

	// Handle stop signal to ensure clean shutdown
	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	err := s.Server.Serve(l)
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *RPC) Stop(timeoutCtx context.Context) {
	if !s.IsRunning() || s.IsStopping() {
		return
	}
	atomic.StoreInt32(&s.running, 2)

	s.Log.Info().Str("op", "stop").Msg("-> rpc: stopping..")
	s.Server.Shutdown(timeoutCtx)
	s.Log.Info().Str("op", "stop").Msg("-> rpc: stopped.")
}

func (s *RPC) IsRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

func (s *RPC) IsStopping() bool {
	return atomic.LoadInt32(&s.running) == 2
}

func (s *RPC) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)

	// Propagate TraceId
	r.Use(traceid.Middleware)

	// HTTP request logger
	r.Use(httplog.RequestLogger(s.Log, []string{"/", "/ping", "/health", "/status", "/favicon.ico"}))

	// The browser client is served from a different origin in dev.
	r.Use(cors.New(cors.Options{
		AllowOriginFunc:  func(r *http.Request, origin string) bool { return true },
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           600,
	}).Handler)

	// Healthcheck
	r.Use(middleware.PageRoute("/health", http.HandlerFunc(s.healthHandler)))
	r.Use(middleware.PageRoute("/status", http.HandlerFunc(s.statusHandler)))

	r.Handle("/metrics", promhttp.Handler())

	// The push channel is long-lived; it stays outside the request
	// timeout and the span middleware, which both assume a response
	// is written before the handler returns.
	r.Get("/ws", s.serveWS)

	r.Group(func(r chi.Router) {
		// Timeout any request after 28 seconds as Cloudflare has a 30 second limit anyways.
		r.Use(middleware.Timeout(28 * time.Second))

		// Observability middleware
		r.Use(o11y.Middleware())

		r.Post("/identity", s.onboardHandler)
		r.Get("/requests/{namespace}/{identifier}", s.pendingRequestsHandler)
		r.Post("/accept", s.acceptHandler)
		r.Post("/reject", s.rejectHandler)
		r.Get("/getUserId/{namespace}/{identifier}", s.userIDHandler)
		r.Post("/callback", s.callbackHandler)
	})

	return r
}

func (s *RPC) statusHandler(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"startTime": s.startTime,
		"uptime":    uint64(time.Now().UTC().Sub(s.startTime).Seconds()),
		"ver":       idpagent.VERSION,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(status)
}

func (s *RPC) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
