package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/traceid"
	"github.com/go-chi/transport"
	idpagent "github.com/ndidplatform/idp-agent"
	"github.com/ndidplatform/idp-agent/config"
	"github.com/ndidplatform/idp-agent/rpc"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		panic(err)
	}

	// HTTP transport chain for all outgoing connections
	transportChain := transport.Chain(
		http.DefaultTransport,
		transport.SetHeader("User-Agent", "idp-agent/"+idpagent.VERSION),
		traceid.Transport,
	)

	s, err := rpc.New(cfg, transportChain)
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	defer s.Stop(context.Background())

	l, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Service.Port))
	if err != nil {
		panic(err)
	}

	if err := s.Run(ctx, l); err != nil {
		panic(err)
	}
}
