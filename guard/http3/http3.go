// Package http3 provides an optional QUIC listener mirroring the main
// HTTP server, so guarded traffic can be served over HTTP/3.
package http3

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/quic-go/quic-go/http3"
)

type Config struct {
	Enabled      bool   `yaml:"enabled"`
	Port         string `yaml:"port"`
	CertFile     string `yaml:"cert_file"`
	KeyFile      string `yaml:"key_file"`
	MaxStreams   int64  `yaml:"max_streams"`
	IdleTimeout  int    `yaml:"idle_timeout"`
	AltSvcHeader bool   `yaml:"alt_svc_header"`
}

type Server struct {
	config     Config
	server     *http3.Server
	quicConfig *quic.Config
	mu         sync.RWMutex
	running    bool
}

func NewServer(cfg Config) *Server {
	if cfg.Port == "" {
		cfg.Port = ":443"
	}
	if cfg.MaxStreams == 0 {
		cfg.MaxStreams = 100
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 30
	}

	quicCfg := &quic.Config{
		MaxIncomingStreams:    cfg.MaxStreams,
		MaxIdleTimeout:        time.Duration(cfg.IdleTimeout) * time.Second,
		KeepAlivePeriod:       time.Second * 15,
		EnableDatagrams:       false,
		MaxIncomingUniStreams: 10,
	}

	return &Server{
		config:     cfg,
		quicConfig: quicCfg,
	}
}

func (s *Server) Start(handler http.Handler) error {
	if !s.config.Enabled {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	cert, err := tls.LoadX509KeyPair(s.config.CertFile, s.config.KeyFile)
	if err != nil {
		return err
	}

	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
		NextProtos:   []string{"h3", "h3-29"},
	}

	wrapped := handler
	if s.config.AltSvcHeader {
		wrapped = altSvc(handler)
	}

	s.server = &http3.Server{
		Addr:       s.config.Port,
		Handler:    wrapped,
		TLSConfig:  tlsConfig,
		QUICConfig: s.quicConfig,
	}

	s.running = true

	go func() {
		log.Printf("[HTTP/3] listening on %s", s.config.Port)
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[HTTP/3] server error: %v", err)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}

	err := s.server.Close()
	s.running = false
	return err
}

func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

func altSvc(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Alt-Svc", `h3=":443"; ma=2592000`)
		next.ServeHTTP(w, r)
	})
}
