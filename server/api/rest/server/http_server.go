package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/buildbeaver/depchain/common/logger"
)

const readHeaderTimeout = 30 * time.Second

type TLSConfig struct {
	CertificateFile string
	PrivateKeyFile  string
}

type HTTPServerConfig struct {
	Address   string
	TLSConfig *TLSConfig
}

// APIServer is implemented by HTTPServer and HTTPTestServer
type APIServer interface {
	Start()
	Stop(ctx context.Context) error
	GetServerURL() string
	GetHTTPServer() *http.Server
}

type HTTPServerFactory = func(handler http.Handler, config HTTPServerConfig, log logger.Log) (APIServer, error)

func RealHTTPServerFactory() HTTPServerFactory {
	return func(handler http.Handler, config HTTPServerConfig, log logger.Log) (APIServer, error) {
		return NewHTTPServer(handler, config, log)
	}
}

// HTTPServer is an HTTP(S) server that can serve depchain API requests.
type HTTPServer struct {
	httpServer *http.Server
	config     HTTPServerConfig
	log        logger.Log
}

func NewHTTPServer(
	handler http.Handler,
	config HTTPServerConfig,
	log logger.Log,
) (*HTTPServer, error) {
	if config.Address == "" {
		return nil, fmt.Errorf("error server address must be set")
	}
	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return &HTTPServer{
		httpServer: httpServer,
		config:     config,
		log:        log,
	}, nil
}

// Start starts listening on the API server HTTP port.
// ListenAndServe is called on a goroutine so this function returns immediately.
func (s *HTTPServer) Start() {
	go func() {
		var err error
		if s.config.TLSConfig != nil {
			s.log.Infof("HTTPS listening on %s", s.httpServer.Addr)
			err = s.httpServer.ListenAndServeTLS(s.config.TLSConfig.CertificateFile, s.config.TLSConfig.PrivateKeyFile)
		} else {
			s.log.Infof("HTTP listening on %s", s.httpServer.Addr)
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			// If we can't start the main HTTP server then log an error and terminate the process
			s.log.Fatalf("Error starting server: %s", err)
		}
	}()
}

// Stop shuts down the HTTP server that is listening on the API server port.
// The server is shut down gracefully, allowing all existing HTTP requests to complete up until
// ctx is done. Stop should only be called once.
func (s *HTTPServer) Stop(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("error shutting down HTTP server: %w", err)
	}
	return nil
}

func (s *HTTPServer) GetServerURL() string {
	if s.config.TLSConfig != nil {
		return fmt.Sprintf("https://%s", s.httpServer.Addr)
	}
	return fmt.Sprintf("http://%s", s.httpServer.Addr)
}

func (s *HTTPServer) GetHTTPServer() *http.Server {
	return s.httpServer
}
