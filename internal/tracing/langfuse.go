// Package tracing wires optional Langfuse tracing into Eino model calls.
// Tracing is opt-in: without both Langfuse keys Setup reports disabled and
// nothing is registered.
package tracing

import (
	"os"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// DefaultHost is the Langfuse host used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// Config holds Langfuse credentials.
type Config struct {
	// Host is the Langfuse API host.
	Host string
	// PublicKey is the Langfuse project public key.
	PublicKey string
	// SecretKey is the Langfuse project secret key.
	SecretKey string
}

// ConfigFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY and LANGFUSE_SECRET_KEY.
func ConfigFromEnv() Config {
	return Config{
		Host:      os.Getenv("LANGFUSE_HOST"),
		PublicKey: os.Getenv("LANGFUSE_PUBLIC_KEY"),
		SecretKey: os.Getenv("LANGFUSE_SECRET_KEY"),
	}
}

// Enabled reports whether both keys are present.
func (c Config) Enabled() bool {
	return c.PublicKey != "" && c.SecretKey != ""
}

// Setup initialises the Langfuse callback handler when cfg is enabled.
// The returned flush function must be called before process exit so queued
// traces are sent. When disabled, handler and flush are nil and ok is false.
func Setup(cfg Config) (handler callbacks.Handler, flush func(), ok bool) {
	if !cfg.Enabled() {
		return nil, nil, false
	}
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      cfg.Host,
		PublicKey: cfg.PublicKey,
		SecretKey: cfg.SecretKey,
	})
	return handler, flush, true
}

// Enable registers the Langfuse handler globally for every Eino component
// call. It returns a flush function that is a no-op when tracing is disabled.
func Enable(cfg Config) (flush func(), ok bool) {
	handler, flush, ok := Setup(cfg)
	if !ok {
		return func() {}, false
	}
	callbacks.AppendGlobalHandlers(handler)
	return flush, true
}
