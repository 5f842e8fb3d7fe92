// Package tracing wires optional Langfuse tracing into the eino callback
// chain so each chat model call made while answering a question is recorded.
package tracing

import (
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"
)

// DefaultHost is used when LANGFUSE_HOST is unset.
const DefaultHost = "https://cloud.langfuse.com"

// Setup initialises the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. The returned flush function must be called
// before process exit so buffered traces are sent. When Langfuse is not
// configured ok is false and the other return values are nil.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	cfg, ok := configFromEnv()
	if !ok {
		return nil, nil, false
	}
	handler, flush = langfuse.NewLangfuseHandler(cfg)
	return handler, flush, true
}

// configFromEnv resolves the Langfuse client config. Both keys are required.
func configFromEnv() (*langfuse.Config, bool) {
	publicKey := strings.TrimSpace(os.Getenv("LANGFUSE_PUBLIC_KEY"))
	secretKey := strings.TrimSpace(os.Getenv("LANGFUSE_SECRET_KEY"))
	if publicKey == "" || secretKey == "" {
		return nil, false
	}
	host := strings.TrimRight(strings.TrimSpace(os.Getenv("LANGFUSE_HOST")), "/")
	if host == "" {
		host = DefaultHost
	}
	return &langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
	}, true
}
