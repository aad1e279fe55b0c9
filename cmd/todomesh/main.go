// todomesh: a todo list you talk to.
//
// Usage:
//
//	todomesh serve [-config todomesh.yaml]            # HTTP + websocket API
//	todomesh mcp [-config todomesh.yaml]              # MCP server (stdio transport)
//	todomesh token [-config todomesh.yaml] -sub alice # mint a bearer token
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hupe1980/todomesh/config"
	"github.com/hupe1980/todomesh/httpapi"
	"github.com/hupe1980/todomesh/mcpserver"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(os.Args[2:])
	case "mcp":
		err = runMCP(os.Args[2:])
	case "token":
		err = runToken(os.Args[2:], os.Stdout)
	case "--help", "-h", "help":
		printUsage(os.Stdout)
		return
	case "--version", "-v", "version":
		fmt.Printf("todomesh v%s\n", mcpserver.Version)
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig parses the shared -config flag and loads the configuration.
func loadConfig(name string, args []string, extra func(fs *flag.FlagSet)) (*config.Config, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	path := fs.String("config", os.Getenv("TODOMESH_CONFIG"), "path to the YAML config file")
	if extra != nil {
		extra(fs)
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return config.Load(*path)
}

func runServe(args []string) error {
	cfg, err := loadConfig("serve", args, nil)
	if err != nil {
		return err
	}

	a, err := build(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           a.handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", cfg.Server.Addr, "mode", cfg.Server.ResponseMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runMCP(args []string) error {
	cfg, err := loadConfig("mcp", args, nil)
	if err != nil {
		return err
	}

	a, err := build(cfg, nil)
	if err != nil {
		return err
	}
	defer a.Close()

	s := mcpserver.New(a.mesh.Registry(), func(o *mcpserver.Options) {
		o.Mesh = a.mesh
		o.Logger = a.logger.WithComponent("mcp")
	})

	// Logs go to stderr; stdout belongs to the MCP transport.
	return s.ServeStdio()
}

func runToken(args []string, out io.Writer) error {
	var (
		sub string
		ttl time.Duration
	)
	cfg, err := loadConfig("token", args, func(fs *flag.FlagSet) {
		fs.StringVar(&sub, "sub", "", "token subject")
		fs.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	})
	if err != nil {
		return err
	}
	if sub == "" {
		return errors.New("-sub is required")
	}

	auth := httpapi.NewAuthenticator(cfg.Server.JWTSecret)
	if auth == nil {
		return errors.New("server.jwt_secret (or TODOMESH_JWT_SECRET) is not set")
	}
	token, err := auth.GenerateToken(sub, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `todomesh v%s: a todo list you talk to

Usage:
  todomesh serve  [-config FILE]                Start the HTTP + websocket API
  todomesh mcp    [-config FILE]                Start the MCP server (stdio transport)
  todomesh token  [-config FILE] -sub NAME      Print a bearer token for the API
  todomesh version

Configuration:
  FILE is YAML (see config.Config); TODOMESH_* environment variables
  override it, and OPENAI_API_KEY / ANTHROPIC_API_KEY supply the model key.

  MCP client config:

  {
    "mcpServers": {
      "todomesh": {
        "command": "todomesh",
        "args": ["mcp"]
      }
    }
  }
`, mcpserver.Version)
}
