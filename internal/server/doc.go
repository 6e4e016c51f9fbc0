/*
Package server provides HTTP/HTTPS server lifecycle management: non-blocking
start, graceful shutdown, and OS signal handling.

# Overview

Manager wraps net/http.Server, coordinating listen, serve, shutdown, and
error propagation through one type. It supports both plain HTTP and TLS
startup modes, with built-in SIGINT/SIGTERM handling for production-grade
graceful shutdown. The gateway instantiates two Managers — the main
completions/admin listener and the OAuth-callback-only listener on
127.0.0.1:1455 — and runs both under a shared errgroup in cmd/ccmux.

# Core types

  - Manager: holds an http.Server, its net.Listener, and an async error
    channel; exposes Start/StartTLS/Shutdown/WaitForShutdown.
  - Config: listen address, read/write/idle timeouts, max header size, and
    graceful-shutdown timeout.

# Capabilities

  - Non-blocking start: Start/StartTLS serve in a background goroutine.
  - Graceful shutdown: Shutdown drains in-flight requests within the
    configured timeout.
  - Signal handling: WaitForShutdown listens for SIGINT/SIGTERM and triggers
    shutdown automatically.
  - Error propagation: Errors() returns a channel callers can select on.
  - TLS support: StartTLS takes a cert/key pair.
  - Status queries: IsRunning/Addr report current state.
*/
package server
