// Package server hosts the Fiber HTTP service and its middleware chain.
// NewApp attaches panic recovery and request IDs, lets diagnostics under /-/
// fall through to routes registered by package routes, and hands every other
// request to the injected ImageHandler. Keep exports narrow and accept
// explicit dependencies so main and tests can wire their own handlers.
package server
