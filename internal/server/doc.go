// Package server hosts the VidTube HTTP API behind a single multiplexer.
//
// The server builds a consistent middleware chain of request IDs, logging,
// audit, security headers, CORS, rate limiting, and authentication so
// handlers all share common protections and instrumentation.
package server
