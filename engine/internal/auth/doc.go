// Package auth provides API key authentication middleware for the engine's
// HTTP surface. mTLS termination is expected at the ingress proxy.
package auth
