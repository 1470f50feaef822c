// Package observability provides process-wide logging construction.
package observability
