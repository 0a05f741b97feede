// Package redis provides Redis connection management with retry logic
// and a readiness probe. The application uses Redis only as an optional
// fast-path duplicate filter for webhook deliveries.
package redis
