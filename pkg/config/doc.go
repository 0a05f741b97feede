// Package config loads env-tagged configuration structs from the
// process environment, with optional .env support for local
// development. Each package owns its own Config struct (pg.Config,
// payment.StripeConfig, ...) and the binary loads them independently,
// so configuration stays next to the code it configures.
package config
