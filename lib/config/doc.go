// Package config holds the process configuration of dShard and knows how to
// turn it into the storage backend, the id counter and the entity types.
//
// The CLI fills Config from cobra flags, environment variables (DSHARD_*) and
// .env files via viper. Library users can build a Config directly, start from
// Default() and call Validate before opening anything.
package config
