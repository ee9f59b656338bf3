// Package dialect implements the database capability: one connector per
// supported backend, each returning its backend's native response shape,
// and the normalizer that maps every shape onto []route.Row.
//
// Connectors are selected once at startup from config.DBDriver. Connection
// pooling is left to database/sql and the driver.
package dialect
