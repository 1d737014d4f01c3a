// Package model defines the MetaTrader domain types exchanged with the
// MetaApi server: account information, positions, orders, deals, symbol
// specifications, symbol prices and trade results.
//
// Wire timestamps are typed per field: instants the server reports in
// ISO-8601 decode into time.Time, while broker-local times (brokerTime
// fields) stay strings because they carry no zone information.
package model
