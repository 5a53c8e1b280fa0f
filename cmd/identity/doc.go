// Package identity implements authd's account persistence.
//
// It owns the Account and PhotographerProfile records, email normalization,
// and the Accounts store boundary used by the session manager. Stores run
// over a Querier so the same code serves a pooled connection and a transaction.
package identity
