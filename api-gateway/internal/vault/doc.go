// Package vault implements the trend-vault marketplace ledger state: the brand
// registry, the product catalog, timed auctions and product reviews.
//
// A Vault is not safe for concurrent use. The hosting ledger applies one
// action at a time and supplies the caller identity and block height through
// an Env.
package vault
