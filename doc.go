// Package trustcore is the trust-and-access core for a membership platform:
// credential verification with banned/frozen gating, independent member and
// panel session realms, a single-use image-challenge engine, a
// mnemonic-recovery cooldown, and secure identifier generation.
//
// The package is transport-agnostic. Redirects are returned as explicit
// values for the caller's routing layer to honor; nothing here writes to a
// connection or terminates a request. Durable account state lives in
// PostgreSQL behind the store package, all ephemeral state lives in Redis,
// and every cache or store ambiguity fails closed.
package trustcore
