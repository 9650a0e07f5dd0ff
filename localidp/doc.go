// Package localidp is a self-hosted identity provider for stepAuth.
//
// It keeps accounts, challenge sessions and confirmation codes in Redis and
// answers the engine's calls the way the hosted user pool does: credentials
// open a security-question step, a right answer opens a Caesar-cipher step,
// and a right cipher answer completes with ID token attributes. Passwords and
// answers are stored as Argon2id hashes.
package localidp
