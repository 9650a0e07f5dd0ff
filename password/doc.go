// Package password hashes passwords and security answers with Argon2id for
// the reference identity provider.
//
// Hashes use the PHC string format with unpadded base64:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// Verify reads the cost parameters from the stored hash, so raising the
// configured cost does not invalidate existing records; NeedsUpgrade tells the
// caller when to re-hash after a successful check.
//
// The package neither stores nor logs secrets, and it does not normalize
// them. Answer normalization happens before hashing.
package password
