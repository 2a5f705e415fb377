// Package auth resolves bearer tokens to identities.
//
// Tokens have the form mh_<base64url(32 random bytes)> and are stored only as
// SHA-256 hashes. An Identity says who the caller is; what they may do is
// decided by package rbac.
//
//	tokens := auth.NewTokenManager(db)
//	record, plaintext, err := tokens.CreateToken(ctx, userID, "ci", nil)
//	identity, err := tokens.ResolveToken(ctx, plaintext)
package auth
