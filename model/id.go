package model

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewInternalID generates a random 128-bit identifier as 32 lowercase hex
// characters (session ids, summary-queue task ids).
func NewInternalID() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// DeriveUserID deterministically maps a raw external id (e.g. "default", a
// device fingerprint, or an account id from the pet's host app) to a stable
// 128-bit hex internal id. It is pure and idempotent: the same raw id always
// derives the same internal id, so concurrent first-time lookups for the
// same raw id converge without depending on write ordering (see
// profile.Store.GetOrCreateUserID).
func DeriveUserID(rawID string) string {
	sum := sha256.Sum256([]byte(rawID))
	return hex.EncodeToString(sum[:16])
}
