package services

import (
	"crypto/subtle"

	"golang.org/x/crypto/bcrypt"
)

// AdminGate checks the shared researcher password that guards every admin
// operation. There are no sessions or tokens; each call re-submits the
// password. The secret is either a plaintext value compared in constant
// time, or a bcrypt hash when the operator prefers not to put the plain
// secret in the environment.
type AdminGate struct {
	password string
	hash     []byte
}

func NewAdminGate(password, bcryptHash string) *AdminGate {
	g := &AdminGate{password: password}
	if bcryptHash != "" {
		g.hash = []byte(bcryptHash)
	}
	return g
}

// Authorize returns nil for a correct password and an unauthorized
// ServiceError otherwise.
func (g *AdminGate) Authorize(submitted string) error {
	if g.hash != nil {
		if bcrypt.CompareHashAndPassword(g.hash, []byte(submitted)) != nil {
			return NewUnauthorizedError("wrong admin password")
		}
		return nil
	}
	if g.password == "" {
		return NewUnauthorizedError("admin password not configured")
	}
	if subtle.ConstantTimeCompare([]byte(g.password), []byte(submitted)) != 1 {
		return NewUnauthorizedError("wrong admin password")
	}
	return nil
}
