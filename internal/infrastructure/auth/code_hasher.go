package auth

import (
	"github.com/you/mimora/domain"
	"golang.org/x/crypto/bcrypt"
)

// CodeHasherImpl implements domain.CodeHasher with bcrypt
type CodeHasherImpl struct {
	cost int
}

// NewCodeHasher creates a bcrypt hasher for one-time codes. Codes live for
// minutes, so the minimum cost is enough.
func NewCodeHasher() *CodeHasherImpl {
	return &CodeHasherImpl{
		cost: bcrypt.MinCost,
	}
}

// Hash implements domain.CodeHasher
func (p *CodeHasherImpl) Hash(code string) (string, error) {
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(code), p.cost)
	if err != nil {
		return "", err
	}
	return string(hashedBytes), nil
}

// Verify implements domain.CodeHasher
func (p *CodeHasherImpl) Verify(hashed, code string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(code))
	return err == nil
}

var _ domain.CodeHasher = (*CodeHasherImpl)(nil)
