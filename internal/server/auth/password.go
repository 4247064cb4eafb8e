package auth

import "golang.org/x/crypto/bcrypt"

// bcryptCost balances hashing time against brute-force resistance.
const bcryptCost = 10

// PasswordHasher provides one-way password hashing and verification.
// bcrypt embeds a per-hash random salt, so identical passwords produce
// different hashes.
type PasswordHasher struct {
	cost int
}

func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{cost: bcryptCost}
}

// Hash generates a salted bcrypt hash of the given password.
func (h *PasswordHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Verify reports whether password matches the stored hash.
func (h *PasswordHasher) Verify(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
