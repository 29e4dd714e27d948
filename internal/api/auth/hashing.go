package auth

import "golang.org/x/crypto/bcrypt"

// HashSecret hashes a secret with a fresh salt. Two calls with the same input
// produce different hashes; VerifySecret matches either.
func HashSecret(secret string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifySecret reports whether secret matches the stored hash. A malformed hash
// compares as false, it never panics.
func VerifySecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}
