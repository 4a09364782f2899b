package utils

import "golang.org/x/crypto/bcrypt"

// HashPassword hashes plain with the given bcrypt cost. Out-of-range
// costs fall back to the bcrypt default instead of failing, so a
// misconfigured BCRYPT_COST never blocks registration.
func HashPassword(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether plain matches the stored hash. An
// empty hash never matches: phone-registered accounts carry no password
// and must not be reachable through the email login.
func VerifyPassword(hash, plain string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
