// File: internal/token/purpose.go
package token

// Purpose tags a signed token's single intended use. A token minted for one
// purpose is rejected anywhere a different purpose is expected, even when its
// signature and expiry are valid.
type Purpose string

const (
	PurposeAccess            Purpose = "access"
	PurposeEmailVerification Purpose = "email_verification"
	PurposePasswordReset     Purpose = "password_reset"
)

// Valid reports whether p is one of the known purposes.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeAccess, PurposeEmailVerification, PurposePasswordReset:
		return true
	}
	return false
}
