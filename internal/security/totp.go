package security

import (
	"github.com/pquerna/otp/totp"
)

// TOTPEnrollment carries the data a client needs to enroll an authenticator.
type TOTPEnrollment struct {
	Secret string `json:"secret"`
	URL    string `json:"url"`
}

// GenerateTOTPSecret creates a new TOTP secret for the given account.
func GenerateTOTPSecret(issuer, account string) (*TOTPEnrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
	})
	if err != nil {
		return nil, err
	}
	return &TOTPEnrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// ValidateTOTPCode checks a TOTP code against the stored secret.
func ValidateTOTPCode(secret, code string) bool {
	return totp.Validate(code, secret)
}
