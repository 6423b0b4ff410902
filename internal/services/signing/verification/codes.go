package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"slices"
)

const (
	devCode  = "123456"
	codeMin  = 100000
	codeSpan = 900000
)

var testCodes = []string{"123456", "111111", "000000"}

// TestCodes returns the codes accepted without a stored token in dev mode.
func TestCodes() []string {
	return slices.Clone(testCodes)
}

// IsTestCode reports whether code is one of the dev test codes. It is
// always false in production builds.
func IsTestCode(code string) bool {
	return testCodesCompiled && slices.Contains(testCodes, code)
}

// randomCode returns a six digit code uniform over [100000, 999999].
func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(codeSpan))
	if err != nil {
		return "", fmt.Errorf("generate sms code: %w", err)
	}
	return fmt.Sprintf("%d", codeMin+n.Int64()), nil
}
