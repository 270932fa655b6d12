package helpers

import (
	"bytes"
	"fmt"
	"os"

	"golang.org/x/term"
)

const MinPasswordLen = 8

func PromptPassword(prompt string) ([]byte, error) {
	_, _ = fmt.Fprint(os.Stderr, prompt)

	pw, err := term.ReadPassword(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(os.Stderr) // best-effort newline

	if err != nil {
		ZeroBytes(pw)
		return nil, fmt.Errorf("password input failed: %w", err)
	}

	if err := ValidatePassword(pw); err != nil {
		ZeroBytes(pw)
		return nil, err
	}
	return pw, nil
}

// PromptNewPassword asks twice and requires both entries to match.
func PromptNewPassword() ([]byte, error) {
	pw, err := PromptPassword("New wallet password: ")
	if err != nil {
		return nil, err
	}
	confirm, err := PromptPassword("Confirm password: ")
	if err != nil {
		ZeroBytes(pw)
		return nil, err
	}
	defer ZeroBytes(confirm)

	if !bytes.Equal(pw, confirm) {
		ZeroBytes(pw)
		return nil, fmt.Errorf("passwords do not match")
	}
	return pw, nil
}

func ValidatePassword(pw []byte) error {
	if len(pw) < MinPasswordLen {
		return fmt.Errorf("password must be at least %d characters long", MinPasswordLen)
	}
	for _, b := range pw {
		if !IsAllowedPasswordChar(b) {
			return fmt.Errorf("password contains invalid characters (use letters, numbers, and special characters only)")
		}
	}
	return nil
}

// IsAllowedPasswordChar accepts printable ASCII except space.
func IsAllowedPasswordChar(b byte) bool {
	return b > ' ' && b <= '~'
}
