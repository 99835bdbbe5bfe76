package ctl

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

var errPasswordMismatch = errors.New("passwords do not match")

// getPassword prints prompt to w and reads a password from the terminal
// without echo.
func getPassword(w io.Writer, prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(w, prompt); err != nil {
		return nil, err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// confirmPassword asks twice and returns the password when both entries agree.
func confirmPassword(w io.Writer) (string, error) {
	first, err := getPassword(w, "Enter password: ")
	if err != nil {
		return "", err
	}
	second, err := getPassword(w, "Confirm password: ")
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errPasswordMismatch
	}
	return string(first), nil
}
