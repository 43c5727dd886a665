package config

import (
	"fmt"
	"os"
)

// Exitf prints to stderr and exits 1. Tools call it before any logger exists.
func Exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
