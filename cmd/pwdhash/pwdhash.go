package main

import (
	"fmt"
	"os"

	"github.com/cyclopcam/anonymiser/pkg/pwdhash"
)

// Takes a password as the first argument, and prints out a base64 encoded version of the hashed password.
// Paste the result into the 'adminPasswordHash' field of the anonymiser config file.
func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: pwdhash <password>\n")
		os.Exit(1)
	}
	hash, err := pwdhash.HashPasswordBase64(os.Args[1])
	if err != nil {
		fmt.Printf("%v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%v\n", hash)
}
