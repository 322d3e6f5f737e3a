package main

import (
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/bcrypt"
)

// hash-api-key prints the bcrypt hash of an API key for use as API_KEY_HASH.
func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: hash-api-key <api-key>")
		os.Exit(2)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(os.Args[1]), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("Failed to hash API key: %v", err)
	}

	fmt.Printf("API_KEY_HASH=%s\n", string(hash))
}
