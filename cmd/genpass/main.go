// Command genpass prints the Argon2id hash of a password, for seeding
// or manually resetting an account.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/sudharshan/ppe-monitor/internal/auth"
)

func main() {
	if len(os.Args) != 2 {
		log.Fatalf("usage: %s <password>", os.Args[0])
	}

	hash, err := auth.HashPassword(os.Args[1])
	if err != nil {
		log.Fatalf("hash failed: %v", err)
	}
	fmt.Println(hash)
}
