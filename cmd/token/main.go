// Command token mints an actor token for local development, e.g.
//
//	AUTH_JWT_SECRET=dev go run ./cmd/token -user emp-1 -company acme
//
// Pass the output as a Bearer token or set it as the access_token cookie.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/OpenNSW/enrollment/internal/auth"
)

func main() {
	var (
		user    = flag.String("user", "", "user ID the token is issued to (required)")
		email   = flag.String("email", "", "email address of the user")
		company = flag.String("company", "", "company code used for policy limits")
		ttl     = flag.Duration("ttl", 24*time.Hour, "token lifetime")
		secret  = flag.String("secret", os.Getenv("AUTH_JWT_SECRET"), "signing secret (defaults to AUTH_JWT_SECRET)")
	)
	flag.Parse()

	if *user == "" {
		flag.Usage()
		os.Exit(2)
	}

	token, err := auth.IssueToken(*secret, auth.Actor{ID: *user, Email: *email, Company: *company}, *ttl)
	if err != nil {
		log.Fatalf("failed to issue token: %v", err)
	}
	fmt.Println(token)
}
