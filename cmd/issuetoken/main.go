// Command issuetoken mints a bearer token for local development. Token
// issuance belongs to the account service in production; this signs with the
// same JWT_SECRET the portfolio service verifies with.
//
//	JWT_SECRET=... issuetoken -sub user-42 -ttl 24h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/nivesha/portfolio/internal/auth"
)

func main() {
	sub := flag.String("sub", "", "subject (user ID) to embed in the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "usage: issuetoken -sub <user-id> [-ttl 24h]")
		os.Exit(2)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		slog.Error("JWT_SECRET must be set")
		os.Exit(1)
	}

	v, err := auth.NewVerifier([]byte(secret))
	if err != nil {
		slog.Error("invalid JWT_SECRET", "err", err)
		os.Exit(1)
	}

	token, err := v.Issue(*sub, *ttl)
	if err != nil {
		slog.Error("sign token failed", "err", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
