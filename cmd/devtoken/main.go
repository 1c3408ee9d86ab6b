package main

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"promoreel/internal/middleware"
)

func main() {
	var (
		subFlag    string
		localeFlag string
		ttlFlag    time.Duration
	)
	flag.StringVar(&subFlag, "sub", "", "user ID to embed in the token (random UUID when empty)")
	flag.StringVar(&localeFlag, "locale", "", "preferred locale claim")
	flag.DurationVar(&ttlFlag, "ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	secret := strings.TrimSpace(os.Getenv("JWT_SECRET"))
	if secret == "" {
		fmt.Fprintln(os.Stderr, "JWT_SECRET is required")
		os.Exit(1)
	}

	sub := strings.TrimSpace(subFlag)
	if sub == "" {
		sub = uuid.NewString()
	} else if _, err := uuid.Parse(sub); err != nil {
		fmt.Fprintf(os.Stderr, "invalid -sub %q: must be a UUID\n", sub)
		os.Exit(1)
	}
	if ttlFlag <= 0 {
		fmt.Fprintln(os.Stderr, "-ttl must be positive")
		os.Exit(1)
	}

	token, err := middleware.SignJWT(secret, middleware.TokenClaims{
		Sub:    sub,
		Locale: strings.ToLower(strings.TrimSpace(localeFlag)),
		Exp:    time.Now().Add(ttlFlag).Unix(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "sign token: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
