// Command issue-token mints a JWT accepted by the reservation API, for
// operators and local testing.
//
//	issue-token -sub staff-7 -role STAFF -ttl 8h
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/homestay-reservation/internal/middleware"
	"github.com/iliyamo/homestay-reservation/internal/utils"
)

func main() {
	_ = godotenv.Load()

	sub := flag.String("sub", "", "subject (user id) to put in the token")
	role := flag.String("role", middleware.RoleCustomer, "CUSTOMER or STAFF")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))
	r := strings.ToUpper(*role)
	if *sub == "" || (r != middleware.RoleCustomer && r != middleware.RoleStaff) {
		log.Error("usage: issue-token -sub <id> -role CUSTOMER|STAFF [-ttl 1h]")
		os.Exit(2)
	}
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Error("missing required env var", "key", "JWT_SECRET")
		os.Exit(1)
	}
	tok, err := utils.NewAccessToken(secret, *sub, r, *ttl)
	if err != nil {
		log.Error("sign token", "error", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	log.Info("token issued", "sub", *sub, "role", r, "expires_at", tok.Exp.Format(time.RFC3339))
}
