// Command admintoken mints an operator JWT for the admin API using the
// service's JWT_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/ppv-access/internal/middleware"
	"github.com/iliyamo/ppv-access/internal/utils"
)

func main() {
	_ = godotenv.Load()

	subject := flag.String("sub", "", "operator id recorded in the audit log (required)")
	role := flag.String("role", middleware.RoleAdmin, "role claim")
	ttl := flag.Duration("ttl", 12*time.Hour, "token lifetime")
	flag.Parse()

	secret := os.Getenv("JWT_SECRET")
	if secret == "" || *subject == "" {
		fmt.Fprintln(os.Stderr, "usage: JWT_SECRET=... admintoken -sub ops@example.com [-ttl 12h]")
		os.Exit(2)
	}
	tok, err := utils.NewAccessToken(secret, *subject, *role, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sign token:", err)
		os.Exit(1)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
