// Command admintoken mints an admin session token for the relay's admin API.
// It reads the same configuration as the server so the signing secret
// matches.
//
//	admintoken -c relay.json -email ops@example.com -ttl 12h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/casanet/remote-server/internal/flagx"
	"github.com/casanet/remote-server/internal/server/auth"
	"github.com/casanet/remote-server/internal/server/config"
)

func main() {
	cfg := config.LoadConfig()

	fs := flag.NewFlagSet("admintoken", flag.ExitOnError)
	email := fs.String("email", "", "admin email")
	ttl := fs.Duration("ttl", 24*time.Hour, "token validity")
	_ = flagx.Parse(fs, os.Args[1:])

	if *email == "" {
		log.Fatal("-email is required")
	}

	token, err := auth.GenerateAdminToken(*email, []byte(cfg.SecretKey), *ttl)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Println(token)
}
