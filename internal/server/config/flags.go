package config

import (
	"flag"
	"os"
	"time"

	"github.com/casanet/remote-server/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-k string   local server key salt
//	-s string   JWT HMAC secret key
//	-w int      notification hold window, minutes
//	-m string   SMTP host
//	-mu string  SMTP user
//	-mp string  SMTP password
//	-n string   NATS URL
//	-u string   S3 root user
//	-p string   S3 root password
//	-b string   S3 bucket name
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//
// Notes:
//   - only the flags defined here are parsed (flagx.Parse), so the config
//     path and cmd/admintoken flags on the same command line are ignored.
//   - The hold window is given in minutes, like the rest of the deployment
//     tooling expects.
func parseFlags(config *Config) {

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.KeySalt, "k", config.KeySalt, "local server key salt")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	notificationWindow := fs.Int("w", int(config.NotificationWindow.Minutes()), "notification hold window (in minutes)")

	fs.StringVar(&config.SMTPHost, "m", config.SMTPHost, "SMTP host")
	fs.StringVar(&config.SMTPUsername, "mu", config.SMTPUsername, "SMTP user")
	fs.StringVar(&config.SMTPPassword, "mp", config.SMTPPassword, "SMTP password")
	fs.StringVar(&config.NATSURL, "n", config.NATSURL, "NATS URL")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")

	if err := flagx.Parse(fs, os.Args[1:]); err != nil {
		panic(err)
	}

	// only an explicit -w overrides, so sub-minute windows from JSON survive
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "w" {
			config.NotificationWindow = time.Duration(*notificationWindow) * time.Minute
		}
	})
}
