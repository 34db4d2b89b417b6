package config

import (
	"flag"
	"os"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-i string   trusted token issuer
//	-k string   JWKS URL of the issuer's public-key set
//	-l string   registered OAuth client id
//	-w string   webhook signing secret
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	// Filter args to include only the flags handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-d", "-i", "-k", "-l", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.AuthIssuer, "i", config.AuthIssuer, "trusted token issuer")
	fs.StringVar(&config.AuthJWKSURL, "k", config.AuthJWKSURL, "JWKS URL")
	fs.StringVar(&config.AuthClientID, "l", config.AuthClientID, "registered client id")
	fs.StringVar(&config.WebhookSecret, "w", config.WebhookSecret, "webhook signing secret")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
