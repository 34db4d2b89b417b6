package config

import (
	"encoding/json"
	"os"

	"github.com/redinc23/mangu-publishing-site-sub001/internal/flagx"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It is an intermediate DTO used only for reading JSON
// configuration files; after unmarshalling, non-empty fields are copied
// into the runtime Config struct.
type JsonConfig struct {
	EndpointAddrHTTP string `json:"endpoint_addr_http"`
	DatabaseDSN      string `json:"database_dsn"`
	AuthIssuer       string `json:"auth_issuer"`
	AuthJWKSURL      string `json:"auth_jwks_url"`
	AuthClientID     string `json:"auth_client_id"`
	WebhookSecret    string `json:"webhook_secret"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags. If it
// is not set, no JSON file is loaded. If the file cannot be read or contains
// invalid JSON, the function panics. Empty JSON fields leave the current
// Config values untouched, so the file only needs to list overrides.
func parseJson(config *Config) {

	// try flags
	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	if c.EndpointAddrHTTP != "" {
		config.EndpointAddrHTTP = c.EndpointAddrHTTP
	}
	if c.DatabaseDSN != "" {
		config.DatabaseDSN = c.DatabaseDSN
	}
	if c.AuthIssuer != "" {
		config.AuthIssuer = c.AuthIssuer
	}
	if c.AuthJWKSURL != "" {
		config.AuthJWKSURL = c.AuthJWKSURL
	}
	if c.AuthClientID != "" {
		config.AuthClientID = c.AuthClientID
	}
	if c.WebhookSecret != "" {
		config.WebhookSecret = c.WebhookSecret
	}
}
