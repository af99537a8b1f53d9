package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays Config fields from environment variables. Unset
// variables leave the existing values in place.
//
// Recognized variables:
//
//	VEILPAY_HTTP_ADDR          HTTP bind address
//	VEILPAY_DATABASE_DSN       PostgreSQL DSN
//	VEILPAY_SECRET_KEY         JWT HMAC secret
//	VEILPAY_TOKEN_VALIDITY     access token validity (Go duration, e.g. "15m")
//	VEILPAY_CHALLENGE_TTL      challenge nonce validity (Go duration)
//	VEILPAY_MASTER_KEY         base64 master key (required, no default)
//	VEILPAY_WALLET_SALT        wallet hash salt
//	VEILPAY_RELAY_ENDPOINT     transfer relay base URL
//	VEILPAY_RELAY_TOKEN        transfer relay auth token
//	VEILPAY_CHAIN_RPC          chain RPC endpoint
//	VEILPAY_TIMING_PRESET      batch timing preset name
//	VEILPAY_RATE_LIMIT         requests per window
//	VEILPAY_RATE_WINDOW        rate limit window (Go duration)
//	VEILPAY_S3_USER            S3 root user
//	VEILPAY_S3_PASSWORD        S3 root password
//	VEILPAY_S3_BUCKET          S3 bucket
//	VEILPAY_S3_REGION          S3 region
//	VEILPAY_S3_ENDPOINT        S3 base endpoint
func parseEnv(config *Config) error {
	setString := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}
	setDuration := func(name string, dst *time.Duration) error {
		v, ok := os.LookupEnv(name)
		if !ok {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = d
		return nil
	}

	setString("VEILPAY_HTTP_ADDR", &config.EndpointAddrHTTP)
	setString("VEILPAY_DATABASE_DSN", &config.DatabaseDSN)
	setString("VEILPAY_SECRET_KEY", &config.SecretKey)
	setString("VEILPAY_WALLET_SALT", &config.WalletSalt)
	setString("VEILPAY_RELAY_ENDPOINT", &config.RelayEndpoint)
	setString("VEILPAY_RELAY_TOKEN", &config.RelayToken)
	setString("VEILPAY_CHAIN_RPC", &config.ChainRPCEndpoint)
	setString("VEILPAY_TIMING_PRESET", &config.TimingPreset)
	setString("VEILPAY_S3_USER", &config.S3RootUser)
	setString("VEILPAY_S3_PASSWORD", &config.S3RootPassword)
	setString("VEILPAY_S3_BUCKET", &config.S3Bucket)
	setString("VEILPAY_S3_REGION", &config.S3Region)
	setString("VEILPAY_S3_ENDPOINT", &config.S3BaseEndpoint)

	if err := setDuration("VEILPAY_TOKEN_VALIDITY", &config.AccessTokenValidityDuration); err != nil {
		return err
	}
	if err := setDuration("VEILPAY_CHALLENGE_TTL", &config.ChallengeTTL); err != nil {
		return err
	}
	if err := setDuration("VEILPAY_RATE_WINDOW", &config.RateLimitWindow); err != nil {
		return err
	}

	if v, ok := os.LookupEnv("VEILPAY_RATE_LIMIT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		config.RateLimitRequests = n
	}

	if v, ok := os.LookupEnv("VEILPAY_MASTER_KEY"); ok {
		key, err := decodeMasterKey(v)
		if err != nil {
			return err
		}
		config.MasterKey = key
	}

	return nil
}
