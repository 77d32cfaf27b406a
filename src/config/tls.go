package config

import (
	"crypto/tls"
	"fmt"
)

// LoadTLS builds a TLS config from PEM cert chain and private key paths.
// PKCS8, RSA and EC keys are all accepted.
func LoadTLS(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
