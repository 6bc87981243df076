package security

import (
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"
)

// CertificatePinner rejects TLS peers whose chain carries none of the pinned
// SPKI hashes
type CertificatePinner struct {
	pins map[string]struct{}
}

// NewCertificatePinner builds a pinner from hex encoded SHA-256 SPKI hashes
func NewCertificatePinner(hashes []string) (*CertificatePinner, error) {
	if len(hashes) == 0 {
		return nil, errors.New("at least one certificate pin is required")
	}

	cp := &CertificatePinner{pins: make(map[string]struct{}, len(hashes))}
	for _, h := range hashes {
		if err := cp.AddPin(h); err != nil {
			return nil, err
		}
	}
	return cp, nil
}

// AddPin adds one SPKI hash
func (cp *CertificatePinner) AddPin(certHash string) error {
	certHash = strings.ToLower(strings.TrimSpace(certHash))
	if len(certHash) != 64 {
		return errors.New("certificate hash must be 64 characters (SHA-256)")
	}
	if _, err := hex.DecodeString(certHash); err != nil {
		return fmt.Errorf("certificate hash must be valid hex: %w", err)
	}
	cp.pins[certHash] = struct{}{}
	return nil
}

// VerifyPeerCertificate is installed as tls.Config.VerifyPeerCertificate.
// Normal chain verification has already succeeded when it runs.
func (cp *CertificatePinner) VerifyPeerCertificate(_ [][]byte, verifiedChains [][]*x509.Certificate) error {
	if len(verifiedChains) == 0 {
		return errors.New("no verified certificate chains")
	}

	for _, chain := range verifiedChains {
		for _, cert := range chain {
			if _, ok := cp.pins[SPKIHash(cert)]; ok {
				return nil
			}
		}
	}

	leaf := verifiedChains[0][0]
	hostname := leaf.Subject.CommonName
	if len(leaf.DNSNames) > 0 {
		hostname = leaf.DNSNames[0]
	}
	return fmt.Errorf("certificate pin verification failed for hostname: %s", hostname)
}

// SPKIHash returns the hex SHA-256 of the certificate's Subject Public Key Info
func SPKIHash(cert *x509.Certificate) string {
	hash := sha256.Sum256(cert.RawSubjectPublicKeyInfo)
	return hex.EncodeToString(hash[:])
}

// ClientConfig bounds an outbound HTTP client
type ClientConfig struct {
	// ConnectTimeout covers TCP dial and TLS handshake.
	ConnectTimeout time.Duration
	// ReadTimeout covers waiting for the response headers.
	ReadTimeout time.Duration
	// PinnedKeys optionally restricts TLS peers to these SPKI hashes.
	PinnedKeys []string
	// RootCAs overrides the system pool when set.
	RootCAs *x509.CertPool
}

// NewHTTPClient returns a client whose every request is bounded by the
// connect and read timeouts. The overall request deadline is their sum.
func NewHTTPClient(cfg ClientConfig) (*http.Client, error) {
	if cfg.ConnectTimeout <= 0 || cfg.ReadTimeout <= 0 {
		return nil, fmt.Errorf("timeouts must be positive: connect=%s read=%s", cfg.ConnectTimeout, cfg.ReadTimeout)
	}

	tlsConfig := &tls.Config{
		MinVersion: tls.VersionTLS12,
		RootCAs:    cfg.RootCAs,
	}
	if len(cfg.PinnedKeys) > 0 {
		pinner, err := NewCertificatePinner(cfg.PinnedKeys)
		if err != nil {
			return nil, err
		}
		tlsConfig.VerifyPeerCertificate = pinner.VerifyPeerCertificate
	}

	dialer := &net.Dialer{
		Timeout:   cfg.ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		TLSClientConfig:       tlsConfig,
		TLSHandshakeTimeout:   cfg.ConnectTimeout,
		ResponseHeaderTimeout: cfg.ReadTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   cfg.ConnectTimeout + cfg.ReadTimeout,
	}, nil
}
