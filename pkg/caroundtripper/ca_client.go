package caroundtripper

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
)

var _ http.RoundTripper = (*Client)(nil)

type Client struct {
	transport *http.Transport
}

func (c Client) RoundTrip(request *http.Request) (*http.Response, error) {
	return c.transport.RoundTrip(request)
}

// New creates a http.RoundTripper that only trusts the CA certificates
// found in the PEM file at caPath.
func New(caPath string) (*Client, error) {
	caBytes, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	certPool, err := parsePool(caBytes)
	if err != nil {
		return nil, err
	}

	t := http.Transport{
		TLSClientConfig: &tls.Config{
			RootCAs: certPool,
		},
		ForceAttemptHTTP2: true,
	}

	return &Client{
		transport: &t,
	}, nil
}

func parsePool(caBytes []byte) (*x509.CertPool, error) {
	certPool := x509.NewCertPool()
	count := 0
	for {
		var block *pem.Block
		block, caBytes = pem.Decode(caBytes)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("invalid pem block type %s, expected CERTIFICATE", block.Type)
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("unable to parse certificate: %v", err)
		}
		certPool.AddCert(cert)
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("no certificate found")
	}
	return certPool, nil
}
