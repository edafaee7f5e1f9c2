package etcdstore

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// TLSConfig holds the client certificate, key and CA used to reach etcd.
// All three files are PEM encoded and required once Enabled is set.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
	CAFile   string `yaml:"ca_file" json:"ca_file"`
}

// validate reports the first missing file of an enabled config.
func (c *TLSConfig) validate() error {
	switch {
	case c.CertFile == "":
		return errors.New("etcd TLS: cert_file is required")
	case c.KeyFile == "":
		return errors.New("etcd TLS: key_file is required")
	case c.CAFile == "":
		return errors.New("etcd TLS: ca_file is required")
	}
	return nil
}

// clientConfig builds the tls.Config for the etcd client. It returns nil
// when c is nil or disabled.
func (c *TLSConfig) clientConfig() (*tls.Config, error) {
	if c == nil || !c.Enabled {
		return nil, nil
	}
	if err := c.validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("etcd TLS: load client key pair: %w", err)
	}

	pem, err := os.ReadFile(c.CAFile)
	if err != nil {
		return nil, fmt.Errorf("etcd TLS: read CA %s: %w", c.CAFile, err)
	}
	roots := x509.NewCertPool()
	if !roots.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("etcd TLS: no certificates found in %s", c.CAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      roots,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
