package certs

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"net"
	"sync"
	"time"
)

const leafValidity = 365 * 24 * time.Hour

// Issuer signs leaf certificates for intercepted hosts and caches them.
type Issuer struct {
	ca    *Authority
	cache sync.Map // host -> *tls.Certificate
}

// NewIssuer returns an Issuer signing with ca.
func NewIssuer(ca *Authority) *Issuer {
	return &Issuer{ca: ca}
}

// Certificate returns the leaf for host, issuing it on first use.
func (i *Issuer) Certificate(host string) (*tls.Certificate, error) {
	if cert, ok := i.cache.Load(host); ok {
		return cert.(*tls.Certificate), nil
	}

	cert, err := i.issue(host)
	if err != nil {
		return nil, err
	}
	actual, _ := i.cache.LoadOrStore(host, cert)
	return actual.(*tls.Certificate), nil
}

func (i *Issuer) issue(host string) (*tls.Certificate, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate key for %s: %w", host, err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: host},
		NotBefore:    now,
		NotAfter:     now.Add(leafValidity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}

	if ip := net.ParseIP(host); ip != nil {
		template.IPAddresses = []net.IP{ip}
	} else {
		template.DNSNames = []string{host}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, i.ca.Cert, &key.PublicKey, i.ca.Key)
	if err != nil {
		return nil, fmt.Errorf("sign certificate for %s: %w", host, err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{der, i.ca.Cert.Raw},
		PrivateKey:  key,
	}, nil
}
