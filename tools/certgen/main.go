// Package main generates a development Certificate Authority (CA) and a server
// certificate for ProjectShelf, writing them under the "certs" directory.
// An existing CA in the output directory is reused.
//
// The server picks the result up with TLS_CERT=certs/server.crt and
// TLS_KEY=certs/server.key.
package main

import (
	"crypto"
	"crypto/x509"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/atinyakov/ProjectShelf/internal/certgen"
)

const caCommonName = "ProjectShelf CA"

func main() {
	dir := flag.String("out", "certs", "output directory")
	hosts := flag.String("hosts", "localhost,127.0.0.1", "comma-separated server host names and IPs")
	flag.Parse()

	if err := run(*dir, splitHosts(*hosts)); err != nil {
		fmt.Fprintln(os.Stderr, "certgen:", err)
		os.Exit(1)
	}
	fmt.Printf("Certificates generated into ./%s\n", *dir)
}

func splitHosts(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// run ensures dir holds ca.crt/ca.key and writes a fresh server.crt/server.key.
func run(dir string, hosts []string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}

	caCert, caKey, err := loadOrCreateCA(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	if err != nil {
		return err
	}

	certPEM, keyPEM, err := certgen.GenerateServerCertificate(hosts, caCert, caKey)
	if err != nil {
		return err
	}
	return certgen.WritePair(filepath.Join(dir, "server.crt"), filepath.Join(dir, "server.key"), certPEM, keyPEM)
}

func loadOrCreateCA(certPath, keyPath string) (*x509.Certificate, crypto.Signer, error) {
	caCert, caKey, err := certgen.LoadCACredentials(certPath, keyPath)
	if err == nil {
		return caCert, caKey, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, nil, err
	}

	caCert, priv, certPEM, keyPEM, err := certgen.GenerateCA(caCommonName)
	if err != nil {
		return nil, nil, err
	}
	if err := certgen.WritePair(certPath, keyPath, certPEM, keyPEM); err != nil {
		return nil, nil, err
	}
	return caCert, priv, nil
}
