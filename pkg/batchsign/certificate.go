package batchsign

import (
	"bytes"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"go.mozilla.org/pkcs7"
	gop12 "software.sslmate.com/src/go-pkcs12"
)

// CertificateInfo describes one certificate found in a certificate file.
type CertificateInfo struct {
	Subject       string
	CommonName    string
	Issuer        string
	Serial        string
	NotBefore     time.Time
	NotAfter      time.Time
	Thumbprint    string // SHA-1, the form signtool's /sha1 expects
	HasPrivateKey bool
}

// IsExpired reports whether the certificate is no longer valid.
func (c CertificateInfo) IsExpired() bool {
	return time.Now().After(c.NotAfter)
}

// LoadCertificateInfo parses a certificate file. name is only used to pick
// the format: .pfx and .p12 are decoded as PKCS#12 with password, PEM data
// is read block by block, anything else is tried as a PKCS#7 bundle (.p7b)
// and then as raw DER.
func LoadCertificateInfo(data []byte, password, name string) ([]CertificateInfo, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pfx", ".p12":
		_, leaf, chain, err := gop12.DecodeChain(data, password)
		if err != nil {
			return nil, fmt.Errorf("failed to decode PFX: %w", err)
		}
		infos := []CertificateInfo{newCertificateInfo(leaf, true)}
		for _, c := range chain {
			infos = append(infos, newCertificateInfo(c, false))
		}
		return infos, nil
	}

	var certs []*x509.Certificate
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("-----BEGIN")) {
		parsed, err := parsePEMCertificates(data)
		if err != nil {
			return nil, err
		}
		certs = parsed
	} else if p7, err := pkcs7.Parse(data); err == nil {
		certs = p7.Certificates
	} else {
		parsed, err := x509.ParseCertificates(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse certificate: %w", err)
		}
		certs = parsed
	}

	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in %s", name)
	}

	infos := make([]CertificateInfo, 0, len(certs))
	for _, c := range certs {
		infos = append(infos, newCertificateInfo(c, false))
	}
	return infos, nil
}

func parsePEMCertificates(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for {
		var block *pem.Block
		block, data = pem.Decode(data)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PEM certificate: %w", err)
		}
		certs = append(certs, cert)
	}
	return certs, nil
}

func newCertificateInfo(cert *x509.Certificate, hasKey bool) CertificateInfo {
	sum := sha1.Sum(cert.Raw)
	return CertificateInfo{
		Subject:       cert.Subject.String(),
		CommonName:    cert.Subject.CommonName,
		Issuer:        cert.Issuer.String(),
		Serial:        cert.SerialNumber.String(),
		NotBefore:     cert.NotBefore,
		NotAfter:      cert.NotAfter,
		Thumbprint:    strings.ToUpper(hex.EncodeToString(sum[:])),
		HasPrivateKey: hasKey,
	}
}

// PrintCertificateInfo writes a human readable listing of infos to w.
func PrintCertificateInfo(infos []CertificateInfo, w io.Writer) {
	fmt.Fprintf(w, "Certificates:   %d\n", len(infos))
	for i, info := range infos {
		fmt.Fprintf(w, "  [%d] %s\n", i+1, info.CommonName)
		fmt.Fprintf(w, "      Subject:    %s\n", info.Subject)
		fmt.Fprintf(w, "      Issuer:     %s\n", info.Issuer)
		fmt.Fprintf(w, "      Serial:     %s\n", info.Serial)
		fmt.Fprintf(w, "      Thumbprint: %s\n", info.Thumbprint)
		fmt.Fprintf(w, "      Valid:      %s - %s\n", info.NotBefore.Format("2006-01-02"), info.NotAfter.Format("2006-01-02"))
		fmt.Fprintf(w, "      Expired:    %v\n", info.IsExpired())
		if info.HasPrivateKey {
			fmt.Fprintf(w, "      Private key present\n")
		}
	}
}

// Preflight inspects the configured certificate files and logs warnings
// for problems signtool is likely to hit on every file. It never fails the
// run: signtool remains the authority on what it accepts.
func Preflight(cfg *Config, fs afero.Fs, log logrus.FieldLogger) {
	infos := preflightFile(fs, log, cfg.CertificateFile, cfg.Password)
	for _, info := range infos {
		if info.HasPrivateKey && info.IsExpired() {
			log.Warnf("Signing certificate %s expired on %s", info.CommonName, info.NotAfter.Format("2006-01-02"))
		}
	}
	if cfg.SubjectName != "" && len(infos) > 0 && !subjectMatches(infos, cfg.SubjectName) {
		log.Warnf("No certificate in %s has a subject containing %q", cfg.CertificateFile, cfg.SubjectName)
	}

	if cfg.AdditionalCertificate != "" {
		preflightFile(fs, log, cfg.AdditionalCertificate, "")
	}
}

func preflightFile(fs afero.Fs, log logrus.FieldLogger, path, password string) []CertificateInfo {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		log.WithError(err).Warnf("Cannot read certificate file %s", path)
		return nil
	}
	infos, err := LoadCertificateInfo(data, password, path)
	if err != nil {
		log.WithError(err).Warnf("Cannot inspect certificate file %s, leaving it to signtool", path)
		return nil
	}
	return infos
}

func subjectMatches(infos []CertificateInfo, subject string) bool {
	subject = strings.ToLower(subject)
	for _, info := range infos {
		if strings.Contains(strings.ToLower(info.Subject), subject) {
			return true
		}
	}
	return false
}
