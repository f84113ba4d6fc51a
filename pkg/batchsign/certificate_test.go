package batchsign

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/aluedeke/go-batchsign/pkg/logger"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
	gop12 "software.sslmate.com/src/go-pkcs12"
)

func newTestCertificate(t *testing.T, cn string, notAfter time.Time) (*x509.Certificate, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(4242),
		Subject:      pkix.Name{CommonName: cn, Organization: []string{"Example Corp"}},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     notAfter,
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	return cert, key
}

func TestLoadCertificateInfoPFX(t *testing.T) {
	cert, key := newTestCertificate(t, "Example Code Signing", time.Now().Add(24*time.Hour))
	pfx, err := gop12.Modern.Encode(key, cert, nil, "secret")
	require.NoError(t, err)

	infos, err := LoadCertificateInfo(pfx, "secret", "cert.PFX")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Example Code Signing", infos[0].CommonName)
	assert.Equal(t, "4242", infos[0].Serial)
	assert.True(t, infos[0].HasPrivateKey)
	assert.False(t, infos[0].IsExpired())
	assert.Len(t, infos[0].Thumbprint, 40)

	_, err = LoadCertificateInfo(pfx, "wrong", "cert.pfx")
	assert.Error(t, err)
}

func TestLoadCertificateInfoPKCS7(t *testing.T) {
	cert, _ := newTestCertificate(t, "Cross Certificate", time.Now().Add(24*time.Hour))
	p7b, err := pkcs7.DegenerateCertificate(cert.Raw)
	require.NoError(t, err)

	infos, err := LoadCertificateInfo(p7b, "", "cross.p7b")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "Cross Certificate", infos[0].CommonName)
	assert.False(t, infos[0].HasPrivateKey)
}

func TestLoadCertificateInfoPEMAndDER(t *testing.T) {
	cert, _ := newTestCertificate(t, "PEM Certificate", time.Now().Add(24*time.Hour))
	pemData := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})

	infos, err := LoadCertificateInfo(pemData, "", "cross.cer")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "PEM Certificate", infos[0].CommonName)

	infos, err = LoadCertificateInfo(cert.Raw, "", "cross.cer")
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, infos[0].Thumbprint, strings.ToUpper(infos[0].Thumbprint))
}

func TestLoadCertificateInfoGarbage(t *testing.T) {
	_, err := LoadCertificateInfo([]byte("not a certificate"), "", "cross.cer")
	assert.Error(t, err)
}

func TestPrintCertificateInfo(t *testing.T) {
	cert, _ := newTestCertificate(t, "Example Code Signing", time.Now().Add(24*time.Hour))
	var buf bytes.Buffer

	PrintCertificateInfo([]CertificateInfo{newCertificateInfo(cert, true)}, &buf)

	out := buf.String()
	assert.Contains(t, out, "Certificates:   1")
	assert.Contains(t, out, "[1] Example Code Signing")
	assert.Contains(t, out, "Private key present")
}

func TestPreflightWarnings(t *testing.T) {
	cert, key := newTestCertificate(t, "Expired Signer", time.Now().Add(-time.Minute))
	pfx, err := gop12.Modern.Encode(key, cert, nil, "hunter2")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/certs/cert.pfx", pfx, 0o600))

	cfg := testConfig()
	cfg.SubjectName = "Someone Else"
	cfg.AdditionalCertificate = "/certs/missing.cer"

	var buf bytes.Buffer
	Preflight(cfg, fs, logger.New(&buf, logrus.InfoLevel))

	out := buf.String()
	assert.Contains(t, out, "Signing certificate Expired Signer expired")
	assert.Contains(t, out, "has a subject containing")
	assert.Contains(t, out, "Cannot read certificate file /certs/missing.cer")
	assert.NotContains(t, out, "hunter2")
}

func TestPreflightQuietForGoodCertificate(t *testing.T) {
	cert, key := newTestCertificate(t, "Example Code Signing", time.Now().Add(24*time.Hour))
	pfx, err := gop12.Modern.Encode(key, cert, nil, "hunter2")
	require.NoError(t, err)

	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/certs/cert.pfx", pfx, 0o600))

	cfg := testConfig()
	cfg.SubjectName = "example code"

	var buf bytes.Buffer
	Preflight(cfg, fs, logger.New(&buf, logrus.InfoLevel))
	assert.Empty(t, buf.String())
}
