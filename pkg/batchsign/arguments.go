package batchsign

import (
	"strings"
)

// BuildArguments returns the signtool argument vector for signing target.
//
// The order is fixed: sign, description, URL, certificate and password,
// optional flags, exactly one timestamp flag, digests, additional
// certificate and finally the target. Values are separate entries so no
// shell ever interprets them.
func BuildArguments(cfg *Config, target string) []string {
	args := []string{
		"sign",
		"/d", cfg.Description,
		"/du", cfg.URL,
		"/f", cfg.CertificateFile,
		"/p", cfg.Password,
	}

	if cfg.AppendSignature {
		args = append(args, "/as")
	}
	if cfg.Verbose {
		args = append(args, "/v")
	}
	if cfg.SubjectName != "" {
		args = append(args, "/n", cfg.SubjectName)
	}

	if cfg.UsesRFC3161() {
		args = append(args, "/tr", cfg.RFC3161TimestampServer)
	} else {
		args = append(args, "/t", cfg.TimestampServer)
	}

	if cfg.FileDigest != "" {
		args = append(args, "/fd", cfg.FileDigest)
	}
	if cfg.TimestampDigest != "" {
		args = append(args, "/td", cfg.TimestampDigest)
	}
	if cfg.AdditionalCertificate != "" {
		args = append(args, "/ac", cfg.AdditionalCertificate)
	}

	return append(args, target)
}

// RenderCommandLine flattens an invocation into a single line for
// diagnostics. Flags and the subcommand are left bare, every value is
// double quoted. The result contains the certificate password.
func RenderCommandLine(path string, args []string) string {
	var b strings.Builder
	b.WriteString(quote(path))
	for i, arg := range args {
		b.WriteByte(' ')
		if i == 0 || isFlag(arg) {
			b.WriteString(arg)
		} else {
			b.WriteString(quote(arg))
		}
	}
	return b.String()
}

func isFlag(arg string) bool {
	switch arg {
	case "/d", "/du", "/f", "/p", "/as", "/v", "/n", "/t", "/tr", "/fd", "/td", "/ac":
		return true
	}
	return false
}

func quote(s string) string {
	return `"` + s + `"`
}
