package estimate

import "strings"

const minCertLength = 5

// ValidateCert trims raw and checks it looks like a PSA cert number.
func ValidateCert(raw string) (string, error) {
	cert := strings.TrimSpace(raw)
	if cert == "" {
		return "", InvalidCert("PSA cert number is empty.")
	}
	for _, r := range cert {
		if r < '0' || r > '9' {
			return "", InvalidCert("PSA cert must be numeric.")
		}
	}
	if len(cert) < minCertLength {
		return "", InvalidCert("PSA cert looks too short.")
	}
	return cert, nil
}
