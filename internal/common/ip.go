package common

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"
)

const ipifyURL = "https://api.ipify.org/"

// OwnExternalIP determina la dirección externa del operador usando
// api.ipify.org. Se usa para acotar la regla de entrada de red al propio
// puesto.
func OwnExternalIP(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ipifyURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "could not determine own external ip")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", errors.Wrap(err, "could not read ipify response")
	}
	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", errors.New("ipify returned an empty response")
	}
	return ip, nil
}
