package vpn

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

// Provider is one IP-reputation backend. Adapters normalise whatever the
// backend answers into a VPNProviderResult; a non-nil error means the
// call itself failed and the result must be counted as errored.
type Provider interface {
	Name() string
	Check(ctx context.Context, ip string) (models.VPNProviderResult, error)
}

// hostingKeywords classify an organisation/ASN string as
// VPN/proxy/datacenter infrastructure when no richer signal exists.
// Commercial VPN exits overwhelmingly sit in hosting ranges, so this is a
// usable last-resort heuristic rather than proof.
var hostingKeywords = []string{"vpn", "proxy", "hosting", "datacenter", "cloud", "server"}

// matchesHostingKeyword reports whether any hosting keyword appears in
// the given organisation or ASN description.
func matchesHostingKeyword(values ...string) bool {
	for _, v := range values {
		lower := strings.ToLower(v)
		for _, kw := range hostingKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}

// getJSON performs a GET and decodes the JSON body into out. HTTP status
// >= 400 is an error, as is an undecodable body.
func getJSON(ctx context.Context, client *http.Client, url string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
