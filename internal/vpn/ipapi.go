package vpn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

const ipapiBaseURL = "https://ipapi.co"

// IPAPI is the no-credential fallback provider. ipapi.co has no VPN
// intelligence of its own, so the verdict is derived from a keyword
// classification of the organisation/ASN string. It exists so the
// aggregator always has at least one enabled provider.
type IPAPI struct {
	key     string // optional; raises the rate limit when present
	baseURL string
	client  *http.Client
}

func NewIPAPI(key string, client *http.Client) *IPAPI {
	return &IPAPI{key: key, baseURL: ipapiBaseURL, client: client}
}

func (p *IPAPI) Name() string { return "ipapi" }

func (p *IPAPI) Check(ctx context.Context, ip string) (models.VPNProviderResult, error) {
	var body struct {
		Org         string `json:"org"`
		ASN         string `json:"asn"`
		City        string `json:"city"`
		Region      string `json:"region"`
		CountryName string `json:"country_name"`
		CountryCode string `json:"country_code"`
		Error       bool   `json:"error"`
		Reason      string `json:"reason"`
	}

	u := fmt.Sprintf("%s/%s/json/", p.baseURL, url.PathEscape(ip))
	if p.key != "" {
		u += "?key=" + url.QueryEscape(p.key)
	}
	if err := getJSON(ctx, p.client, u, nil, &body); err != nil {
		return models.VPNProviderResult{}, err
	}
	if body.Error {
		return models.VPNProviderResult{}, fmt.Errorf("ipapi: %s", body.Reason)
	}

	hosting := matchesHostingKeyword(body.Org, body.ASN)
	return models.VPNProviderResult{
		Provider:     p.Name(),
		IsVPN:        hosting,
		IsHosting:    hosting,
		Organization: body.Org,
		ASN:          body.ASN,
		City:         body.City,
		Region:       body.Region,
		Country:      body.CountryName,
		Extra:        map[string]any{"classification": "keyword"},
	}, nil
}
