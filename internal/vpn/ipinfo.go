package vpn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

const ipinfoBaseURL = "https://ipinfo.io"

// IPInfo queries ipinfo.io. The privacy block requires a paid token, so
// this provider is only registered when IPINFO_TOKEN is configured.
type IPInfo struct {
	token   string
	baseURL string
	client  *http.Client
}

func NewIPInfo(token string, client *http.Client) *IPInfo {
	return &IPInfo{token: token, baseURL: ipinfoBaseURL, client: client}
}

func (p *IPInfo) Name() string { return "ipinfo" }

func (p *IPInfo) Check(ctx context.Context, ip string) (models.VPNProviderResult, error) {
	var body struct {
		Privacy struct {
			VPN     bool   `json:"vpn"`
			Proxy   bool   `json:"proxy"`
			Tor     bool   `json:"tor"`
			Relay   bool   `json:"relay"`
			Hosting bool   `json:"hosting"`
			Service string `json:"service"`
		} `json:"privacy"`
		Org     string `json:"org"`
		ASN     string `json:"asn"`
		City    string `json:"city"`
		Region  string `json:"region"`
		Country string `json:"country"`
	}

	u := fmt.Sprintf("%s/%s?token=%s", p.baseURL, url.PathEscape(ip), url.QueryEscape(p.token))
	if err := getJSON(ctx, p.client, u, nil, &body); err != nil {
		return models.VPNProviderResult{}, err
	}

	res := models.VPNProviderResult{
		Provider:     p.Name(),
		IsVPN:        body.Privacy.VPN,
		IsProxy:      body.Privacy.Proxy,
		IsTor:        body.Privacy.Tor,
		IsRelay:      body.Privacy.Relay,
		IsHosting:    body.Privacy.Hosting,
		Organization: body.Org,
		ASN:          body.ASN,
		City:         body.City,
		Region:       body.Region,
		Country:      body.Country,
	}
	if body.Privacy.Service != "" {
		res.Extra = map[string]any{"service": body.Privacy.Service}
	}
	return res, nil
}
