package vpn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

const ipqsBaseURL = "https://ipqualityscore.com/api/json/ip"

// IPQualityScore queries ipqualityscore.com, the only backend that
// reports a numeric fraud score next to the boolean verdicts.
type IPQualityScore struct {
	key     string
	baseURL string
	client  *http.Client
}

func NewIPQualityScore(key string, client *http.Client) *IPQualityScore {
	return &IPQualityScore{key: key, baseURL: ipqsBaseURL, client: client}
}

func (p *IPQualityScore) Name() string { return "ipqualityscore" }

func (p *IPQualityScore) Check(ctx context.Context, ip string) (models.VPNProviderResult, error) {
	var body struct {
		Success      bool     `json:"success"`
		Message      string   `json:"message"`
		VPN          bool     `json:"vpn"`
		Proxy        bool     `json:"proxy"`
		Tor          bool     `json:"tor"`
		IsCrawler    bool     `json:"is_crawler"`
		RecentAbuse  bool     `json:"recent_abuse"`
		FraudScore   *float64 `json:"fraud_score"`
		ISP          string   `json:"ISP"`
		Organization string   `json:"organization"`
		ASN          int      `json:"ASN"`
		CountryCode  string   `json:"country_code"`
		City         string   `json:"city"`
	}

	u := fmt.Sprintf("%s/%s/%s", p.baseURL, url.PathEscape(p.key), url.PathEscape(ip))
	if err := getJSON(ctx, p.client, u, nil, &body); err != nil {
		return models.VPNProviderResult{}, err
	}
	if !body.Success {
		return models.VPNProviderResult{}, fmt.Errorf("ipqualityscore: %s", body.Message)
	}

	asn := ""
	if body.ASN > 0 {
		asn = fmt.Sprintf("AS%d", body.ASN)
	}
	return models.VPNProviderResult{
		Provider:     p.Name(),
		IsVPN:        body.VPN,
		IsProxy:      body.Proxy,
		IsTor:        body.Tor,
		FraudScore:   body.FraudScore,
		Organization: body.Organization,
		ISP:          body.ISP,
		ASN:          asn,
		City:         body.City,
		Country:      body.CountryCode,
		Extra: map[string]any{
			"isCrawler":   body.IsCrawler,
			"recentAbuse": body.RecentAbuse,
		},
	}, nil
}
