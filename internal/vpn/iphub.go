package vpn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

const iphubBaseURL = "http://v2.api.iphub.info/ip"

// IPHub queries iphub.info. The backend answers with a block level:
// 0 = residential, 1 = non-residential (hosting/VPN), 2 = mixed. Block
// level >= 1 is treated as a VPN detection.
type IPHub struct {
	key     string
	baseURL string
	client  *http.Client
}

func NewIPHub(key string, client *http.Client) *IPHub {
	return &IPHub{key: key, baseURL: iphubBaseURL, client: client}
}

func (p *IPHub) Name() string { return "iphub" }

func (p *IPHub) Check(ctx context.Context, ip string) (models.VPNProviderResult, error) {
	var body struct {
		IP          string `json:"ip"`
		Block       int    `json:"block"`
		ISP         string `json:"isp"`
		ASN         int    `json:"asn"`
		Hostname    string `json:"hostname"`
		CountryCode string `json:"countryCode"`
		CountryName string `json:"countryName"`
	}

	u := fmt.Sprintf("%s/%s", p.baseURL, url.PathEscape(ip))
	header := http.Header{"X-Key": []string{p.key}}
	if err := getJSON(ctx, p.client, u, header, &body); err != nil {
		return models.VPNProviderResult{}, err
	}

	asn := ""
	if body.ASN > 0 {
		asn = fmt.Sprintf("AS%d", body.ASN)
	}
	return models.VPNProviderResult{
		Provider:     p.Name(),
		IsVPN:        body.Block >= 1,
		IsHosting:    body.Block == 1,
		ISP:          body.ISP,
		Organization: body.ISP,
		ASN:          asn,
		Country:      body.CountryName,
		Extra: map[string]any{
			"block":    body.Block,
			"hostname": body.Hostname,
		},
	}, nil
}
