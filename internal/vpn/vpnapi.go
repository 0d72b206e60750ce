package vpn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

const vpnapiBaseURL = "https://vpnapi.io/api"

// VPNAPI queries vpnapi.io, which answers with a security block plus
// network and location records.
type VPNAPI struct {
	key     string
	baseURL string
	client  *http.Client
}

func NewVPNAPI(key string, client *http.Client) *VPNAPI {
	return &VPNAPI{key: key, baseURL: vpnapiBaseURL, client: client}
}

func (p *VPNAPI) Name() string { return "vpnapi" }

func (p *VPNAPI) Check(ctx context.Context, ip string) (models.VPNProviderResult, error) {
	var body struct {
		Security struct {
			VPN   bool `json:"vpn"`
			Proxy bool `json:"proxy"`
			Tor   bool `json:"tor"`
			Relay bool `json:"relay"`
		} `json:"security"`
		Risk struct {
			Score *float64 `json:"score"`
		} `json:"risk"`
		Network struct {
			ASN          string `json:"autonomous_system_number"`
			Organization string `json:"autonomous_system_organization"`
		} `json:"network"`
		Location struct {
			City    string `json:"city"`
			Region  string `json:"region"`
			Country string `json:"country"`
		} `json:"location"`
		Message string `json:"message"`
	}

	u := fmt.Sprintf("%s/%s?key=%s", p.baseURL, url.PathEscape(ip), url.QueryEscape(p.key))
	if err := getJSON(ctx, p.client, u, nil, &body); err != nil {
		return models.VPNProviderResult{}, err
	}

	res := models.VPNProviderResult{
		Provider:     p.Name(),
		IsVPN:        body.Security.VPN,
		IsProxy:      body.Security.Proxy,
		IsTor:        body.Security.Tor,
		IsRelay:      body.Security.Relay,
		FraudScore:   body.Risk.Score,
		Organization: body.Network.Organization,
		ASN:          body.Network.ASN,
		City:         body.Location.City,
		Region:       body.Location.Region,
		Country:      body.Location.Country,
	}
	if body.Message != "" {
		res.Extra = map[string]any{"message": body.Message}
	}
	return res, nil
}
