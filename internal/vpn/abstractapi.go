package vpn

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rawblock/geoshield-engine/pkg/models"
)

const abstractBaseURL = "https://ipgeolocation.abstractapi.com/v1/"

// AbstractAPI queries abstractapi.com's IP geolocation endpoint, which
// carries a single is_vpn security bit plus connection metadata.
type AbstractAPI struct {
	key     string
	baseURL string
	client  *http.Client
}

func NewAbstractAPI(key string, client *http.Client) *AbstractAPI {
	return &AbstractAPI{key: key, baseURL: abstractBaseURL, client: client}
}

func (p *AbstractAPI) Name() string { return "abstractapi" }

func (p *AbstractAPI) Check(ctx context.Context, ip string) (models.VPNProviderResult, error) {
	var body struct {
		Security struct {
			IsVPN bool `json:"is_vpn"`
		} `json:"security"`
		Connection struct {
			ASN              int    `json:"autonomous_system_number"`
			ASOrganization   string `json:"autonomous_system_organization"`
			ISPName          string `json:"isp_name"`
			OrganizationName string `json:"organization_name"`
		} `json:"connection"`
		City        string `json:"city"`
		Region      string `json:"region"`
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	}

	u := fmt.Sprintf("%s?api_key=%s&ip_address=%s",
		p.baseURL, url.QueryEscape(p.key), url.QueryEscape(ip))
	if err := getJSON(ctx, p.client, u, nil, &body); err != nil {
		return models.VPNProviderResult{}, err
	}

	org := body.Connection.OrganizationName
	if org == "" {
		org = body.Connection.ASOrganization
	}
	asn := ""
	if body.Connection.ASN > 0 {
		asn = fmt.Sprintf("AS%d", body.Connection.ASN)
	}
	return models.VPNProviderResult{
		Provider:     p.Name(),
		IsVPN:        body.Security.IsVPN,
		IsHosting:    matchesHostingKeyword(org, body.Connection.ASOrganization),
		Organization: org,
		ISP:          body.Connection.ISPName,
		ASN:          asn,
		City:         body.City,
		Region:       body.Region,
		Country:      body.Country,
	}, nil
}
