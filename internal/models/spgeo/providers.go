package spgeo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"github.com/oschwald/geoip2-golang/v2"
)

const ipAPIFields = "status,message,country,countryCode,region,city,lat,lon,timezone,isp"

// IPAPIProvider interroge un service compatible ip-api.com
type IPAPIProvider struct {
	baseURL    string
	httpClient *http.Client
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"region"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
}

func NewIPAPIProvider(baseURL string, timeout time.Duration) *IPAPIProvider {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &IPAPIProvider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *IPAPIProvider) Name() string {
	return SourceAPI
}

func (p *IPAPIProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	reqURL := fmt.Sprintf("%s%s?fields=%s", p.baseURL, url.PathEscape(ip), ipAPIFields)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return Location{}, fmt.Errorf("création requête: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Location{}, fmt.Errorf("requête géolocalisation: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Location{}, fmt.Errorf("géolocalisation: statut HTTP %s", resp.Status)
	}

	var body ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Location{}, fmt.Errorf("décodage réponse: %w", err)
	}
	if body.Status != "success" {
		return Location{}, errStatus(body.Status, body.Message)
	}

	loc := Location{
		City:        body.City,
		Country:     body.Country,
		CountryCode: body.CountryCode,
		Region:      body.Region,
		Timezone:    body.Timezone,
		ISP:         body.ISP,
	}
	// 0 signifie absent dans la réponse
	if body.Lat != 0 || body.Lon != 0 {
		lat, lon := body.Lat, body.Lon
		loc.Latitude = &lat
		loc.Longitude = &lon
	}
	return withDefaults(loc), nil
}

// MMDBProvider lit une base MaxMind GeoLite2/GeoIP2 City locale
type MMDBProvider struct {
	reader *geoip2.Reader
}

func OpenMMDB(path string) (*MMDBProvider, error) {
	reader, err := geoip2.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ouverture base geoip %s: %w", path, err)
	}
	return &MMDBProvider{reader: reader}, nil
}

func (p *MMDBProvider) Name() string {
	return SourceMMDB
}

func (p *MMDBProvider) Lookup(ctx context.Context, ip string) (Location, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return Location{}, fmt.Errorf("adresse invalide %q: %w", ip, err)
	}

	record, err := p.reader.City(addr)
	if err != nil {
		return Location{}, err
	}
	if !record.HasData() {
		return Location{}, errors.New("adresse absente de la base geoip")
	}

	loc := Location{
		City:        record.City.Names.English,
		Country:     record.Country.Names.English,
		CountryCode: record.Country.ISOCode,
		Timezone:    record.Location.TimeZone,
		Latitude:    record.Location.Latitude,
		Longitude:   record.Location.Longitude,
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].ISOCode
	}
	return withDefaults(loc), nil
}

func (p *MMDBProvider) Close() error {
	return p.reader.Close()
}
