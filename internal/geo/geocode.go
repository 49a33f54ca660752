package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Place is a coarse, human-readable location shown back to the viewer.
type Place struct {
	City    string `json:"city"`
	Country string `json:"country"`
}

// ReverseGeocoder resolves a coordinate to a Place.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, p Point) (*Place, error)
}

// NominatimGeocoder calls a Nominatim-compatible /reverse endpoint.
type NominatimGeocoder struct {
	BaseURL   string
	UserAgent string
	Client    *http.Client
}

// NewNominatimGeocoder returns a geocoder with a short client timeout.
func NewNominatimGeocoder(baseURL, userAgent string, timeout time.Duration) *NominatimGeocoder {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &NominatimGeocoder{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Client:    &http.Client{Timeout: timeout},
	}
}

// Reverse looks up the city and country for p.
func (g *NominatimGeocoder) Reverse(ctx context.Context, p Point) (*Place, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("zoom", "10")
	q.Set("lat", strconv.FormatFloat(p.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(p.Lng, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.BaseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	if g.UserAgent != "" {
		req.Header.Set("User-Agent", g.UserAgent)
	}
	res, err := g.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reverse geocode: status %d", res.StatusCode)
	}

	var body struct {
		Address struct {
			City    string `json:"city"`
			Town    string `json:"town"`
			Village string `json:"village"`
			Country string `json:"country"`
		} `json:"address"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("reverse geocode: decode: %w", err)
	}
	city := body.Address.City
	if city == "" {
		city = body.Address.Town
	}
	if city == "" {
		city = body.Address.Village
	}
	return &Place{City: city, Country: body.Address.Country}, nil
}
