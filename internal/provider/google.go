package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/pizza-search/internal/model"
	"github.com/sells-group/pizza-search/internal/resilience"
)

const (
	googleDefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

	// googleMaxRadiusMeters is the nearby-search API cap.
	googleMaxRadiusMeters = 50000.0

	milesToMeters = 1609.34
)

// GooglePlaces searches the Google Places nearby-search API and normalizes
// results to the canonical schema.
type GooglePlaces struct {
	key     string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// GoogleOptions configures the Google Places adapter.
type GoogleOptions struct {
	Key        string
	BaseURL    string       // defaults to the public API
	HTTPClient *http.Client // defaults to a 15s-timeout client
	RPS        float64      // request rate limit, defaults to 10
}

// NewGooglePlaces creates the Google Places provider adapter.
func NewGooglePlaces(opts GoogleOptions) *GooglePlaces {
	g := &GooglePlaces{
		key:     opts.Key,
		baseURL: opts.BaseURL,
		http:    opts.HTTPClient,
		retry:   resilience.DefaultRetryConfig(),
	}
	if g.baseURL == "" {
		g.baseURL = googleDefaultBaseURL
	}
	if g.http == nil {
		g.http = &http.Client{Timeout: 15 * time.Second}
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 10
	}
	g.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	g.retry.OnRetry = resilience.RetryLogger("google", "nearbysearch")
	return g
}

// Name implements Provider.
func (g *GooglePlaces) Name() string { return string(model.SourceGoogle) }

// googleSearchResponse is the nearby-search payload subset we consume.
type googleSearchResponse struct {
	Status  string        `json:"status"`
	Results []googlePlace `json:"results"`
}

type googlePlace struct {
	PlaceID  string `json:"place_id"`
	Name     string `json:"name"`
	Vicinity string `json:"vicinity"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	FormattedPhoneNumber string   `json:"formatted_phone_number"`
	Website              string   `json:"website"`
	Rating               *float64 `json:"rating"`
	UserRatingsTotal     int      `json:"user_ratings_total"`
	PriceLevel           *int     `json:"price_level"`
	Types                []string `json:"types"`
	BusinessStatus       string   `json:"business_status"`
	OpeningHours         *struct {
		OpenNow *bool `json:"open_now"`
	} `json:"opening_hours"`
}

// Search implements Provider.
func (g *GooglePlaces) Search(ctx context.Context, lat, lng, radiusMiles float64) ([]model.Place, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "google: rate limit wait")
	}

	radiusMeters := radiusMiles * milesToMeters
	if radiusMeters > googleMaxRadiusMeters {
		radiusMeters = googleMaxRadiusMeters
	}

	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", lat, lng))
	params.Set("radius", fmt.Sprintf("%d", int(radiusMeters)))
	params.Set("keyword", "pizza")
	params.Set("type", "restaurant")
	params.Set("key", g.key)
	reqURL := g.baseURL + "/nearbysearch/json?" + params.Encode()

	payload, err := resilience.DoVal(ctx, g.retry, func(ctx context.Context) (*googleSearchResponse, error) {
		return g.fetch(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}

	if payload.Status != "OK" && payload.Status != "ZERO_RESULTS" {
		return nil, eris.Errorf("google: api status %s", payload.Status)
	}

	places := make([]model.Place, 0, len(payload.Results))
	for _, p := range payload.Results {
		places = append(places, normalizeGooglePlace(p))
	}

	zap.L().Debug("google: search complete", zap.Int("results", len(places)))
	return places, nil
}

func (g *GooglePlaces) fetch(ctx context.Context, reqURL string) (*googleSearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("google: unexpected status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var payload googleSearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}
	return &payload, nil
}

// normalizeGooglePlace maps a Google result onto the canonical schema.
// Classification is inferred: "pizza" in the name or a pizza_restaurant type
// marks a dedicated pizzeria; an open business is assumed to deliver since
// the API exposes no direct delivery signal.
func normalizeGooglePlace(p googlePlace) model.Place {
	dedicated := strings.Contains(strings.ToLower(p.Name), "pizza")
	for _, t := range p.Types {
		if t == "pizza_restaurant" {
			dedicated = true
			break
		}
	}

	hasDelivery := true
	if p.OpeningHours != nil && p.OpeningHours.OpenNow != nil && !*p.OpeningHours.OpenNow {
		hasDelivery = false
	}

	return model.Place{
		Source:     model.SourceGoogle,
		ExternalID: p.PlaceID,
		Name:       p.Name,
		Address:    p.Vicinity,
		Coordinates: model.Coordinates{
			Lat: p.Geometry.Location.Lat,
			Lng: p.Geometry.Location.Lng,
		},
		Phone:               p.FormattedPhoneNumber,
		Website:             p.Website,
		IsDedicatedPizzeria: dedicated,
		HasDelivery:         hasDelivery,
		HasPizzaMenu:        true,
		Rating:              p.Rating,
		ReviewCount:         p.UserRatingsTotal,
		PriceLevel:          p.PriceLevel,
		Metadata: map[string]any{
			"types":           p.Types,
			"business_status": p.BusinessStatus,
			"place_id":        p.PlaceID,
		},
	}
}
