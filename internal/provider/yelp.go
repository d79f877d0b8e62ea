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
	yelpDefaultBaseURL = "https://api.yelp.com/v3"

	// yelpMaxRadiusMeters is the business-search API cap.
	yelpMaxRadiusMeters = 40000.0
)

// Yelp searches the Yelp Fusion business-search API and normalizes results
// to the canonical schema.
type Yelp struct {
	key     string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	retry   resilience.RetryConfig
}

// YelpOptions configures the Yelp adapter.
type YelpOptions struct {
	Key        string
	BaseURL    string
	HTTPClient *http.Client
	RPS        float64
}

// NewYelp creates the Yelp provider adapter.
func NewYelp(opts YelpOptions) *Yelp {
	y := &Yelp{
		key:     opts.Key,
		baseURL: opts.BaseURL,
		http:    opts.HTTPClient,
		retry:   resilience.DefaultRetryConfig(),
	}
	if y.baseURL == "" {
		y.baseURL = yelpDefaultBaseURL
	}
	if y.http == nil {
		y.http = &http.Client{Timeout: 15 * time.Second}
	}
	rps := opts.RPS
	if rps <= 0 {
		rps = 10
	}
	y.limiter = rate.NewLimiter(rate.Limit(rps), int(rps))
	y.retry.OnRetry = resilience.RetryLogger("yelp", "business_search")
	return y
}

// Name implements Provider.
func (y *Yelp) Name() string { return string(model.SourceYelp) }

type yelpSearchResponse struct {
	Businesses []yelpBusiness `json:"businesses"`
}

type yelpBusiness struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Phone        string   `json:"phone"`
	DisplayPhone string   `json:"display_phone"`
	URL          string   `json:"url"`
	ImageURL     string   `json:"image_url"`
	Rating       *float64 `json:"rating"`
	ReviewCount  int      `json:"review_count"`
	Price        string   `json:"price"`
	IsClosed     bool     `json:"is_closed"`
	Coordinates  struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"coordinates"`
	Location struct {
		Address1 string `json:"address1"`
		City     string `json:"city"`
		State    string `json:"state"`
		ZipCode  string `json:"zip_code"`
	} `json:"location"`
	Categories []struct {
		Alias string `json:"alias"`
		Title string `json:"title"`
	} `json:"categories"`
	Transactions []string `json:"transactions"`
}

// Search implements Provider.
func (y *Yelp) Search(ctx context.Context, lat, lng, radiusMiles float64) ([]model.Place, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "yelp: rate limit wait")
	}

	radiusMeters := radiusMiles * milesToMeters
	if radiusMeters > yelpMaxRadiusMeters {
		radiusMeters = yelpMaxRadiusMeters
	}

	params := url.Values{}
	params.Set("latitude", fmt.Sprintf("%f", lat))
	params.Set("longitude", fmt.Sprintf("%f", lng))
	params.Set("radius", fmt.Sprintf("%d", int(radiusMeters)))
	params.Set("categories", "pizza,italian,restaurants")
	params.Set("term", "pizza")
	params.Set("limit", "50")
	reqURL := y.baseURL + "/businesses/search?" + params.Encode()

	payload, err := resilience.DoVal(ctx, y.retry, func(ctx context.Context) (*yelpSearchResponse, error) {
		return y.fetch(ctx, reqURL)
	})
	if err != nil {
		return nil, err
	}

	places := make([]model.Place, 0, len(payload.Businesses))
	for _, b := range payload.Businesses {
		places = append(places, normalizeYelpBusiness(b))
	}

	zap.L().Debug("yelp: search complete", zap.Int("results", len(places)))
	return places, nil
}

func (y *Yelp) fetch(ctx context.Context, reqURL string) (*yelpSearchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: create request")
	}
	req.Header.Set("Authorization", "Bearer "+y.key)

	resp, err := y.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "yelp: read response")
	}

	if resp.StatusCode != http.StatusOK {
		err := eris.Errorf("yelp: unexpected status %d", resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}

	var payload yelpSearchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, eris.Wrap(err, "yelp: unmarshal response")
	}
	return &payload, nil
}

// normalizeYelpBusiness maps a Yelp business onto the canonical schema.
// Dedicated-pizzeria inference: "pizza" in the name or a pizza category.
// Delivery comes from the transactions list; price "$$" becomes ordinal 2.
func normalizeYelpBusiness(b yelpBusiness) model.Place {
	dedicated := strings.Contains(strings.ToLower(b.Name), "pizza")
	for _, c := range b.Categories {
		if c.Alias == "pizza" || c.Alias == "pizzeria" {
			dedicated = true
			break
		}
	}

	hasDelivery := false
	for _, t := range b.Transactions {
		if t == "delivery" {
			hasDelivery = true
			break
		}
	}

	phone := b.Phone
	if phone == "" {
		phone = b.DisplayPhone
	}

	var priceLevel *int
	if b.Price != "" {
		level := len(b.Price)
		priceLevel = &level
	}

	address := b.Location.Address1
	if b.Location.City != "" {
		address += ", " + b.Location.City
	}
	if b.Location.State != "" {
		address += ", " + b.Location.State
	}

	categories := make([]string, 0, len(b.Categories))
	for _, c := range b.Categories {
		categories = append(categories, c.Title)
	}

	return model.Place{
		Source:     model.SourceYelp,
		ExternalID: b.ID,
		Name:       b.Name,
		Address:    address,
		City:       b.Location.City,
		State:      b.Location.State,
		Zipcode:    b.Location.ZipCode,
		Coordinates: model.Coordinates{
			Lat: b.Coordinates.Latitude,
			Lng: b.Coordinates.Longitude,
		},
		Phone:               phone,
		Website:             b.URL,
		IsDedicatedPizzeria: dedicated,
		HasDelivery:         hasDelivery,
		HasPizzaMenu:        true,
		Rating:              b.Rating,
		ReviewCount:         b.ReviewCount,
		PriceLevel:          priceLevel,
		Metadata: map[string]any{
			"categories":   categories,
			"image_url":    b.ImageURL,
			"yelp_url":     b.URL,
			"transactions": b.Transactions,
			"is_closed":    b.IsClosed,
		},
	}
}
