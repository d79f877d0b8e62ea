package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/pizza-search/internal/model"
)

func yelpFixture(t *testing.T) yelpBusiness {
	t.Helper()
	raw := `{
		"id": "yelp-1",
		"name": "Regina Pizzeria",
		"phone": "+16172270765",
		"url": "https://www.yelp.com/biz/regina-pizzeria-boston",
		"rating": 4.0,
		"review_count": 3200,
		"price": "$$",
		"coordinates": {"latitude": 42.3655, "longitude": -71.0565},
		"location": {"address1": "11 1/2 Thacher St", "city": "Boston", "state": "MA", "zip_code": "02113"},
		"categories": [{"alias": "pizza", "title": "Pizza"}],
		"transactions": ["pickup", "delivery"]
	}`
	var b yelpBusiness
	require.NoError(t, json.Unmarshal([]byte(raw), &b))
	return b
}

func TestYelpSearch_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/businesses/search", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "pizza", r.URL.Query().Get("term"))
		assert.Equal(t, "pizza,italian,restaurants", r.URL.Query().Get("categories"))
		assert.Equal(t, "50", r.URL.Query().Get("limit"))
		assert.Equal(t, "8046", r.URL.Query().Get("radius"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(yelpSearchResponse{Businesses: []yelpBusiness{yelpFixture(t)}})
	}))
	defer srv.Close()

	y := NewYelp(YelpOptions{Key: "test-key", BaseURL: srv.URL})
	places, err := y.Search(context.Background(), 42.37, -71.03, 5)

	require.NoError(t, err)
	require.Len(t, places, 1)
	p := places[0]
	assert.Equal(t, model.SourceYelp, p.Source)
	assert.Equal(t, "yelp-1", p.ExternalID)
	assert.Equal(t, "Regina Pizzeria", p.Name)
	assert.Equal(t, "11 1/2 Thacher St, Boston, MA", p.Address)
	assert.Equal(t, "02113", p.Zipcode)
	assert.True(t, p.IsDedicatedPizzeria)
	assert.True(t, p.HasDelivery)
	assert.Equal(t, 3200, p.ReviewCount)
	require.NotNil(t, p.PriceLevel)
	assert.Equal(t, 2, *p.PriceLevel)
}

func TestYelpSearch_RadiusCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "40000", r.URL.Query().Get("radius"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(yelpSearchResponse{})
	}))
	defer srv.Close()

	y := NewYelp(YelpOptions{Key: "test-key", BaseURL: srv.URL})
	places, err := y.Search(context.Background(), 42.37, -71.03, 100)

	require.NoError(t, err)
	assert.Empty(t, places)
}

func TestYelpSearch_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	y := NewYelp(YelpOptions{Key: "bad-key", BaseURL: srv.URL})
	places, err := y.Search(context.Background(), 42.37, -71.03, 5)

	assert.Error(t, err)
	assert.Nil(t, places)
	assert.Contains(t, err.Error(), "401")
}

func TestNormalizeYelpBusiness_Classification(t *testing.T) {
	b := yelpFixture(t)
	b.Name = "Trattoria di Marco"
	b.Categories = nil
	b.Transactions = []string{"pickup"}
	b.Price = ""

	p := normalizeYelpBusiness(b)
	assert.False(t, p.IsDedicatedPizzeria, "no pizza name and no pizza category")
	assert.False(t, p.HasDelivery, "pickup only")
	assert.Nil(t, p.PriceLevel)
	assert.True(t, p.HasPizzaMenu)
}

func TestNormalizeYelpBusiness_PhoneFallback(t *testing.T) {
	b := yelpFixture(t)
	b.Phone = ""
	b.DisplayPhone = "(617) 227-0765"

	p := normalizeYelpBusiness(b)
	assert.Equal(t, "(617) 227-0765", p.Phone)
}
