package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/smarttourjo/core/internal/auth"
	"github.com/smarttourjo/core/internal/models"
)

// LoginResponse is returned by the login and register endpoints.
type LoginResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	TokenType    string       `json:"token_type,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// Token returns the credential pair of the response.
func (r *LoginResponse) Token() *auth.Token {
	return &auth.Token{AccessToken: r.AccessToken, RefreshToken: r.RefreshToken}
}

// Health checks the API is reachable.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	var out map[string]interface{}
	err := c.Request(ctx, http.MethodGet, "/health", nil, &out)
	return out, err
}

// Login authenticates and stores the returned session.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.Request(ctx, http.MethodPost, "/auth/login", body, &out); err != nil {
		return nil, err
	}
	return &out, c.storeSession(ctx, &out)
}

// Register creates an account and stores the session when one is returned.
func (c *Client) Register(ctx context.Context, email, password, fullName string) (*LoginResponse, error) {
	var out LoginResponse
	body := map[string]string{"email": email, "password": password}
	if fullName != "" {
		body["full_name"] = fullName
	}
	if err := c.Request(ctx, http.MethodPost, "/auth/register", body, &out); err != nil {
		return nil, err
	}
	return &out, c.storeSession(ctx, &out)
}

func (c *Client) storeSession(ctx context.Context, r *LoginResponse) error {
	if r.AccessToken == "" {
		return nil
	}
	tok := r.Token()
	if c.tokens != nil {
		if err := c.tokens.SaveToken(ctx, tok); err != nil {
			return err
		}
	}
	c.SetAuthToken(tok)
	return nil
}

// CurrentUser returns the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*models.User, error) {
	var out models.User
	if err := c.Request(ctx, http.MethodGet, "/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetProfile returns the user's profile.
func (c *Client) GetProfile(ctx context.Context) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.Request(ctx, http.MethodGet, "/profile", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile replaces the user's profile.
func (c *Client) UpdateProfile(ctx context.Context, p *models.UserProfile) (*models.UserProfile, error) {
	var out models.UserProfile
	if err := c.Request(ctx, http.MethodPut, "/profile", p, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetItineraries returns the user's itinerary items.
func (c *Client) GetItineraries(ctx context.Context) ([]models.ItineraryItem, error) {
	var out []models.ItineraryItem
	err := c.Request(ctx, http.MethodGet, "/itineraries", nil, &out)
	return out, err
}

// CreateItinerary adds an itinerary item.
func (c *Client) CreateItinerary(ctx context.Context, item *models.ItineraryItem) (*models.ItineraryItem, error) {
	var out models.ItineraryItem
	if err := c.Request(ctx, http.MethodPost, "/itineraries", item, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateItinerary applies a partial update.
func (c *Client) UpdateItinerary(ctx context.Context, id string, u models.ItineraryUpdate) (*models.ItineraryItem, error) {
	var out models.ItineraryItem
	if err := c.Request(ctx, http.MethodPut, "/itineraries/"+url.PathEscape(id), u, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteItinerary removes an itinerary item.
func (c *Client) DeleteItinerary(ctx context.Context, id string) error {
	return c.Request(ctx, http.MethodDelete, "/itineraries/"+url.PathEscape(id), nil, nil)
}

// CurrentWeather returns the weather at (lat, lon), described in lang when set.
func (c *Client) CurrentWeather(ctx context.Context, lat, lon float64, lang string) (*models.WeatherData, error) {
	params := url.Values{}
	params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	params.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	if lang != "" {
		params.Set("lang", lang)
	}

	var out models.WeatherData
	if err := c.Request(ctx, http.MethodGet, "/weather/current?"+params.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SendChatMessage sends a message to the travel assistant.
func (c *Client) SendChatMessage(ctx context.Context, message string) (*models.ChatResponse, error) {
	var out models.ChatResponse
	if err := c.Request(ctx, http.MethodPost, "/chat/message", map[string]string{"message": message}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SuggestItinerary asks the server for a suggested plan.
func (c *Client) SuggestItinerary(ctx context.Context) (json.RawMessage, error) {
	var out json.RawMessage
	err := c.Request(ctx, http.MethodPost, "/itinerary/suggest", nil, &out)
	return out, err
}

// GetDestinations lists destinations, optionally by category and search term.
func (c *Client) GetDestinations(ctx context.Context, category, search string) ([]models.Destination, error) {
	params := url.Values{}
	if category != "" {
		params.Set("category", category)
	}
	if search != "" {
		params.Set("search", search)
	}
	endpoint := "/destinations"
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}

	var out []models.Destination
	err := c.Request(ctx, http.MethodGet, endpoint, nil, &out)
	return out, err
}

// GetDestination returns one destination.
func (c *Client) GetDestination(ctx context.Context, id string) (*models.Destination, error) {
	var out models.Destination
	if err := c.Request(ctx, http.MethodGet, "/destinations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
