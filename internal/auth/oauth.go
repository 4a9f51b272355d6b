package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

// Identity is the normalized result of a completed OAuth exchange: the
// fields the linking engine needs, extracted from whatever shape the
// provider's profile API uses. Extraction is the ONLY thing that differs
// between providers — everything downstream is provider-agnostic.
type Identity struct {
	Provider    string
	ID          string // the provider's stable user id
	Email       string // empty when the user hid it or the provider has none
	Name        string
	Picture     string
	AccessToken string
}

// Provider runs the transport half of a provider login: building the
// authorization redirect and exchanging the callback code for a verified
// identity. The linking decisions live in the service layer, which only
// ever sees the normalized Identity.
type Provider struct {
	name   string
	config *oauth2.Config
	// fetch calls the provider's profile API with an authorized client
	// and extracts the Identity fields from the response.
	fetch func(ctx context.Context, client *http.Client) (*Identity, error)
}

// Name returns the provider's registered name ("github", "google", ...).
func (p *Provider) Name() string { return p.name }

// AuthURL returns the URL to redirect the user to for authorization.
// state must be an unguessable value the callback handler verifies
// against a cookie (CSRF protection for the OAuth flow).
func (p *Provider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange completes the flow: trades the authorization code for an
// access token (server-to-server, using the client secret), then fetches
// the profile and normalizes it.
func (p *Provider) Exchange(ctx context.Context, code string) (*Identity, error) {
	token, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging %s OAuth code: %w", p.name, err)
	}

	// oauth2.Config.Client returns an *http.Client that adds the
	// Authorization header to every request.
	identity, err := p.fetch(ctx, p.config.Client(ctx, token))
	if err != nil {
		return nil, err
	}
	if identity.ID == "" {
		return nil, fmt.Errorf("auth: %s returned a profile without a user id", p.name)
	}

	identity.Provider = p.name
	identity.AccessToken = token.AccessToken
	return identity, nil
}

// NewGitHubProvider builds the GitHub adapter.
// Register an OAuth App under https://github.com/settings/developers; the
// callback URL must match the configured one exactly.
func NewGitHubProvider(clientID, clientSecret, callbackURL string) *Provider {
	return &Provider{
		name: "github",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     github.Endpoint,
		},
		fetch: fetchGitHubProfile,
	}
}

func fetchGitHubProfile(ctx context.Context, client *http.Client) (*Identity, error) {
	// GitHub returns a much larger object; we only unmarshal what we use.
	var profile struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"` // empty if hidden in GitHub settings
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &profile); err != nil {
		return nil, fmt.Errorf("auth: fetching github profile: %w", err)
	}

	name := profile.Name
	if name == "" {
		name = profile.Login
	}
	var id string
	if profile.ID != 0 {
		id = fmt.Sprintf("%d", profile.ID)
	}
	return &Identity{
		ID:      id,
		Email:   profile.Email,
		Name:    name,
		Picture: profile.AvatarURL,
	}, nil
}

// NewGoogleProvider builds the Google adapter.
func NewGoogleProvider(clientID, clientSecret, callbackURL string) *Provider {
	return &Provider{
		name: "google",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"openid", "profile", "email"},
			Endpoint:     google.Endpoint,
		},
		fetch: fetchGoogleProfile,
	}
}

func fetchGoogleProfile(ctx context.Context, client *http.Client) (*Identity, error) {
	var profile struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v2/userinfo", &profile); err != nil {
		return nil, fmt.Errorf("auth: fetching google profile: %w", err)
	}
	return &Identity{
		ID:      profile.ID,
		Email:   profile.Email,
		Name:    profile.Name,
		Picture: profile.Picture,
	}, nil
}

// NewTwitterProvider builds the Twitter/X adapter (OAuth 2.0).
// Twitter's v2 API does not expose the account email, so accounts created
// from a twitter login start without one.
func NewTwitterProvider(clientID, clientSecret, callbackURL string) *Provider {
	return &Provider{
		name: "twitter",
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"users.read", "tweet.read"},
			Endpoint: oauth2.Endpoint{
				AuthURL:  "https://twitter.com/i/oauth2/authorize",
				TokenURL: "https://api.twitter.com/2/oauth2/token",
			},
		},
		fetch: fetchTwitterProfile,
	}
}

func fetchTwitterProfile(ctx context.Context, client *http.Client) (*Identity, error) {
	var profile struct {
		Data struct {
			ID              string `json:"id"`
			Name            string `json:"name"`
			Username        string `json:"username"`
			ProfileImageURL string `json:"profile_image_url"`
		} `json:"data"`
	}
	url := "https://api.twitter.com/2/users/me?user.fields=profile_image_url"
	if err := getJSON(ctx, client, url, &profile); err != nil {
		return nil, fmt.Errorf("auth: fetching twitter profile: %w", err)
	}

	name := profile.Data.Name
	if name == "" {
		name = profile.Data.Username
	}
	return &Identity{
		ID:      profile.Data.ID,
		Name:    name,
		Picture: profile.Data.ProfileImageURL,
	}, nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("profile API returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
