package tokensource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// Credentials identify the client application and the resource it requests access to.
type Credentials struct {
	// Authority is the identity provider base URL, e.g. https://login.microsoftonline.com/<tenant>.
	Authority    string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	// Resource is the OAuth2 audience of the target API.
	Resource string
}

// validate reports the first missing required field.
// The client secret is optional for public clients.
func (c Credentials) validate() error {
	switch {
	case c.Authority == "":
		return errors.New("authority is required")
	case c.ClientID == "":
		return errors.New("client id is required")
	case c.RedirectURI == "":
		return errors.New("redirect uri is required")
	case c.Resource == "":
		return errors.New("resource is required")
	}
	return nil
}

// Authorizer talks to the authorization and token endpoints of an Azure AD v1 style authority.
// Both endpoint URLs are derived once from Credentials at construction.
type Authorizer struct {
	config   *oauth2.Config
	client   *http.Client
	grantURL string
}

// NewAuthorizer creates an Authorizer for the given credentials.
// A nil client selects a default client with a 30 second timeout.
func NewAuthorizer(creds Credentials, client *http.Client) (*Authorizer, error) {
	if err := creds.validate(); err != nil {
		return nil, fmt.Errorf("invalid credentials: %w", err)
	}

	if client == nil {
		client = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	authority := strings.TrimRight(creds.Authority, "/")

	config := &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  creds.RedirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  authority + "/oauth2/authorize",
			TokenURL: authority + "/oauth2/token?resource=" + url.QueryEscape(creds.Resource),
			// Azure AD v1 expects client credentials in the form body.
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	return &Authorizer{
		config:   config,
		client:   client,
		grantURL: buildGrantURL(config.Endpoint.AuthURL, creds),
	}, nil
}

// buildGrantURL composes the authorization URL. Parameters keep a fixed order
// (resource, client_id, redirect_uri, response_type) so the URL is stable for
// display and comparison; url.Values.Encode would sort them.
func buildGrantURL(authURL string, creds Credentials) string {
	params := [][2]string{
		{"resource", creds.Resource},
		{"client_id", creds.ClientID},
		{"redirect_uri", creds.RedirectURI},
		{"response_type", "code"},
	}

	var b strings.Builder
	b.WriteString(authURL)
	for i, p := range params {
		if i == 0 {
			b.WriteByte('?')
		} else {
			b.WriteByte('&')
		}
		b.WriteString(p[0])
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p[1]))
	}
	return b.String()
}

// GrantURL returns the URL the user visits to authorize the client.
func (a *Authorizer) GrantURL() string {
	return a.grantURL
}

// TokenURL returns the token endpoint, including the resource query parameter.
func (a *Authorizer) TokenURL() string {
	return a.config.Endpoint.TokenURL
}

// Exchange trades an authorization code for an access and refresh token.
// Errors reaching the endpoint are returned as *TransportError; rejections as *oauth2.RetrieveError.
func (a *Authorizer) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	token, err := a.config.Exchange(a.withClient(ctx), code)
	if err != nil {
		return nil, classifyEndpointError(err)
	}
	return token, nil
}

// Refresh trades a refresh token for a new token pair.
func (a *Authorizer) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	// An empty access token forces the token source to hit the endpoint.
	ts := a.config.TokenSource(a.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	token, err := ts.Token()
	if err != nil {
		return nil, classifyEndpointError(err)
	}
	return token, nil
}

func (a *Authorizer) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, a.client)
}

// classifyEndpointError separates endpoint rejections (the endpoint answered
// with an error status) from failures to reach the endpoint at all.
func classifyEndpointError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return err
	}
	return &TransportError{Err: err}
}
