package oauth

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/go-github/github"
	"golang.org/x/oauth2"
	githubauth "golang.org/x/oauth2/github"
)

// GitHubConfig configures the GitHub provider. Endpoint and APIBaseURL
// override the public GitHub endpoints.
type GitHubConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
	Endpoint     *oauth2.Endpoint
	APIBaseURL   string
}

// GitHub is the GitHub OAuth provider.
type GitHub struct {
	oauth   *oauth2.Config
	apiBase *url.URL
}

// NewGitHub builds a GitHub provider. The default scope requests the
// user's email addresses.
func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	endpoint := githubauth.Endpoint
	if cfg.Endpoint != nil {
		endpoint = *cfg.Endpoint
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	g := &GitHub{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     endpoint,
		},
	}
	if cfg.APIBaseURL != "" {
		base := cfg.APIBaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("github api base url: %w", err)
		}
		g.apiBase = u
	}
	return g, nil
}

func (g *GitHub) Name() string { return "github" }

func (g *GitHub) AuthCodeURL(state string) string {
	return g.oauth.AuthCodeURL(state)
}

// Exchange trades code for a token and reads the user and their primary
// email from the GitHub API.
func (g *GitHub) Exchange(ctx context.Context, code string) (*Profile, error) {
	tok, err := g.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("github token exchange: %w", err)
	}
	client := github.NewClient(g.oauth.Client(ctx, tok))
	if g.apiBase != nil {
		client.BaseURL = g.apiBase
	}

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("github user: %w", err)
	}
	profile := &Profile{
		Provider:    g.Name(),
		ExternalID:  strconv.FormatInt(user.GetID(), 10),
		Login:       user.GetLogin(),
		DisplayName: user.GetName(),
		AvatarURL:   user.GetAvatarURL(),
		Email:       user.GetEmail(),
	}

	emails, _, err := client.Users.ListEmails(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("github emails: %w", err)
	}
	for _, e := range emails {
		if e.GetPrimary() {
			profile.Email = e.GetEmail()
			profile.EmailVerified = e.GetVerified()
			break
		}
	}
	return profile, nil
}
