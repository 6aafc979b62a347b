package clients

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/ajitpratap0/pipeflow/pkg/errors"
)

// OAuth2Config configures the client-credentials grant.
type OAuth2Config struct {
	TokenURL       string            `json:"token_url"`
	ClientID       string            `json:"client_id"`
	ClientSecret   string            `json:"-"`
	Scopes         []string          `json:"scopes,omitempty"`
	EndpointParams map[string]string `json:"endpoint_params,omitempty"`
}

func (c *OAuth2Config) validate() error {
	switch {
	case c.TokenURL == "":
		return errors.New(errors.ErrorTypeConfig, "oauth2 token_url is required")
	case c.ClientID == "":
		return errors.New(errors.ErrorTypeConfig, "oauth2 client_id is required")
	}
	return nil
}

// wrapOAuth2 returns a client whose requests carry a bearer token fetched and
// refreshed through base. Tokens are cached until shortly before expiry.
func wrapOAuth2(ctx context.Context, cfg *OAuth2Config, base *http.Client, logger *zap.Logger) (*http.Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
		Scopes:       cfg.Scopes,
		AuthStyle:    oauth2.AuthStyleAutoDetect,
	}
	if len(cfg.EndpointParams) > 0 {
		cc.EndpointParams = make(map[string][]string, len(cfg.EndpointParams))
		for k, v := range cfg.EndpointParams {
			cc.EndpointParams.Set(k, v)
		}
	}

	logger.Debug("oauth2 client credentials enabled",
		zap.String("token_url", cfg.TokenURL),
		zap.Strings("scopes", cfg.Scopes))

	ctx = context.WithValue(ctx, oauth2.HTTPClient, base)
	client := cc.Client(ctx)
	client.Timeout = base.Timeout
	client.CheckRedirect = base.CheckRedirect
	return client, nil
}

// oauth2Failure reports whether err came from the token endpoint.
func oauth2Failure(err error) bool {
	var re *oauth2.RetrieveError
	return errors.As(err, &re)
}
