// Package google implements the remote capabilities on top of the Google
// Classroom and Drive APIs.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// Scopes are the OAuth scopes the engine needs.
var Scopes = []string{
	"https://www.googleapis.com/auth/classroom.courses",
	"https://www.googleapis.com/auth/classroom.topics",
	"https://www.googleapis.com/auth/classroom.coursework.students",
	"https://www.googleapis.com/auth/classroom.courseworkmaterials",
	"https://www.googleapis.com/auth/classroom.coursework.me",
	"https://www.googleapis.com/auth/drive.file",
	"https://www.googleapis.com/auth/drive.readonly",
}

// Credentials selects how API calls are authenticated. The first populated
// source wins: AccessToken, then TokenFile (with CredentialsFile as the OAuth
// client), then CredentialsFile alone. With none set, Application Default
// Credentials are used.
type Credentials struct {
	AccessToken     string
	CredentialsFile string
	TokenFile       string
	UserAgent       string
	// FS reads the credential files. Defaults to the OS file system.
	FS afero.Fs
}

// ClientOptions assembles the API client options for c.
func ClientOptions(ctx context.Context, c Credentials) ([]option.ClientOption, error) {
	fs := c.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}

	var opts []option.ClientOption
	switch {
	case c.AccessToken != "":
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.AccessToken})
		opts = append(opts, option.WithTokenSource(ts))

	case c.TokenFile != "":
		if c.CredentialsFile == "" {
			return nil, errors.New("token file requires an OAuth client credentials file")
		}
		secret, err := afero.ReadFile(fs, c.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("reading credentials: %w", err)
		}
		cfg, err := googleoauth.ConfigFromJSON(secret, Scopes...)
		if err != nil {
			return nil, fmt.Errorf("parsing OAuth client: %w", err)
		}
		raw, err := afero.ReadFile(fs, c.TokenFile)
		if err != nil {
			return nil, fmt.Errorf("reading token: %w", err)
		}
		tok, err := parseToken(raw)
		if err != nil {
			return nil, err
		}
		opts = append(opts, option.WithTokenSource(cfg.TokenSource(ctx, tok)))

	case c.CredentialsFile != "":
		contents, err := afero.ReadFile(fs, c.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("reading credentials: %w", err)
		}
		if !json.Valid(contents) {
			return nil, fmt.Errorf("credentials file %s is not valid JSON", c.CredentialsFile)
		}
		opts = append(opts, option.WithCredentialsJSON(contents), option.WithScopes(Scopes...))

	default:
		opts = append(opts, option.WithScopes(Scopes...))
	}

	if c.UserAgent != "" {
		opts = append(opts, option.WithUserAgent(c.UserAgent))
	}
	return opts, nil
}

// storedToken accepts both the oauth2 token encoding and the authorized-user
// file written by the Python client libraries.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	Token        string    `json:"token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

func parseToken(raw []byte) (*oauth2.Token, error) {
	var st storedToken
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		RefreshToken: st.RefreshToken,
		TokenType:    st.TokenType,
		Expiry:       st.Expiry,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = st.Token
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file holds neither an access nor a refresh token")
	}
	return tok, nil
}

// Clients bundles the API clients sharing one set of credentials.
type Clients struct {
	Classroom *Classroom
	Drive     *Drive
}

// NewClient builds the Classroom and Drive clients for c.
func NewClient(ctx context.Context, c Credentials, extra ...option.ClientOption) (*Clients, error) {
	opts, err := ClientOptions(ctx, c)
	if err != nil {
		return nil, err
	}
	opts = append(opts, extra...)

	cr, err := NewClassroom(ctx, opts...)
	if err != nil {
		return nil, err
	}
	d, err := NewDrive(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &Clients{Classroom: cr, Drive: d}, nil
}
