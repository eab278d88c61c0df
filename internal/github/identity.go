package github

import (
	"context"
	"crypto/rsa"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v69/github"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

// PrivateKeySource is an interface for anything that can look up the GitHub
// App's ASCII-armored private key. The second return value is false when no
// key could be found.
type PrivateKeySource interface {
	GitHubPrivateKey(ctx context.Context) (string, bool)
}

// Requester is an interface for components that can issue authenticated
// requests to the GitHub REST API on behalf of an App installation.
type Requester interface {
	// Do sends a request to the given endpoint, which is relative to the
	// API's base URL, authenticated as the given installation. If v is non-nil,
	// the JSON response body is decoded into it.
	Do(
		ctx context.Context,
		installationID int64,
		method string,
		endpoint string,
		body interface{},
		v interface{},
	) (*github.Response, error)
}

// IdentityService authenticates this gateway to GitHub as a GitHub App. It
// mints App JWTs, exchanges them for installation tokens, caches those tokens
// until shortly before they expire, and issues API requests using them.
//
// See the following for further details:
// https://docs.github.com/en/apps/creating-github-apps/authenticating-with-a-github-app/about-authentication-with-a-github-app // nolint: lll
type IdentityService struct {
	app        App
	keySource  PrivateKeySource
	baseURL    *url.URL
	httpClient *http.Client
	client     *github.Client
	nowFn      func() time.Time

	keyMu sync.Mutex
	key   *rsa.PrivateKey

	tokensMu sync.RWMutex
	tokens   map[int64]*oauth2.Token
	flights  singleflight.Group
}

// NewIdentityService returns an IdentityService for the given App. keySource
// may be nil, in which case only the App's static PrivateKey is used.
func NewIdentityService(
	app App,
	keySource PrivateKeySource,
) (*IdentityService, error) {
	app = app.withDefaults()
	baseURL, err := parseBaseURL(app.BaseURL)
	if err != nil {
		return nil, err
	}
	httpClient := &http.Client{Timeout: app.Timeout}
	client := github.NewClient(httpClient)
	client.BaseURL = baseURL
	return &IdentityService{
		app:        app,
		keySource:  keySource,
		baseURL:    baseURL,
		httpClient: httpClient,
		client:     client,
		nowFn:      time.Now,
		tokens:     map[int64]*oauth2.Token{},
	}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	baseURL, err := url.Parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing GitHub API URL %q", raw)
	}
	if !strings.HasSuffix(baseURL.Path, "/") {
		baseURL.Path += "/"
	}
	return baseURL, nil
}

// AppID returns the ID of the GitHub App this service authenticates as.
func (i *IdentityService) AppID() int64 {
	return i.app.AppID
}

// AppJWT returns a freshly signed JWT that authenticates as the App itself.
// Each call produces a new JWT with a ten minute lifetime.
func (i *IdentityService) AppJWT(ctx context.Context) (string, error) {
	key, err := i.privateKey(ctx)
	if err != nil {
		return "", err
	}
	return i.signAppJWT(key)
}

func (i *IdentityService) signAppJWT(key *rsa.PrivateKey) (string, error) {
	token, err := createJWT(i.app.AppID, key, i.nowFn())
	if err != nil {
		return "", &IdentityError{Reason: "error signing App JWT", Err: err}
	}
	return token, nil
}

// privateKey returns the App's parsed private key, loading it on first use.
// Keys from the PrivateKeySource take precedence over the static key.
func (i *IdentityService) privateKey(
	ctx context.Context,
) (*rsa.PrivateKey, error) {
	i.keyMu.Lock()
	defer i.keyMu.Unlock()
	if i.key != nil {
		return i.key, nil
	}
	var keyPEM string
	var ok bool
	if i.keySource != nil {
		keyPEM, ok = i.keySource.GitHubPrivateKey(ctx)
	}
	if !ok || keyPEM == "" {
		keyPEM = i.app.PrivateKey
	}
	if keyPEM == "" {
		return nil, &IdentityError{Reason: "no GitHub App private key is available"}
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(keyPEM))
	if err != nil {
		return nil, &IdentityError{
			Reason: "error parsing GitHub App private key",
			Err:    err,
		}
	}
	i.key = key
	return key, nil
}

// InvalidatePrivateKey discards the cached private key so that the next App
// JWT is signed with a key that is looked up afresh. It is used after a key
// rotation.
func (i *IdentityService) InvalidatePrivateKey() {
	i.keyMu.Lock()
	defer i.keyMu.Unlock()
	i.key = nil
}

// InstallationToken returns an access token for the given installation. A
// cached token is returned for as long as it remains valid beyond the refresh
// margin. Otherwise, a new token is obtained from GitHub. Concurrent callers
// asking for the same installation share a single exchange.
func (i *IdentityService) InstallationToken(
	ctx context.Context,
	installationID int64,
) (string, error) {
	if token, ok := i.cachedToken(installationID); ok {
		return token.AccessToken, nil
	}
	resCh := i.flights.DoChan(
		strconv.FormatInt(installationID, 10),
		func() (interface{}, error) {
			// Another flight may have completed since the cache was checked.
			if token, ok := i.cachedToken(installationID); ok {
				return token, nil
			}
			// The exchange outlives any one caller so that a caller giving up
			// doesn't fail every other caller waiting on the same flight.
			flightCtx := context.WithoutCancel(ctx)
			// The key is resolved before the exchange's deadline starts running.
			// Secret stores and KMS enforce their own timeouts.
			key, err := i.privateKey(flightCtx)
			if err != nil {
				return nil, err
			}
			exchangeCtx, cancel := context.WithTimeout(flightCtx, i.app.Timeout)
			defer cancel()
			token, err := i.exchange(exchangeCtx, key, installationID)
			if err != nil {
				return nil, err
			}
			i.tokensMu.Lock()
			defer i.tokensMu.Unlock()
			i.tokens[installationID] = token
			return token, nil
		},
	)
	select {
	case res := <-resCh:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(*oauth2.Token).AccessToken, nil // nolint: forcetypeassert
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// InvalidateInstallationToken discards any cached token for the given
// installation.
func (i *IdentityService) InvalidateInstallationToken(installationID int64) {
	i.tokensMu.Lock()
	defer i.tokensMu.Unlock()
	delete(i.tokens, installationID)
}

// invalidateToken discards the cached token for the given installation only
// if it is still the one that was rejected. A token that some other caller
// already replaced is left alone.
func (i *IdentityService) invalidateToken(
	installationID int64,
	rejected string,
) {
	i.tokensMu.Lock()
	defer i.tokensMu.Unlock()
	if token, ok := i.tokens[installationID]; ok &&
		token.AccessToken == rejected {
		delete(i.tokens, installationID)
	}
}

func (i *IdentityService) cachedToken(
	installationID int64,
) (*oauth2.Token, bool) {
	i.tokensMu.RLock()
	defer i.tokensMu.RUnlock()
	token, ok := i.tokens[installationID]
	if !ok {
		return nil, false
	}
	return token, i.nowFn().Add(i.app.TokenRefreshMargin).Before(token.Expiry)
}

// exchange uses an App JWT signed with the given key to obtain a new
// installation token from the GitHub Apps API.
func (i *IdentityService) exchange(
	ctx context.Context,
	key *rsa.PrivateKey,
	installationID int64,
) (*oauth2.Token, error) {
	appJWT, err := i.signAppJWT(key)
	if err != nil {
		return nil, err
	}
	log.Debug(
		"exchanging App JWT for installation token",
		"installationID", installationID,
	)
	installationToken, resp, err :=
		i.newAppsClientFromJWT(ctx, appJWT).CreateInstallationToken(
			ctx,
			installationID,
			&github.InstallationTokenOptions{},
		)
	if err != nil {
		return nil, &UpstreamAuthError{
			InstallationID: installationID,
			StatusCode:     statusCode(resp),
			Err: errors.Wrapf(
				err,
				"error creating installation token for installation %d",
				installationID,
			),
		}
	}
	expiry := installationToken.GetExpiresAt().Time
	if expiry.IsZero() {
		// Installation tokens are documented to last an hour
		expiry = i.nowFn().Add(time.Hour)
	}
	return &oauth2.Token{
		TokenType:   "token", // This type indicates an installation token
		AccessToken: installationToken.GetToken(),
		Expiry:      expiry,
	}, nil
}

// newAppsClientFromJWT returns a new client for the GitHub Apps API that will
// authenticate as an App using the provided JWT.
func (i *IdentityService) newAppsClientFromJWT(
	ctx context.Context,
	appJWT string,
) *github.AppsService {
	client := github.NewClient(
		oauth2.NewClient(
			context.WithValue(ctx, oauth2.HTTPClient, i.httpClient),
			oauth2.StaticTokenSource(
				&oauth2.Token{
					AccessToken: appJWT,
				},
			),
		),
	)
	client.BaseURL = i.baseURL
	return client.Apps
}

// Do sends an API request authenticated as the given installation. If GitHub
// responds 401, the token that was used is discarded, a new one is obtained,
// and the request is retried once. Rate limiting is reported as a
// *RateLimitedError and is never retried.
func (i *IdentityService) Do(
	ctx context.Context,
	installationID int64,
	method string,
	endpoint string,
	body interface{},
	v interface{},
) (*github.Response, error) {
	token, resp, err := i.attempt(ctx, installationID, method, endpoint, body, v)
	if err != nil && token != "" &&
		statusCode(resp) == http.StatusUnauthorized {
		log.Debug(
			"installation token was rejected; refreshing",
			"installationID", installationID,
		)
		i.invalidateToken(installationID, token)
		_, resp, err = i.attempt(ctx, installationID, method, endpoint, body, v)
	}
	if err != nil {
		return resp, classify(err, installationID, i.nowFn())
	}
	return resp, nil
}

// attempt makes a single pass at an API request. It returns the installation
// token that was used, if one was obtained.
func (i *IdentityService) attempt(
	ctx context.Context,
	installationID int64,
	method string,
	endpoint string,
	body interface{},
	v interface{},
) (string, *github.Response, error) {
	token, err := i.InstallationToken(ctx, installationID)
	if err != nil {
		return "", nil, err
	}
	req, err := i.client.NewRequest(
		method,
		strings.TrimPrefix(endpoint, "/"),
		body,
	)
	if err != nil {
		return token, nil, errors.Wrapf(
			err,
			"error building request %s %s",
			method,
			endpoint,
		)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	ctx, cancel := context.WithTimeout(ctx, i.app.Timeout)
	defer cancel()
	// Rate limits are tracked per installation by GitHub, so the client's own
	// bookkeeping, which is shared across installations, is not consulted.
	resp, err := i.client.Do(
		context.WithValue(ctx, github.BypassRateLimitCheck, true),
		req,
		v,
	)
	if err != nil {
		return token, resp, errors.Wrapf(
			err,
			"error calling GitHub API %s %s",
			method,
			endpoint,
		)
	}
	return token, resp, nil
}
