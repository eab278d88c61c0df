package github

import "time"

const (
	// DefaultBaseURL is the address of the public GitHub REST API.
	DefaultBaseURL = "https://api.github.com/"
	// DefaultTokenRefreshMargin is how long before its expiry a cached
	// installation token stops being handed out.
	DefaultTokenRefreshMargin = 60 * time.Second
	// DefaultTimeout bounds every outbound call to GitHub.
	DefaultTimeout = 10 * time.Second
)

// App encapsulates the details of the GitHub App this gateway acts as.
type App struct {
	// AppID specifies the ID of the GitHub App.
	AppID int64
	// PrivateKey is an ASCII-armored RSA private key for the GitHub App. It is
	// only used when a PrivateKeySource yields nothing.
	PrivateKey string
	// BaseURL is the root of the GitHub REST API. GitHub Enterprise Server
	// installations use something like https://ghe.example.com/api/v3/.
	BaseURL string
	// TokenRefreshMargin is how long before its expiry a cached installation
	// token is considered stale.
	TokenRefreshMargin time.Duration
	// Timeout bounds each outbound call to GitHub.
	Timeout time.Duration
}

func (a App) withDefaults() App {
	if a.BaseURL == "" {
		a.BaseURL = DefaultBaseURL
	}
	if a.TokenRefreshMargin <= 0 {
		a.TokenRefreshMargin = DefaultTokenRefreshMargin
	}
	if a.Timeout <= 0 {
		a.Timeout = DefaultTimeout
	}
	return a
}
