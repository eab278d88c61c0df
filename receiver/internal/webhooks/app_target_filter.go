package webhooks

import (
	"net/http"
	"strconv"

	libHTTP "github.com/brigadecore/brigade-foundations/http"
	"github.com/charmbracelet/log"
)

// appTargetHeader names the GitHub App a delivery was sent on behalf of.
const appTargetHeader = "X-GitHub-Hook-Installation-Target-ID"

// appTargetFilter is a component that implements the http.Filter interface and
// can conditionally allow or disallow a request based on whether it was
// addressed to this gateway's GitHub App.
type appTargetFilter struct {
	appID int64
}

// NewAppTargetFilter returns a component that implements the http.Filter
// interface and turns away deliveries that GitHub addressed to some App other
// than the one specified. Deliveries that don't say which App they are for are
// let through; signature verification has the final word on those.
func NewAppTargetFilter(appID int64) libHTTP.Filter {
	return &appTargetFilter{
		appID: appID,
	}
}

func (a *appTargetFilter) Decorate(handle http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appIDStr := r.Header.Get(appTargetHeader)
		if appIDStr == "" {
			handle(w, r)
			return
		}
		appID, err := strconv.ParseInt(appIDStr, 10, 64)
		if err != nil || appID != a.appID {
			log.Warn(
				"rejecting delivery addressed to another GitHub App",
				"target", appIDStr,
				"delivery", r.Header.Get("X-GitHub-Delivery"),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"detail":"Delivery is not addressed to this GitHub App"}`)) // nolint: errcheck,lll
			return
		}
		// If we get this far, everything checks out. Handle the request.
		handle(w, r)
	}
}
