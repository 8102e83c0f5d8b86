package escl

import (
	"net/http"
	"strings"
)

const airscanPrefix = "/" + defaultResourcePath

// endpointTransport points the requests of an airscan client at the
// scanner's real endpoint: https for _uscans services, the announced port
// and the announced resource path instead of /eSCL.
type endpointTransport struct {
	base   http.RoundTripper
	addr   string
	rs     string
	useTLS bool
}

func (t *endpointTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if t.useTLS {
		r.URL.Scheme = "https"
	} else {
		r.URL.Scheme = "http"
	}
	if t.addr != "" {
		r.URL.Host = t.addr
		r.Host = t.addr
	}
	if t.rs != "" && t.rs != defaultResourcePath {
		if rest, ok := strings.CutPrefix(r.URL.Path, airscanPrefix+"/"); ok {
			r.URL.Path = "/" + t.rs + "/" + rest
			r.URL.RawPath = ""
		}
	}
	return t.base.RoundTrip(r)
}
