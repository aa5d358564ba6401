package hikvision

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ErrDigestUnsupported is returned when a 401 carries no usable digest challenge.
var ErrDigestUnsupported = errors.New("hikvision: device did not offer digest authentication")

// DigestTransport answers the terminal's digest challenge. Every request is
// sent once without credentials; on 401 it is replayed with an
// Authorization header computed from the challenge.
type DigestTransport struct {
	Username string
	Password string
	Base     http.RoundTripper
}

func (t *DigestTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *DigestTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return nil, fmt.Errorf("hikvision: request body for %s %s cannot be replayed", req.Method, req.URL.Path)
	}

	first, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	resp, err := t.base().RoundTrip(first)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	challenge, err := parseChallenge(resp.Header.Get("WWW-Authenticate"))
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, err
	}

	second, err := cloneRequest(req)
	if err != nil {
		return nil, err
	}
	second.Header.Set("Authorization", challenge.authorize(req.Method, req.URL.RequestURI(), t.Username, t.Password, newCNonce()))
	return t.base().RoundTrip(second)
}

func cloneRequest(req *http.Request) (*http.Request, error) {
	out := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("hikvision: rewind request body: %w", err)
		}
		out.Body = body
	}
	return out, nil
}

type digestChallenge struct {
	realm     string
	nonce     string
	opaque    string
	qop       string
	algorithm string
}

// parseChallenge reads a WWW-Authenticate header of the form
// `Digest realm="...", nonce="...", qop="auth"`.
func parseChallenge(header string) (digestChallenge, error) {
	scheme, rest, _ := strings.Cut(strings.TrimSpace(header), " ")
	if !strings.EqualFold(scheme, "Digest") {
		return digestChallenge{}, ErrDigestUnsupported
	}

	params := parseAuthParams(rest)
	c := digestChallenge{
		realm:     params["realm"],
		nonce:     params["nonce"],
		opaque:    params["opaque"],
		algorithm: params["algorithm"],
	}
	if c.nonce == "" {
		return digestChallenge{}, ErrDigestUnsupported
	}

	if qop, ok := params["qop"]; ok {
		for _, option := range strings.Split(qop, ",") {
			if strings.TrimSpace(option) == "auth" {
				c.qop = "auth"
				break
			}
		}
		if c.qop == "" {
			return digestChallenge{}, fmt.Errorf("%w: qop %q", ErrDigestUnsupported, qop)
		}
	}

	switch strings.ToUpper(c.algorithm) {
	case "", "MD5", "MD5-SESS":
	default:
		return digestChallenge{}, fmt.Errorf("%w: algorithm %q", ErrDigestUnsupported, c.algorithm)
	}
	return c, nil
}

// parseAuthParams splits comma separated key=value pairs. Quoted values may
// contain commas.
func parseAuthParams(s string) map[string]string {
	params := make(map[string]string)
	for len(s) > 0 {
		s = strings.TrimLeft(s, " ,\t")
		eq := strings.IndexByte(s, '=')
		if eq < 0 {
			break
		}
		key := strings.ToLower(strings.TrimSpace(s[:eq]))
		s = s[eq+1:]

		var value string
		if strings.HasPrefix(s, `"`) {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				value, s = s[1:], ""
			} else {
				value, s = s[1:end+1], s[end+2:]
			}
		} else {
			comma := strings.IndexByte(s, ',')
			if comma < 0 {
				value, s = s, ""
			} else {
				value, s = s[:comma], s[comma+1:]
			}
			value = strings.TrimSpace(value)
		}
		params[key] = value
	}
	return params
}

const digestNonceCount = "00000001"

func (c digestChallenge) authorize(method, uri, username, password, cnonce string) string {
	ha1 := md5Hex(username + ":" + c.realm + ":" + password)
	if strings.EqualFold(c.algorithm, "MD5-sess") {
		ha1 = md5Hex(ha1 + ":" + c.nonce + ":" + cnonce)
	}
	ha2 := md5Hex(method + ":" + uri)

	var b strings.Builder
	fmt.Fprintf(&b, `Digest username="%s", realm="%s", nonce="%s", uri="%s"`, username, c.realm, c.nonce, uri)
	if c.qop != "" {
		response := md5Hex(ha1 + ":" + c.nonce + ":" + digestNonceCount + ":" + cnonce + ":" + c.qop + ":" + ha2)
		fmt.Fprintf(&b, `, qop=%s, nc=%s, cnonce="%s", response="%s"`, c.qop, digestNonceCount, cnonce, response)
	} else {
		fmt.Fprintf(&b, `, response="%s"`, md5Hex(ha1+":"+c.nonce+":"+ha2))
	}
	if c.algorithm != "" {
		fmt.Fprintf(&b, `, algorithm=%s`, c.algorithm)
	}
	if c.opaque != "" {
		fmt.Fprintf(&b, `, opaque="%s"`, c.opaque)
	}
	return b.String()
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

func newCNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
