package hikvision

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testRealm    = "DS-K1T321"
	testNonce    = "4e6f6e6365"
	testUser     = "admin"
	testPassword = "s3cret"
)

// digestServer answers 401 with a challenge until the request carries a
// valid digest response, then calls next.
func digestServer(t *testing.T, next http.HandlerFunc) (*httptest.Server, *int32) {
	t.Helper()
	var challenges int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			atomic.AddInt32(&challenges, 1)
			w.Header().Set("WWW-Authenticate", `Digest realm="`+testRealm+`", nonce="`+testNonce+`", qop="auth,auth-int", opaque="xyz"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if !strings.HasPrefix(header, "Digest ") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		p := parseAuthParams(strings.TrimPrefix(header, "Digest "))
		ha1 := md5Hex(testUser + ":" + testRealm + ":" + testPassword)
		ha2 := md5Hex(r.Method + ":" + p["uri"])
		want := md5Hex(ha1 + ":" + p["nonce"] + ":" + p["nc"] + ":" + p["cnonce"] + ":" + p["qop"] + ":" + ha2)
		if p["response"] != want || p["username"] != testUser || p["opaque"] != "xyz" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &challenges
}

func TestDigestTransport_AnswersChallenge(t *testing.T) {
	var gotBody string
	srv, challenges := digestServer(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		assert.Equal(t, "/ISAPI/AccessControl/UserInfo/Record?format=json", r.URL.RequestURI())
		w.WriteHeader(http.StatusOK)
	})

	client := &http.Client{Transport: &DigestTransport{Username: testUser, Password: testPassword}}
	req, err := http.NewRequest(http.MethodPost, srv.URL+"/ISAPI/AccessControl/UserInfo/Record?format=json", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, `{"a":1}`, gotBody)
	assert.Equal(t, int32(1), atomic.LoadInt32(challenges))
}

func TestDigestTransport_WrongPasswordReturns401(t *testing.T) {
	srv, _ := digestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	client := &http.Client{Transport: &DigestTransport{Username: testUser, Password: "nope"}}
	resp, err := client.Get(srv.URL + "/ISAPI/System/deviceInfo")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestDigestTransport_BasicChallengeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Basic realm="x"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &DigestTransport{Username: testUser, Password: testPassword}}
	_, err := client.Get(srv.URL)
	assert.ErrorIs(t, err, ErrDigestUnsupported)
}

func TestParseAuthParams(t *testing.T) {
	p := parseAuthParams(`realm="a, b", nonce=abc, qop="auth,auth-int", stale=FALSE`)
	assert.Equal(t, "a, b", p["realm"])
	assert.Equal(t, "abc", p["nonce"])
	assert.Equal(t, "auth,auth-int", p["qop"])
	assert.Equal(t, "FALSE", p["stale"])
}

func TestAuthorize_WithoutQop(t *testing.T) {
	c := digestChallenge{realm: "r", nonce: "n"}
	header := c.authorize("GET", "/x", "u", "p", "cn")
	p := parseAuthParams(strings.TrimPrefix(header, "Digest "))

	ha1 := md5Hex("u:r:p")
	ha2 := md5Hex("GET:/x")
	assert.Equal(t, md5Hex(ha1+":n:"+ha2), p["response"])
	_, hasQop := p["qop"]
	assert.False(t, hasQop)
}
