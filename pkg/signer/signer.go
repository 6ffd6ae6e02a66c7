// Package signer implements AWS Signature Version 4 request signing
package signer

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/pay-theory/ecsbridge/pkg/errors"
)

const (
	// Algorithm is the SigV4 algorithm identifier
	Algorithm = "AWS4-HMAC-SHA256"

	// TimeFormat is the x-amz-date timestamp layout
	TimeFormat = "20060102T150405Z"

	// DateFormat is the credential scope date layout
	DateFormat = "20060102"

	terminator = "aws4_request"
)

// Signer signs HTTP requests for one region and service
type Signer struct {
	Credentials aws.CredentialsProvider
	Region      string
	Service     string

	// Now returns the signing time. Defaults to time.Now.
	Now func() time.Time
}

// New creates a signer
func New(credentials aws.CredentialsProvider, region, service string) *Signer {
	return &Signer{
		Credentials: credentials,
		Region:      region,
		Service:     service,
		Now:         time.Now,
	}
}

// Context holds every intermediate value of one signature
type Context struct {
	Date             string
	Timestamp        string
	Region           string
	Service          string
	Method           string
	CanonicalURI     string
	CanonicalQuery   string
	CanonicalHeaders string
	SignedHeaders    string
	PayloadHash      string
	AccessKeyID      string
	Signature        string
}

// Scope returns the credential scope date/region/service/aws4_request
func (c *Context) Scope() string {
	return strings.Join([]string{c.Date, c.Region, c.Service, terminator}, "/")
}

// CanonicalRequest returns the canonical request string
func (c *Context) CanonicalRequest() string {
	return strings.Join([]string{
		c.Method,
		c.CanonicalURI,
		c.CanonicalQuery,
		c.CanonicalHeaders,
		c.SignedHeaders,
		c.PayloadHash,
	}, "\n")
}

// StringToSign returns the string to sign
func (c *Context) StringToSign() string {
	return strings.Join([]string{
		Algorithm,
		c.Timestamp,
		c.Scope(),
		HashHex([]byte(c.CanonicalRequest())),
	}, "\n")
}

// Authorization returns the Authorization header value
func (c *Context) Authorization() string {
	return fmt.Sprintf("%s Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		Algorithm, c.AccessKeyID, c.Scope(), c.SignedHeaders, c.Signature)
}

// Sign adds x-amz-date, the optional x-amz-security-token and the Authorization header to req.
// payload must be the exact body that will be sent.
func (s *Signer) Sign(ctx context.Context, req *http.Request, payload []byte) (*Context, error) {
	if s.Credentials == nil {
		return nil, errors.New(errors.ErrValidation, "sign", "no credentials provider configured")
	}

	creds, err := s.Credentials.Retrieve(ctx)
	if err != nil {
		return nil, errors.Wrap(errors.ErrAuthorization, "sign", "failed to retrieve credentials", err)
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	t := now().UTC()

	if req.Header.Get("X-Amz-Date") == "" {
		req.Header.Set("X-Amz-Date", t.Format(TimeFormat))
	}
	if creds.SessionToken != "" {
		req.Header.Set("X-Amz-Security-Token", creds.SessionToken)
	}

	sc := s.context(req, payload, t)
	sc.AccessKeyID = creds.AccessKeyID
	key := SigningKey(creds.SecretAccessKey, sc.Date, sc.Region, sc.Service)
	sc.Signature = hex.EncodeToString(hmacSHA256(key, []byte(sc.StringToSign())))

	req.Header.Set("Authorization", sc.Authorization())
	return sc, nil
}

// context builds the canonical values of req. Date and timestamp are taken from the request's
// x-amz-date header when it parses, otherwise from t.
func (s *Signer) context(req *http.Request, payload []byte, t time.Time) *Context {
	if parsed, err := time.Parse(TimeFormat, req.Header.Get("X-Amz-Date")); err == nil {
		t = parsed
	}

	headers, signed := canonicalHeaders(req)
	return &Context{
		Date:             t.Format(DateFormat),
		Timestamp:        t.Format(TimeFormat),
		Region:           s.Region,
		Service:          s.Service,
		Method:           req.Method,
		CanonicalURI:     canonicalURI(req.URL),
		CanonicalQuery:   canonicalQuery(req.URL),
		CanonicalHeaders: headers,
		SignedHeaders:    signed,
		PayloadHash:      HashHex(payload),
	}
}

// SigningKey derives the SigV4 signing key
func SigningKey(secret, date, region, service string) []byte {
	kDate := hmacSHA256([]byte("AWS4"+secret), []byte(date))
	kRegion := hmacSHA256(kDate, []byte(region))
	kService := hmacSHA256(kRegion, []byte(service))
	return hmacSHA256(kService, []byte(terminator))
}

// HashHex returns the lower-case hex SHA-256 of data
func HashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hmacSHA256(key, data []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return mac.Sum(nil)
}

func canonicalURI(u *url.URL) string {
	if u == nil || u.Path == "" {
		return "/"
	}
	segments := strings.Split(u.Path, "/")
	for i, seg := range segments {
		segments[i] = Escape(seg)
	}
	return strings.Join(segments, "/")
}

func canonicalQuery(u *url.URL) string {
	if u == nil || u.RawQuery == "" {
		return ""
	}

	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return u.RawQuery
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			pairs = append(pairs, Escape(k)+"="+Escape(v))
		}
	}
	return strings.Join(pairs, "&")
}

// canonicalHeaders returns the canonical header block and the signed header list. The host
// header is taken from the request when it is not set explicitly.
func canonicalHeaders(req *http.Request) (string, string) {
	values := make(map[string][]string, len(req.Header)+1)
	for name, vs := range req.Header {
		lower := strings.ToLower(name)
		if lower == "authorization" {
			continue
		}
		values[lower] = append(values[lower], vs...)
	}
	if _, ok := values["host"]; !ok {
		host := req.Host
		if host == "" && req.URL != nil {
			host = req.URL.Host
		}
		values["host"] = []string{host}
	}

	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		trimmed := make([]string, len(values[name]))
		for i, v := range values[name] {
			trimmed[i] = collapseSpaces(v)
		}
		b.WriteString(name)
		b.WriteString(":")
		b.WriteString(strings.Join(trimmed, ","))
		b.WriteString("\n")
	}
	return b.String(), strings.Join(names, ";")
}

func collapseSpaces(v string) string {
	return strings.Join(strings.Fields(v), " ")
}

// Escape percent-encodes s per RFC 3986: only unreserved characters are left as is
func Escape(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	return 'A' <= c && c <= 'Z' || 'a' <= c && c <= 'z' || '0' <= c && c <= '9' ||
		c == '-' || c == '_' || c == '.' || c == '~'
}
