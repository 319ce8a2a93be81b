package upstream

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/wenfer/strmgate/internal/credstore"
	"github.com/wenfer/strmgate/internal/ids"
)

// AuthSession is the upstream-issued QR login session returned by
// BeginAuthSession (spec.md §4.3, C3's begin()).
type AuthSession struct {
	SessionID string
	QRPayload string // opaque payload the caller renders as a QR code
	Sign      string
	ExpiresAt time.Time
}

// AuthStatus is the upstream's report of where a QR session stands,
// mirroring original_source's status 0/1/2 vocabulary (app/api/routes/auth.py).
type AuthStatus int

const (
	AuthNotScanned AuthStatus = iota
	AuthScanned
	AuthConfirmed
	AuthExpired
)

type wireQRToken struct {
	UID  string `json:"uid"`
	QR   string `json:"qrcode"`
	Sign string `json:"sign"`
	Time int64  `json:"time"`
}

// authSessionTTL is how long an upstream QR session remains pollable before
// it's treated as expired (spec.md §4.3 "upstream-defined window").
const authSessionTTL = 5 * time.Minute

// noCredential is passed to auth endpoints that precede having a credential
// at all — authHeader returns no header for a zero-value Credential.
var noCredential = credstore.Credential{}

// BeginAuthSession requests a new QR login session from the upstream
// (spec.md §4.3 begin()). driveID only scopes the rate limiter; the
// upstream's QR endpoints are unauthenticated.
func (c *Client) BeginAuthSession(ctx context.Context, driveID ids.DriveID) (AuthSession, error) {
	resp, err := c.do(ctx, driveID, noCredential, "GET", "/auth/qrcode_token", nil, nil)
	if err != nil {
		return AuthSession{}, err
	}

	var tok wireQRToken
	if err := decodeJSON(resp, &tok); err != nil {
		return AuthSession{}, err
	}

	return AuthSession{
		SessionID: tok.UID,
		QRPayload: tok.QR,
		Sign:      tok.Sign,
		ExpiresAt: time.Now().Add(authSessionTTL),
	}, nil
}

type wireAuthStatus struct {
	Status int `json:"status"`
}

// PollAuthSession reports the current status of a QR session (spec.md
// §4.3 poll()).
func (c *Client) PollAuthSession(ctx context.Context, driveID ids.DriveID, sessionID string) (AuthStatus, error) {
	q := url.Values{"uid": {sessionID}}

	resp, err := c.do(ctx, driveID, noCredential, "GET", "/auth/qrcode_status", q, nil)
	if err != nil {
		return AuthExpired, err
	}

	var body wireAuthStatus
	if err := decodeJSON(resp, &body); err != nil {
		return AuthExpired, err
	}

	switch body.Status {
	case 0:
		return AuthNotScanned, nil
	case 1:
		return AuthScanned, nil
	case 2:
		return AuthConfirmed, nil
	default:
		return AuthExpired, nil
	}
}

type wireExchangeResult struct {
	Cookie map[string]string `json:"cookie"`
}

// ExchangeAuthSession trades a confirmed QR session for raw credential
// material (spec.md §4.3 exchange() "calls C2 to trade the session for a
// credential"). The caller (C3) shapes the result into a
// credstore.Credential and persists it via C1 — this method only knows how
// to talk to the upstream.
func (c *Client) ExchangeAuthSession(ctx context.Context, driveID ids.DriveID, sessionID string) ([]byte, error) {
	q := url.Values{"uid": {sessionID}}

	resp, err := c.do(ctx, driveID, noCredential, "POST", "/auth/qrcode_scan_result", q, nil)
	if err != nil {
		return nil, err
	}

	var body wireExchangeResult
	if err := decodeJSON(resp, &body); err != nil {
		return nil, err
	}

	return encodeCookieJar(body.Cookie), nil
}

// encodeCookieJar renders a name->value cookie map as a single Cookie
// header value, in sorted key order for determinism (original_source's
// auth.py builds the equivalent "UID=..; CID=..; SEID=.." string).
func encodeCookieJar(jar map[string]string) []byte {
	keys := make([]string, 0, len(jar))
	for k := range jar {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	parts := make([]string, 0, len(keys))

	for _, k := range keys {
		if v := jar[k]; v != "" {
			parts = append(parts, k+"="+v)
		}
	}

	return []byte(strings.Join(parts, "; "))
}
