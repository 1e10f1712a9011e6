package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dogparkjp/parkgate/config"
)

// PinRegistrar is the capability the PIN lifecycle needs from the smart-lock
// vendor: register a keyboard password for a bounded window, and delete one
// again. The live Sciener client and the deterministic mock both implement
// it; which one runs is decided at the composition root, never in here.
type PinRegistrar interface {
	CreatePin(ctx context.Context, lockID int64, pin string, startDate, endDate time.Time) (keyboardPwdID int64, err error)
	DeletePin(ctx context.Context, lockID int64, keyboardPwdID int64) error
}

// VendorError is a non-zero errcode from the Sciener API, carrying the
// user-facing Japanese reason. Retryable from the user's side: pressing
// "issue PIN" again simply makes a fresh attempt.
type VendorError struct {
	Code   int
	Reason string
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("sciener API error %d: %s", e.Code, e.Reason)
}

// scienerErrorReasons maps Sciener errcodes to the wording shown to users.
var scienerErrorReasons = map[int]string{
	1:  "パラメータエラー",
	2:  "アクセストークンが無効です",
	3:  "権限がありません",
	4:  "ロックが見つかりません",
	5:  "ロックがオフラインです",
	10: "PINコードが既に存在します",
	11: "PINコードの上限に達しています",
	12: "PIN期間が無効です",
	13: "PINコードが無効です",
	-1: "APIサーバーエラー",
}

func scienerErrorReason(errcode int) string {
	if reason, ok := scienerErrorReasons[errcode]; ok {
		return reason
	}
	return fmt.Sprintf("不明なエラー (code: %d)", errcode)
}

// scienerResponse is the envelope every Sciener endpoint returns.
// errcode 0 means success.
type scienerResponse struct {
	Errcode       int    `json:"errcode"`
	Errmsg        string `json:"errmsg"`
	KeyboardPwdID int64  `json:"keyboardPwdId,omitempty"`
	AccessToken   string `json:"access_token,omitempty"`
	ExpiresIn     int64  `json:"expires_in,omitempty"`
}

// ScienerClient talks to the Sciener EuOpen API over form-encoded HTTP.
// It authenticates with the OAuth2 password grant and caches the access
// token until shortly before it expires.
type ScienerClient struct {
	baseURL      string
	clientID     string
	clientSecret string
	username     string
	password     string
	httpClient   *http.Client

	mu             sync.Mutex
	accessToken    string
	tokenExpiresAt time.Time
}

func NewScienerClient(cfg *config.Config) *ScienerClient {
	return &ScienerClient{
		baseURL:      strings.TrimRight(cfg.ScienerBaseURL, "/"),
		clientID:     cfg.ScienerClientID,
		clientSecret: cfg.ScienerClientSecret,
		username:     cfg.ScienerUsername,
		password:     cfg.ScienerPassword,
		httpClient:   &http.Client{Timeout: cfg.VendorTimeout},
	}
}

var _ PinRegistrar = (*ScienerClient)(nil)

// CreatePin registers a 6-digit keyboard password on the lock for the given
// window. Timestamps go over the wire as Unix milliseconds.
func (c *ScienerClient) CreatePin(ctx context.Context, lockID int64, pin string, startDate, endDate time.Time) (int64, error) {
	token, err := c.ensureValidToken(ctx)
	if err != nil {
		return 0, err
	}

	form := url.Values{
		"clientId":        {c.clientID},
		"accessToken":     {token},
		"lockId":          {strconv.FormatInt(lockID, 10)},
		"keyboardPwd":     {pin},
		"keyboardPwdType": {"2"}, // 2 = period-limited PIN
		"startDate":       {strconv.FormatInt(startDate.UnixMilli(), 10)},
		"endDate":         {strconv.FormatInt(endDate.UnixMilli(), 10)},
		"addType":         {"2"}, // 2 = added via API
		"date":            {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}

	resp, err := c.postForm(ctx, "/keyboardPwd/add", form)
	if err != nil {
		return 0, err
	}
	if resp.Errcode != 0 {
		return 0, &VendorError{Code: resp.Errcode, Reason: scienerErrorReason(resp.Errcode)}
	}
	return resp.KeyboardPwdID, nil
}

// DeletePin removes a previously registered keyboard password. Used for
// reconciliation after a failed local write, and by the cleanup worker for
// expired one-time PINs (Sciener caps how many passwords a lock can hold).
func (c *ScienerClient) DeletePin(ctx context.Context, lockID int64, keyboardPwdID int64) error {
	token, err := c.ensureValidToken(ctx)
	if err != nil {
		return err
	}

	form := url.Values{
		"clientId":      {c.clientID},
		"accessToken":   {token},
		"lockId":        {strconv.FormatInt(lockID, 10)},
		"keyboardPwdId": {strconv.FormatInt(keyboardPwdID, 10)},
		"date":          {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}

	resp, err := c.postForm(ctx, "/keyboardPwd/delete", form)
	if err != nil {
		return err
	}
	if resp.Errcode != 0 {
		return &VendorError{Code: resp.Errcode, Reason: scienerErrorReason(resp.Errcode)}
	}
	return nil
}

// ensureValidToken returns a cached access token, re-authenticating when the
// token is missing or within a minute of expiry.
func (c *ScienerClient) ensureValidToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiresAt.Add(-time.Minute)) {
		return c.accessToken, nil
	}

	form := url.Values{
		"client_id":     {c.clientID},
		"client_secret": {c.clientSecret},
		"username":      {c.username},
		"password":      {c.password},
		"grant_type":    {"password"},
	}

	resp, err := c.postForm(ctx, "/oauth2/token", form)
	if err != nil {
		return "", fmt.Errorf("sciener auth request failed: %w", err)
	}
	if resp.Errcode != 0 || resp.AccessToken == "" {
		return "", &VendorError{Code: resp.Errcode, Reason: scienerErrorReason(resp.Errcode)}
	}

	c.accessToken = resp.AccessToken
	c.tokenExpiresAt = time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func (c *ScienerClient) postForm(ctx context.Context, path string, form url.Values) (*scienerResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sciener request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("sciener API returned status %d", resp.StatusCode)
	}

	var parsed scienerResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode sciener response: %w", err)
	}
	return &parsed, nil
}
