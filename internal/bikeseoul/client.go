// Package bikeseoul is a client for the member pages of bikeseoul.com, the
// cookie-authenticated side of the Seoul bike service. The site has no API:
// ride history and favorite stations only exist as server-rendered HTML, and
// the session is a plain Spring Security cookie.
package bikeseoul

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ddareungi/ddareungi/internal/session"
	"github.com/ddareungi/ddareungi/internal/station"
	"github.com/ddareungi/ddareungi/internal/upstream"
)

const (
	// ProviderName identifies this upstream.
	ProviderName = "bikeseoul-site"

	// DefaultBaseURL is the public site.
	DefaultBaseURL = "https://www.bikeseoul.com"

	pathLogin         = "/login.do"
	pathRentStatus    = "/app/rentCheck/isChkRentStatus.do"
	pathRentStatusAlt = "/app/rent/isChkRentStatus.do"
	pathUserStatus    = "/app/rent/chkUserSataus.do"
	pathUseHistory    = "/app/mybike/getMemberUseHistory.do"
	pathFavorites     = "/app/mybike/favoriteStation.do"
	pathVoucherInfo   = "/app/mybike/coupon/validChkVoucherAjax.do"
	pathMyPage        = "/myLeftPage.do"
	pathRealtimeAll   = "/app/station/getStationRealtimeStatus.do"

	// mobileUA is a fixed common mobile user agent; the site serves the
	// scrapeable mobile markup for it.
	mobileUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) " +
		"AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"
)

// ClientConfig holds configuration for the site client.
type ClientConfig struct {
	// Cookie optionally seeds the session cookie.
	Cookie string

	// BaseURL overrides the site host (tests).
	BaseURL string

	// Timeout bounds each HTTP call. Default: 20 seconds.
	Timeout time.Duration

	// Logger for client operations. Cookie values are never logged.
	Logger zerolog.Logger
}

// Client talks to the member pages. The session manager is the only caller
// of Login and SetCookie; data fetches report an expired cookie by returning
// an error matching session.ErrExpired.
type Client struct {
	baseURL    string
	httpClient *upstream.Client
	jar        http.CookieJar
	logger     zerolog.Logger

	mu     sync.Mutex
	cookie string
}

// NewClient creates a site client with its own cookie jar.
func NewClient(cfg ClientConfig) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	jar, _ := cookiejar.New(nil)

	return &Client{
		baseURL: baseURL,
		httpClient: upstream.NewClient(upstream.ClientConfig{
			Name:    ProviderName,
			Timeout: cfg.Timeout,
			Jar:     jar,
		}),
		jar:    jar,
		logger: cfg.Logger,
		cookie: NormalizeCookie(cfg.Cookie),
	}
}

// HTTPClient exposes the underlying resilient client for health reporting.
func (c *Client) HTTPClient() *upstream.Client {
	return c.httpClient
}

// SetCookie installs the session cookie used for subsequent requests.
func (c *Client) SetCookie(cookie string) {
	c.mu.Lock()
	c.cookie = NormalizeCookie(cookie)
	c.mu.Unlock()
}

// Login performs the site's form login and returns the resulting session
// cookie header. The verdict comes from the rent-status probe: the login
// POST itself answers 200 either way.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	page, err := c.getText(ctx, pathLogin, nil, pathLogin)
	if err != nil {
		return "", fmt.Errorf("fetching login page: %w", err)
	}

	form := extractLoginForm(page)
	form.fields[form.userField] = username
	form.fields[form.passField] = password

	if _, err := c.postForm(ctx, form.action, form.fields, pathLogin); err != nil {
		return "", fmt.Errorf("submitting login form: %w", err)
	}

	status, err := c.FetchRentStatus(ctx)
	if err != nil {
		return "", fmt.Errorf("verifying login: %w", err)
	}
	if ok, _ := status.LoginOK(); !ok {
		return "", fmt.Errorf("%w: login not accepted", session.ErrAuthFailed)
	}

	cookie := c.cookieHeaderFromJar()
	if cookie == "" {
		return "", fmt.Errorf("%w: no session cookie issued", session.ErrAuthFailed)
	}
	c.SetCookie(cookie)
	return cookie, nil
}

// FetchRentStatus fetches the member status JSON, trying the two paths the
// site has used across releases.
func (c *Client) FetchRentStatus(ctx context.Context) (RentStatus, error) {
	var lastErr error
	for _, path := range []string{pathRentStatus, pathRentStatusAlt} {
		var status RentStatus
		if err := c.getJSON(ctx, path, nil, path, &status); err != nil {
			lastErr = err
			continue
		}
		return status, nil
	}
	return RentStatus{}, lastErr
}

// ProbeSession checks whether the current cookie still authenticates,
// returning a session.ErrExpired-wrapped error when it does not.
func (c *Client) ProbeSession(ctx context.Context) (RentStatus, error) {
	status, err := c.FetchRentStatus(ctx)
	if err != nil {
		return RentStatus{}, err
	}
	if ok, known := status.LoginOK(); known && !ok {
		return status, fmt.Errorf("rent status: %w", session.ErrExpired)
	}
	return status, nil
}

// FetchFavorites scrapes the favorite-station list with inline dock counts.
func (c *Client) FetchFavorites(ctx context.Context) ([]Favorite, error) {
	body, err := c.getText(ctx, pathFavorites, nil, pathFavorites)
	if err != nil {
		return nil, err
	}
	if looksLikeLoginPage(body) {
		return nil, fmt.Errorf("favorites page: %w", session.ErrExpired)
	}
	return parseFavorites(body), nil
}

// FetchHistory scrapes the use-history page (most recent rides first).
func (c *Client) FetchHistory(ctx context.Context) (HistoryPage, error) {
	body, err := c.getText(ctx, pathUseHistory, nil, pathUseHistory)
	if err != nil {
		return HistoryPage{}, err
	}
	if looksLikeLoginPage(body) {
		return HistoryPage{}, fmt.Errorf("history page: %w", session.ErrExpired)
	}
	return parseHistoryPage(body), nil
}

// FetchVoucherInfo fetches the active pass details.
func (c *Client) FetchVoucherInfo(ctx context.Context) (VoucherInfo, error) {
	var payload map[string]any
	if err := c.postJSON(ctx, pathVoucherInfo, nil, "/app/mybike/coupon/validChkVoucher.do", &payload); err != nil {
		return VoucherInfo{}, err
	}

	// The pass fields have moved between wrapper objects across releases.
	data := payload
	for _, key := range []string{"couponVo", "voucherVo", "data"} {
		if inner, ok := payload[key].(map[string]any); ok {
			data = inner
			break
		}
	}
	pick := func(key string) *time.Time {
		if v, ok := data[key].(string); ok {
			if t := ParseSiteTime(v); t != nil {
				return t
			}
		}
		if v, ok := payload[key].(string); ok {
			return ParseSiteTime(v)
		}
		return nil
	}

	return VoucherInfo{
		ExpiresAt:    pick("voucherEndDttm"),
		RegisteredAt: pick("regDttm"),
		LastLoginAt:  pick("lastLoginDttm"),
	}, nil
}

// FetchTicketExpiry falls back to scraping the "my page" sidebar for the
// pass expiry when the JSON endpoints carry none.
func (c *Client) FetchTicketExpiry(ctx context.Context) (*time.Time, error) {
	body, err := c.getText(ctx, pathMyPage, nil, pathMyPage)
	if err != nil {
		return nil, err
	}
	if looksLikeLoginPage(body) {
		return nil, fmt.Errorf("my page: %w", session.ErrExpired)
	}
	return parseTicketExpiry(body), nil
}

// FetchStationRealtimeAll fetches the live status of every station through
// the site's own realtime endpoint. Also returns a pass expiry timestamp
// when the payload happens to carry one.
func (c *Client) FetchStationRealtimeAll(ctx context.Context) ([]station.Station, *time.Time, error) {
	var payload map[string]any
	form := url.Values{"stationGrpSeq": {"ALL"}}
	if err := c.postJSON(ctx, pathRealtimeAll, form, pathRealtimeAll, &payload); err != nil {
		return nil, nil, err
	}

	var items []any
	for _, key := range []string{"realtimeList", "list", "data"} {
		if list, ok := payload[key].([]any); ok {
			items = list
			break
		}
	}

	var (
		stations   []station.Station
		voucherEnd *time.Time
	)
	for _, item := range items {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if st, ok := realtimeRowToStation(row); ok {
			stations = append(stations, st)
		}
		if voucherEnd == nil {
			for _, key := range []string{"voucherEndDttm", "ticketEndDttm", "validEndDttm"} {
				if v, ok := row[key].(string); ok {
					if t := ParseSiteTime(v); t != nil {
						voucherEnd = t
						break
					}
				}
			}
		}
	}
	return stations, voucherEnd, nil
}

// realtimeRowToStation maps one realtime row onto the domain model, with the
// same count fallbacks the site's own pages apply (QR bikes count as
// general, electric as sprout).
func realtimeRowToStation(row map[string]any) (station.Station, bool) {
	code := station.NormalizeCode(asString(row["stationId"]))
	if code == "" || !station.IsCode(code) {
		return station.Station{}, false
	}

	number, title := station.SplitNumberedName(asString(row["stationName"]))
	if number == "" {
		number = strings.TrimSpace(asString(row["stationNo"]))
	}

	total := parseLooseInt(row["parkingBikeTotCnt"])
	general := parseLooseInt(row["parkingBikeTotCntGeneral"])
	sprout := parseLooseInt(row["parkingBikeTotCntTeen"])
	if general <= 0 {
		general = total
	}
	if qr := parseLooseInt(row["parkingQRBikeCnt"]); qr > 0 {
		general += qr
	}
	if elec := parseLooseInt(row["parkingELECBikeCnt"]); sprout <= 0 && elec > 0 {
		sprout = elec
	}
	if total <= 0 {
		total = general + sprout
	}

	return station.Station{
		Code:         code,
		NumericID:    number,
		Name:         title,
		Lat:          parseLooseFloat64(row["stationLatitude"]),
		Lon:          parseLooseFloat64(row["stationLongitude"]),
		BikesGeneral: general,
		BikesSprout:  sprout,
		BikesTotal:   total,
		BikesRepair:  parseLooseInt(row["parkingBikeTotCntRepair"]),
	}, true
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// HTTP plumbing. Every request carries the mobile UA, the installed cookie
// and a same-site referer; the site rejects bare requests.

func (c *Client) headers(req *http.Request, refererPath string, wantJSON bool) {
	req.Header.Set("User-Agent", mobileUA)
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.7,en;q=0.6")
	if wantJSON {
		req.Header.Set("Accept", "application/json, text/plain, */*")
	} else {
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	}

	c.mu.Lock()
	cookie := c.cookie
	c.mu.Unlock()
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}
	if refererPath != "" {
		req.Header.Set("Referer", c.baseURL+refererPath)
	}
}

func (c *Client) absoluteURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return c.baseURL + path
	}
	return c.baseURL + "/" + strings.TrimLeft(path, "./")
}

func (c *Client) getText(ctx context.Context, path string, params url.Values, refererPath string) (string, error) {
	u := c.absoluteURL(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	c.headers(req, refererPath, false)
	return c.doText(req)
}

func (c *Client) getJSON(ctx context.Context, path string, params url.Values, refererPath string, out any) error {
	u := c.absoluteURL(path)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.headers(req, refererPath, true)
	return c.doJSON(req, out)
}

func (c *Client) postForm(ctx context.Context, path string, fields map[string]string, refererPath string) (string, error) {
	values := url.Values{}
	for k, v := range fields {
		values.Set(k, v)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.absoluteURL(path), strings.NewReader(values.Encode()))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.headers(req, refererPath, false)
	return c.doText(req)
}

func (c *Client) postJSON(ctx context.Context, path string, form url.Values, refererPath string, out any) error {
	body := ""
	if form != nil {
		body = form.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.absoluteURL(path), strings.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.headers(req, refererPath, true)
	return c.doJSON(req, out)
}

func (c *Client) doText(req *http.Request) (string, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", fmt.Errorf("status %d: %w", resp.StatusCode, session.ErrExpired)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	c.logger.Debug().
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Int("bytes", len(data)).
		Msg("site fetch")
	return string(data), nil
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("status %d: %w", resp.StatusCode, session.ErrExpired)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// cookieHeaderFromJar serializes the jar's cookies for the site into one
// Cookie header line.
func (c *Client) cookieHeaderFromJar() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	var parts []string
	for _, cookie := range c.jar.Cookies(u) {
		parts = append(parts, cookie.Name+"="+cookie.Value)
	}
	return strings.Join(parts, "; ")
}
