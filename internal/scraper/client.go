package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"gridwatch/internal/models"
	"gridwatch/logger"
)

const (
	loginPath   = "/e/login"
	offersPath  = "/e/offers"
	browserPath = "/e/modules/browser"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
)

var (
	// ErrInvalidCredentials means the origin rejected the account.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnreachable means the origin could not be reached or answered
	// with a non-200 status during authentication.
	ErrUnreachable = errors.New("marketplace unreachable")
)

// Client owns the authenticated session against the marketplace. It
// performs no pacing of its own; the orchestrator spaces requests out.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *logrus.Entry
	authed     bool
}

// New builds a client for the given origin base URL.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			Jar:     jar,
		},
		log: logger.WithComponent("scraper"),
	}, nil
}

// Authenticated reports whether a login has succeeded on this session.
func (c *Client) Authenticated() bool {
	return c.authed
}

// Authenticate runs the two-step login protocol: fetch the login form,
// echo back its hidden fields verbatim alongside the credentials. Success
// is the post-login response landing anywhere but the login page.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	loginURL := c.baseURL + loginPath

	doc, err := c.getDocument(ctx, loginURL)
	if err != nil {
		return fmt.Errorf("%w: fetch login form: %v", ErrUnreachable, err)
	}

	form := parseLoginForm(doc)
	form.Set("username", username)
	form.Set("password", password)
	form.Set("remember", "1")

	req, err := c.newRequest(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", loginURL)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login status %d", ErrUnreachable, resp.StatusCode)
	}

	finalURL := resp.Request.URL.String()
	if finalURL == loginURL || strings.Contains(finalURL, "login") {
		c.authed = false
		return ErrInvalidCredentials
	}

	c.authed = true
	c.log.WithField("user", username).Info("authenticated against marketplace")
	return nil
}

// ListPage fetches one offers page for a region. An empty slice with a nil
// error signals the end of pagination; a non-nil error marks a transient
// fetch failure the caller must not confuse with "no more data".
func (c *Client) ListPage(ctx context.Context, region string, page int) ([]models.ListingRecord, error) {
	q := url.Values{}
	if region != "" {
		q.Set("region", region)
	}
	if page > 1 {
		q.Set("page", strconv.Itoa(page))
	}

	pageURL := c.baseURL + offersPath
	if len(q) > 0 {
		pageURL += "?" + q.Encode()
	}

	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch offers page %d: %w", page, err)
	}

	records := parseListingTable(c.baseURL, doc)
	for _, record := range records {
		if !record.PriceOK {
			c.log.WithFields(logger.Fields{
				"listing": record.ExternalID,
				"region":  region,
			}).Warn("unparseable listing price, stored as zero")
		}
	}

	return records, nil
}

// ListingDetail fetches one listing page and best-effort-extracts its
// fields. Missing price history is normal, not an error.
func (c *Client) ListingDetail(ctx context.Context, rawURL string) (models.ListingDetail, error) {
	doc, err := c.getDocument(ctx, rawURL)
	if err != nil {
		return models.ListingDetail{}, fmt.Errorf("fetch listing detail: %w", err)
	}

	return parseDetailPage(doc), nil
}

// SearchModules queries the module browser by name.
func (c *Client) SearchModules(ctx context.Context, query string) ([]models.ModuleResult, error) {
	searchURL := c.baseURL + browserPath + "?" + url.Values{"q": {query}}.Encode()

	doc, err := c.getDocument(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("search modules: %w", err)
	}

	return parseSearchResults(c.baseURL, doc), nil
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	return req, nil
}

func (c *Client) getDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}
