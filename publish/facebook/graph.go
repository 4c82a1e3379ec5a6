package facebook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/re178/mega-facebook-autoposter/pkg/utils"
	"github.com/re178/mega-facebook-autoposter/publish"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

type Config struct {
	BaseURL string
	Version string
	// RatePerSecond limits calls per page. Zero disables limiting.
	RatePerSecond float64
	Timeout       time.Duration
}

// Client talks to the Graph API. It is safe for concurrent use.
type Client struct {
	cfg  Config
	http *fasthttp.Client

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ publish.Gateway = (*Client)(nil)

func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://graph.facebook.com"
	}
	if cfg.Version == "" {
		cfg.Version = "v19.0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		http: &fasthttp.Client{
			Name:                "autoposter",
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: time.Minute,
			ReadTimeout:         cfg.Timeout,
			WriteTimeout:        cfg.Timeout,
		},
		limiters: make(map[string]*rate.Limiter),
	}
}

// Publish posts text to the page feed, or a photo with caption when
// mediaRef is set. A file:// reference is uploaded, anything else is
// passed to the Graph API as a URL.
func (c *Client) Publish(ctx context.Context, creds publish.Credentials, text, mediaRef string) (string, error) {
	if creds.PageID == "" || creds.AccessToken == "" {
		return "", publish.NewPermanent("publish", errors.New("page credentials are incomplete"))
	}
	if err := c.wait(ctx, creds.PageID); err != nil {
		return "", publish.NewTransient("publish", err)
	}

	var (
		res graphResponse
		err error
	)
	switch path, local := utils.LocalPath(mediaRef); {
	case mediaRef == "":
		res, err = c.postForm(ctx, "publish", c.url(creds.PageID, "feed"), map[string]string{
			"message":      text,
			"access_token": creds.AccessToken,
		})
	case local:
		res, err = c.uploadPhoto(ctx, creds, text, path)
	default:
		res, err = c.postForm(ctx, "publish", c.url(creds.PageID, "photos"), map[string]string{
			"url":          mediaRef,
			"caption":      text,
			"access_token": creds.AccessToken,
		})
	}
	if err != nil {
		return "", err
	}

	id := res.PostID
	if id == "" {
		id = res.ID
	}
	logrus.WithFields(logrus.Fields{
		"page_id":     creds.PageID,
		"external_id": id,
		"with_media":  mediaRef != "",
	}).Info("[PUBLISH] Post published")
	return id, nil
}

// Reply answers a comment or a Messenger conversation on behalf of the page.
func (c *Client) Reply(ctx context.Context, thread publish.ThreadRef, creds publish.Credentials, text string) (string, error) {
	if creds.AccessToken == "" {
		return "", publish.NewPermanent("reply", errors.New("page access token is missing"))
	}
	if thread.ID == "" {
		return "", publish.NewPermanent("reply", errors.New("thread id is missing"))
	}
	if err := c.wait(ctx, creds.PageID); err != nil {
		return "", publish.NewTransient("reply", err)
	}

	switch thread.Kind {
	case publish.ThreadComment:
		res, err := c.postForm(ctx, "reply", c.url(thread.ID, "comments"), map[string]string{
			"message":      text,
			"access_token": creds.AccessToken,
		})
		if err != nil {
			return "", err
		}
		return res.ID, nil
	case publish.ThreadMessage:
		body, _ := json.Marshal(map[string]any{
			"recipient":      map[string]string{"id": thread.ID},
			"message":        map[string]string{"text": text},
			"messaging_type": "RESPONSE",
		})
		res, err := c.do(ctx, "reply", c.url("me", "messages")+"?access_token="+creds.AccessToken, "application/json", body)
		if err != nil {
			return "", err
		}
		return res.MessageID, nil
	}
	return "", publish.NewPermanent("reply", fmt.Errorf("unsupported thread kind %q", thread.Kind))
}

func (c *Client) url(node, edge string) string {
	return fmt.Sprintf("%s/%s/%s/%s", strings.TrimRight(c.cfg.BaseURL, "/"), c.cfg.Version, node, edge)
}

func (c *Client) limiter(pageID string) *rate.Limiter {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.limiters[pageID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(c.cfg.RatePerSecond), 1)
		c.limiters[pageID] = l
	}
	return l
}

func (c *Client) wait(ctx context.Context, pageID string) error {
	if c.cfg.RatePerSecond <= 0 {
		return nil
	}
	return c.limiter(pageID).Wait(ctx)
}

func (c *Client) postForm(ctx context.Context, op, url string, values map[string]string) (graphResponse, error) {
	args := fasthttp.AcquireArgs()
	defer fasthttp.ReleaseArgs(args)
	for k, v := range values {
		args.Set(k, v)
	}
	return c.do(ctx, op, url, "application/x-www-form-urlencoded", args.QueryString())
}

func (c *Client) uploadPhoto(ctx context.Context, creds publish.Credentials, caption, path string) (graphResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		// The file will not reappear on a retry.
		return graphResponse{}, publish.NewPermanent("publish", fmt.Errorf("failed to open media: %w", err))
	}
	defer f.Close()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("caption", caption)
	_ = w.WriteField("access_token", creds.AccessToken)
	part, err := w.CreateFormFile("source", filepath.Base(path))
	if err != nil {
		return graphResponse{}, publish.NewPermanent("publish", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return graphResponse{}, publish.NewPermanent("publish", err)
	}
	if err := w.Close(); err != nil {
		return graphResponse{}, publish.NewPermanent("publish", err)
	}
	return c.do(ctx, "publish", c.url(creds.PageID, "photos"), w.FormDataContentType(), buf.Bytes())
}

func (c *Client) do(ctx context.Context, op, url, contentType string, body []byte) (graphResponse, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType(contentType)
	req.SetBody(body)

	deadline := time.Now().Add(c.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.http.DoDeadline(req, resp, deadline); err != nil {
		return graphResponse{}, publish.NewTransient(op, err)
	}

	var res graphResponse
	status := resp.StatusCode()
	if err := json.Unmarshal(resp.Body(), &res); err != nil && status < 300 {
		return graphResponse{}, publish.NewTransient(op, fmt.Errorf("unreadable graph response: %w", err))
	}
	if status >= 300 || res.Error != nil {
		return graphResponse{}, classify(op, status, res.Error)
	}
	return res, nil
}

type graphError struct {
	Message     string `json:"message"`
	Type        string `json:"type"`
	Code        int    `json:"code"`
	Subcode     int    `json:"error_subcode"`
	IsTransient bool   `json:"is_transient"`
}

type graphResponse struct {
	ID        string      `json:"id"`
	PostID    string      `json:"post_id"`
	MessageID string      `json:"message_id"`
	Error     *graphError `json:"error"`
}

// Graph API codes that clear up on their own: unknown/service errors,
// throttling and temporary unavailability.
var transientCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 613: true}

func classify(op string, status int, ge *graphError) *publish.Error {
	e := &publish.Error{Op: op, StatusCode: status, Class: publish.Permanent}
	msg := fmt.Sprintf("graph api returned status %d", status)
	if ge != nil {
		e.Code = ge.Code
		if ge.Message != "" {
			msg = ge.Message
		}
	}
	e.Err = errors.New(msg)

	switch {
	case ge != nil && (ge.IsTransient || transientCodes[ge.Code]):
		e.Class = publish.Transient
	case status == fasthttp.StatusTooManyRequests || status >= 500:
		e.Class = publish.Transient
	}
	return e
}
