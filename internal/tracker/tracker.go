// Package tracker is the client side of visit analytics: it turns a page
// navigation into exactly one visit event for the ingest endpoint and keeps
// a local mirror of the counters. Tracking never fails the caller.
package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/valyala/fasthttp"

	"starlore/internal/analytics"
)

// Event is the payload sent to the ingest endpoint.
type Event struct {
	VisitorID    string         `json:"visitorId"`
	SessionID    string         `json:"sessionId"`
	Page         analytics.Page `json:"page"`
	IsNewSession bool           `json:"isNewSession"`

	// Delivered is set once the ingest endpoint accepted the event.
	Delivered bool `json:"-"`
}

// Sender delivers an event to the ingest endpoint.
type Sender interface {
	Send(ctx context.Context, e Event) error
}

// HTTPSender posts events as JSON over fasthttp.
type HTTPSender struct {
	URL     string
	Client  *fasthttp.Client
	Timeout time.Duration
}

// NewHTTPSender posts to baseURL + "/api/analytics/track".
func NewHTTPSender(baseURL string) *HTTPSender {
	return &HTTPSender{
		URL:     baseURL + "/api/analytics/track",
		Client:  &fasthttp.Client{Name: "starlore-tracker"},
		Timeout: 5 * time.Second,
	}
}

func (s *HTTPSender) Send(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(s.URL)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/json")
	req.SetBody(body)

	if err := doWithContext(ctx, s.Client, req, resp, s.Timeout); err != nil {
		return fmt.Errorf("post %s: %w", s.URL, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return fmt.Errorf("post %s: unexpected status %d", s.URL, code)
	}
	return nil
}

// doWithContext honours the earlier of ctx's deadline and timeout.
func doWithContext(ctx context.Context, c *fasthttp.Client, req *fasthttp.Request, resp *fasthttp.Response, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	return c.DoDeadline(req, resp, deadline)
}

// Tracker emits one visit event per navigation.
type Tracker struct {
	persistent Storage
	session    Storage
	sender     Sender
	mirror     Mirror

	now          func() time.Time
	newVisitorID func() string
	newSessionID func() string
}

// New builds a Tracker. persistent outlives the session (visitor id, mirror);
// session is cleared when the browsing context ends.
func New(persistent, session Storage, sender Sender) *Tracker {
	return &Tracker{
		persistent:   persistent,
		session:      session,
		sender:       sender,
		mirror:       NewMirror(persistent),
		now:          time.Now,
		newVisitorID: uuid.NewString,
		newSessionID: func() string { return "session-" + uuid.NewString() },
	}
}

// Mirror exposes the local counters.
func (t *Tracker) Mirror() Mirror {
	return t.mirror
}

// Track reports a navigation to path. Errors are logged and swallowed; the
// returned event tells whether delivery succeeded.
func (t *Tracker) Track(ctx context.Context, path string) Event {
	now := t.now()
	log := logrus.WithField("path", path)

	visitorID, _, err := GetOrCreate(t.persistent, keyVisitorID, t.newVisitorID)
	if err != nil {
		log.WithError(err).Warn("visitor id storage failed")
		if visitorID == "" {
			visitorID = t.newVisitorID()
		}
	}

	sessionID, isNew, err := GetOrCreate(t.session, keySessionID, t.newSessionID)
	if err != nil {
		log.WithError(err).Warn("session id storage failed")
		if sessionID == "" {
			sessionID, isNew = t.newSessionID(), true
		}
	}

	ev := Event{
		VisitorID:    visitorID,
		SessionID:    sessionID,
		Page:         analytics.ClassifyPath(path),
		IsNewSession: isNew,
	}

	if err := t.sender.Send(ctx, ev); err != nil {
		log.WithError(err).Debug("visit not delivered")
	} else {
		ev.Delivered = true
	}

	if err := t.mirror.Record(ev, now); err != nil {
		log.WithError(err).Warn("local analytics mirror update failed")
	}
	if err := t.mirror.Prune(now); err != nil {
		log.WithError(err).Warn("local analytics prune failed")
	}
	return ev
}
