package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx/types"

	"github.com/noah-isme/ops-tracker-api/internal/models"
	"github.com/noah-isme/ops-tracker-api/pkg/middleware/requestid"
	"github.com/noah-isme/ops-tracker-api/pkg/response"
)

// maxAuditBody caps how much of a request body is buffered for describe and
// target extraction. Larger bodies are still passed to the handler intact.
const maxAuditBody = 1 << 20

// AuditDispatcher accepts entries for background persistence. Submit must not
// block the request.
type AuditDispatcher interface {
	Submit(entry models.AuditLog)
}

// RequestSummary is the inbound half of an audited operation.
type RequestSummary struct {
	Method string
	Path   string
	Route  string
	Params map[string]string
	Query  map[string]string
	Body   map[string]interface{}
}

// Param returns a path parameter.
func (r RequestSummary) Param(name string) string {
	return r.Params[name]
}

// BodyString returns a string field from the decoded JSON body.
func (r RequestSummary) BodyString(keys ...string) string {
	for _, key := range keys {
		if v, ok := r.Body[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// OutcomeSummary is what the handler declared as its result.
type OutcomeSummary struct {
	Status int
	Data   interface{}
}

// DescribeFunc renders the human readable description of an operation.
type DescribeFunc func(req RequestSummary, out OutcomeSummary) string

// Targets names the user and issue an operation affected.
type Targets struct {
	UserID  string
	IssueID string
}

// TargetFunc resolves the affected user and issue.
type TargetFunc func(req RequestSummary, out OutcomeSummary) Targets

// ActorFunc resolves the acting user when no JWT principal is present.
type ActorFunc func(req RequestSummary, out OutcomeSummary) string

type auditOptions struct {
	targets TargetFunc
	actor   ActorFunc
}

// AuditOption customises one Audit instance.
type AuditOption func(*auditOptions)

// WithTargets replaces the conventional target lookup.
func WithTargets(fn TargetFunc) AuditOption {
	return func(o *auditOptions) {
		if fn != nil {
			o.targets = fn
		}
	}
}

// WithActor supplies the actor for routes that authenticate the caller
// themselves, such as login and register.
func WithActor(fn ActorFunc) AuditOption {
	return func(o *auditOptions) {
		o.actor = fn
	}
}

// ConventionalTargets reads userId/user_id and issueId/issue_id from the
// body, falling back to the userId and id path parameters.
func ConventionalTargets(req RequestSummary, _ OutcomeSummary) Targets {
	t := Targets{
		UserID:  req.BodyString("userId", "user_id"),
		IssueID: req.BodyString("issueId", "issue_id"),
	}
	if t.UserID == "" {
		t.UserID = req.Param("userId")
	}
	if t.IssueID == "" {
		t.IssueID = req.Param("id")
	}
	return t
}

// Audit observes the handler's declared outcome and, on success, hands one
// audit entry to the dispatcher after the response has been written. Failed
// outcomes are not recorded here; they reach the request log through the gin
// error list.
func Audit(dispatcher AuditDispatcher, action models.AuditAction, describe DescribeFunc, opts ...AuditOption) gin.HandlerFunc {
	options := auditOptions{targets: ConventionalTargets}
	for _, opt := range opts {
		opt(&options)
	}

	return func(c *gin.Context) {
		body := captureBody(c)
		c.Next()

		out, ok := observedOutcome(c)
		if !ok || dispatcher == nil {
			return
		}

		req := summarizeRequest(c, body)
		entry := models.AuditLog{
			Action:      action,
			Description: describeSafely(describe, action, req, out),
			Metadata:    auditMetadata(c, req),
			IPAddress:   c.ClientIP(),
			UserAgent:   c.Request.UserAgent(),
			Status:      models.AuditStatusSuccess,
		}

		if claims, ok := CurrentClaims(c); ok {
			entry.UserID = optional(claims.UserID)
		} else if options.actor != nil {
			entry.UserID = optional(options.actor(req, out))
		}

		targets := options.targets(req, out)
		entry.TargetUserID = optional(targets.UserID)
		entry.TargetIssueID = optional(targets.IssueID)

		dispatcher.Submit(entry)
	}
}

// observedOutcome reports the outcome when it qualifies for auditing.
func observedOutcome(c *gin.Context) (OutcomeSummary, bool) {
	if outcome, ok := response.OutcomeOf(c); ok {
		if !outcome.Success() {
			return OutcomeSummary{}, false
		}
		return OutcomeSummary{Status: outcome.Status, Data: outcome.Data}, true
	}
	// Handlers that bypass the response package are judged by status alone.
	status := c.Writer.Status()
	if len(c.Errors) > 0 || status < http.StatusOK || status >= http.StatusMultipleChoices {
		return OutcomeSummary{}, false
	}
	return OutcomeSummary{Status: status}, true
}

func captureBody(c *gin.Context) []byte {
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return nil
	}
	head, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuditBody))
	// Whatever was read goes back in front of the remainder, so on a read
	// error the handler still sees the bytes before the failure point.
	c.Request.Body = readCloser{
		Reader: io.MultiReader(bytes.NewReader(head), c.Request.Body),
		Closer: c.Request.Body,
	}
	if err != nil {
		return nil
	}
	return head
}

type readCloser struct {
	io.Reader
	io.Closer
}

func summarizeRequest(c *gin.Context, body []byte) RequestSummary {
	req := RequestSummary{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Route:  c.FullPath(),
		Params: make(map[string]string, len(c.Params)),
		Query:  map[string]string{},
	}
	for _, p := range c.Params {
		req.Params[p.Key] = p.Value
	}
	for key, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			req.Query[key] = values[0]
		}
	}
	if len(body) > 0 {
		var decoded map[string]interface{}
		if err := json.Unmarshal(body, &decoded); err == nil {
			req.Body = decoded
		}
	}
	return req
}

func describeSafely(describe DescribeFunc, action models.AuditAction, req RequestSummary, out OutcomeSummary) (desc string) {
	if describe == nil {
		return string(action)
	}
	defer func() {
		if r := recover(); r != nil {
			desc = string(action)
		}
	}()
	return describe(req, out)
}

func auditMetadata(c *gin.Context, req RequestSummary) types.JSONText {
	raw, err := json.Marshal(map[string]interface{}{
		"method":     req.Method,
		"path":       req.Path,
		"route":      req.Route,
		"query":      req.Query,
		"params":     req.Params,
		"request_id": requestid.Value(c),
	})
	if err != nil {
		return types.JSONText("{}")
	}
	return types.JSONText(raw)
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
