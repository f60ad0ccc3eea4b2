package interviewapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 16 << 20

type Options struct {
	BaseURL    string // e.g. http://localhost:8080/api
	Token      string
	HTTPClient *http.Client
	Logger     logrus.FieldLogger
	// RetryFor bounds GET retries; zero means 5s, negative disables them.
	RetryFor time.Duration
}

// Client maps the candidate vocabulary onto the interview REST API. GETs
// are retried with backoff; mutating calls are sent once with an
// Idempotency-Key so a manual retry can be deduplicated by the server.
type Client struct {
	base     string
	token    string
	http     *http.Client
	log      logrus.FieldLogger
	retryFor time.Duration
}

func New(o Options) *Client {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = logrus.StandardLogger()
	}
	if o.RetryFor == 0 {
		o.RetryFor = 5 * time.Second
	}
	return &Client{
		base:     strings.TrimRight(o.BaseURL, "/"),
		token:    o.Token,
		http:     o.HTTPClient,
		log:      o.Logger.WithField("component", "interview_api"),
		retryFor: o.RetryFor,
	}
}

type idemKey struct{}

// WithIdempotencyKey makes the next mutating call reuse key. Callers that
// retry the same logical action pass the same key.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idemKey{}, key)
}

// IdempotencyKey returns the key set by WithIdempotencyKey, or "".
func IdempotencyKey(ctx context.Context) string {
	k, _ := ctx.Value(idemKey{}).(string)
	return k
}

func idempotencyKey(ctx context.Context) string {
	if k := IdempotencyKey(ctx); k != "" {
		return k
	}
	return uuid.NewString()
}

type apiError struct {
	Code    utils.Code `json:"code"`
	Message string     `json:"message"`
	Error   string     `json:"error"`
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if method != http.MethodGet {
		req.Header.Set("Idempotency-Key", idempotencyKey(ctx))
	}
	return req, nil
}

func (c *Client) send(req *http.Request, op string) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.E(utils.CodeTimeout, op, "request timed out", err)
		}
		return nil, utils.E(utils.CodeUnavailable, op, "service unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to read response", err)
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return body, nil
	}

	var ae apiError
	_ = json.Unmarshal(body, &ae)
	code := ae.Code
	if code == "" {
		code = utils.CodeForStatus(resp.StatusCode)
	}
	msg := firstNonEmpty(ae.Message, ae.Error, http.StatusText(resp.StatusCode))
	return nil, utils.E(code, op, msg, fmt.Errorf("http %d", resp.StatusCode))
}

func retryable(err error) bool {
	switch utils.CodeOf(err) {
	case utils.CodeUnavailable, utils.CodeTimeout, utils.CodeInternal, utils.CodeTooManyRequests:
		return true
	}
	return false
}

func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	var body []byte
	attempt := func() error {
		req, err := c.newRequest(ctx, http.MethodGet, path, nil, "")
		if err != nil {
			return backoff.Permanent(utils.E(utils.CodeInvalidArgument, op, "invalid request", err))
		}
		b, err := c.send(req, op)
		if err != nil {
			if !retryable(err) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		body = b
		return nil
	}

	if c.retryFor < 0 {
		return body, unwrapPermanent(attempt())
	}
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = c.retryFor
	err := backoff.RetryNotify(attempt, backoff.WithContext(bo, ctx), func(err error, d time.Duration) {
		c.log.WithError(err).WithField("path", path).Debugf("retrying in %s", d)
	})
	return body, err
}

func unwrapPermanent(err error) error {
	var p *backoff.PermanentError
	if errors.As(err, &p) {
		return p.Err
	}
	return err
}

func (c *Client) postJSON(ctx context.Context, op, path string, in any) ([]byte, error) {
	var body io.Reader
	ct := ""
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, utils.E(utils.CodeInvalidArgument, op, "invalid request body", err)
		}
		body, ct = bytes.NewReader(b), "application/json"
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, body, ct)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid request", err)
	}
	return c.send(req, op)
}

// Upload is a file part of a multipart request.
type Upload struct {
	Field    string
	FileName string
	MIMEType string
	Data     []byte
}

func multipartBody(fields map[string]string, files ...Upload) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.Field, f.FileName))
		if f.MIMEType != "" {
			h.Set("Content-Type", f.MIMEType)
		} else {
			h.Set("Content-Type", "application/octet-stream")
		}
		w, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := w.Write(f.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) postMultipart(ctx context.Context, op, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid request", err)
	}
	return c.send(req, op)
}

func decodeInto(op string, raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return utils.E(utils.CodeInternal, op, "unexpected response shape", err)
	}
	return nil
}

func interviewPath(id string, suffix string) string {
	return "/interview/" + url.PathEscape(id) + suffix
}

type CreateParams struct {
	Kind            Kind
	JobID           string
	Difficulty      models.Difficulty
	TargetRole      string
	DurationMinutes int
}

func (c *Client) Create(ctx context.Context, p CreateParams) (*Interview, error) {
	const op = "InterviewAPI.Create"

	if p.Difficulty == "" {
		p.Difficulty = models.DifficultyMedium
	}
	if p.TargetRole == "" {
		p.TargetRole = "General"
		if p.Kind == KindTechnical {
			p.TargetRole = "Software Developer"
		}
	}
	body, err := c.postJSON(ctx, op, "/interview", map[string]any{
		"type":       ServerType(p.Kind),
		"difficulty": p.Difficulty,
		"targetRole": p.TargetRole,
		"duration":   p.DurationMinutes,
		"jobId":      p.JobID,
	})
	if err != nil {
		return nil, err
	}
	iv, err := decodeInterview(body)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "unexpected response shape", err)
	}
	return iv, nil
}

func (c *Client) interviewCall(ctx context.Context, op, method, path string) (*Interview, error) {
	var (
		body []byte
		err  error
	)
	if method == http.MethodGet {
		body, err = c.get(ctx, op, path)
	} else {
		body, err = c.postJSON(ctx, op, path, nil)
	}
	if err != nil {
		return nil, err
	}
	iv, err := decodeInterview(body)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "unexpected response shape", err)
	}
	return iv, nil
}

func (c *Client) Start(ctx context.Context, interviewID string) (*Interview, error) {
	return c.interviewCall(ctx, "InterviewAPI.Start", http.MethodPost, interviewPath(interviewID, "/start"))
}

func (c *Client) Complete(ctx context.Context, interviewID string) (*Interview, error) {
	return c.interviewCall(ctx, "InterviewAPI.Complete", http.MethodPost, interviewPath(interviewID, "/complete"))
}

func (c *Client) Details(ctx context.Context, interviewID string) (*Interview, error) {
	return c.interviewCall(ctx, "InterviewAPI.Details", http.MethodGet, interviewPath(interviewID, ""))
}

func (c *Client) Cancel(ctx context.Context, interviewID string) error {
	_, err := c.postJSON(ctx, "InterviewAPI.Cancel", interviewPath(interviewID, "/cancel"), nil)
	return err
}

// Audio is a recorded answer clip.
type Audio struct {
	Data     []byte
	MIMEType string
	Seconds  int
}

func (c *Client) SubmitAnswer(ctx context.Context, interviewID, questionID, answer string, audio *Audio) (*Response, error) {
	const op = "InterviewAPI.SubmitAnswer"

	fields := map[string]string{"questionId": questionID, "answer": answer}
	var files []Upload
	if audio != nil && len(audio.Data) > 0 {
		files = append(files, Upload{Field: "audio", FileName: "response.webm", MIMEType: audio.MIMEType, Data: audio.Data})
		if audio.Seconds > 0 {
			fields["duration"] = strconv.Itoa(audio.Seconds)
		}
	}
	buf, ct, err := multipartBody(fields, files...)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid answer upload", err)
	}
	body, err := c.postMultipart(ctx, op, interviewPath(interviewID, "/answer"), buf, ct)
	if err != nil {
		return nil, err
	}

	var out struct {
		QuestionID string             `json:"questionId"`
		Response   Response           `json:"response"`
		Evaluation *models.Evaluation `json:"evaluation"`
	}
	if err := decodeInto(op, unwrap(body, ""), &out); err != nil {
		return nil, err
	}
	r := out.Response
	r.QuestionID = firstNonEmpty(out.QuestionID, r.QuestionID, questionID)
	r.Evaluation = out.Evaluation
	return &r, nil
}

func (c *Client) NextQuestion(ctx context.Context, interviewID string) (*NextQuestion, error) {
	const op = "InterviewAPI.NextQuestion"

	body, err := c.get(ctx, op, interviewPath(interviewID, "/next-question"))
	if err != nil {
		return nil, err
	}
	var out struct {
		Complete       bool          `json:"complete"`
		Question       *wireQuestion `json:"question"`
		QuestionNumber int           `json:"questionNumber"`
		TotalQuestions int           `json:"totalQuestions"`
	}
	raw := unwrap(body, "")
	if err := decodeInto(op, raw, &out); err != nil {
		return nil, err
	}
	if out.Question == nil && !out.Complete {
		// bare question body
		var q wireQuestion
		if err := decodeInto(op, raw, &q); err != nil {
			return nil, err
		}
		if q.ID == "" && q.MongoID == "" {
			return nil, utils.E(utils.CodeInternal, op, "unexpected response shape", nil)
		}
		out.Question = &q
	}

	next := &NextQuestion{Complete: out.Complete, Number: out.QuestionNumber, Total: out.TotalQuestions}
	if out.Question != nil {
		q := out.Question.toQuestion()
		next.Question = &q
	}
	return next, nil
}

type HistoryQuery struct {
	Status models.InterviewStatus
	Kind   Kind
	Page   int
	Limit  int
}

func (c *Client) History(ctx context.Context, q HistoryQuery) ([]Interview, error) {
	const op = "InterviewAPI.History"

	v := url.Values{}
	if q.Status != "" {
		v.Set("status", string(q.Status))
	}
	if q.Kind != "" {
		v.Set("type", string(ServerType(q.Kind)))
	}
	if q.Page > 0 {
		v.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/interview"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}

	body, err := c.get(ctx, op, path)
	if err != nil {
		return nil, err
	}
	var rows []wireInterview
	if err := decodeInto(op, unwrap(body, "interviews"), &rows); err != nil {
		return nil, err
	}
	out := make([]Interview, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toInterview())
	}
	return out, nil
}

func (c *Client) Feedback(ctx context.Context, interviewID string) (*Feedback, error) {
	const op = "InterviewAPI.Feedback"

	body, err := c.get(ctx, op, interviewPath(interviewID, "/feedback"))
	if err != nil {
		return nil, err
	}
	var fb Feedback
	if err := decodeInto(op, unwrap(body, ""), &fb); err != nil {
		return nil, err
	}
	return &fb, nil
}

func (c *Client) Transcribe(ctx context.Context, audio Audio) (*Transcript, error) {
	const op = "InterviewAPI.Transcribe"

	buf, ct, err := multipartBody(nil, Upload{Field: "audio", FileName: "audio.webm", MIMEType: audio.MIMEType, Data: audio.Data})
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid audio upload", err)
	}
	body, err := c.postMultipart(ctx, op, "/interview/transcribe", buf, ct)
	if err != nil {
		return nil, err
	}
	var t Transcript
	if err := decodeInto(op, unwrap(body, ""), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (c *Client) AnalyzeConfidence(ctx context.Context, interviewID string, video Upload) (*Confidence, error) {
	const op = "InterviewAPI.AnalyzeConfidence"

	video.Field = "video"
	if video.FileName == "" {
		video.FileName = "video.webm"
	}
	fields := map[string]string{}
	if interviewID != "" {
		fields["interviewId"] = interviewID
	}
	buf, ct, err := multipartBody(fields, video)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid video upload", err)
	}
	body, err := c.postMultipart(ctx, op, "/interview/analyze-confidence", buf, ct)
	if err != nil {
		return nil, err
	}
	var out Confidence
	if err := decodeInto(op, unwrap(body, ""), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type ScheduleParams struct {
	UserID      string
	JobID       string
	ScheduledAt time.Time
	Kind        Kind
}

func (c *Client) Schedule(ctx context.Context, p ScheduleParams) (*Interview, error) {
	const op = "InterviewAPI.Schedule"

	body, err := c.postJSON(ctx, op, "/interview/schedule", map[string]any{
		"userId":      p.UserID,
		"jobId":       p.JobID,
		"scheduledAt": p.ScheduledAt.UTC().Format(time.RFC3339),
		"type":        ServerType(p.Kind),
	})
	if err != nil {
		return nil, err
	}
	iv, err := decodeInterview(body)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "unexpected response shape", err)
	}
	return iv, nil
}
