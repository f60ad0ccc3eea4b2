package interviewapi

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"path/filepath"

	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/utils"
)

// Progress reports bytes sent out of total during an upload.
type Progress func(sent, total int64)

type progressReader struct {
	r     io.Reader
	sent  int64
	total int64
	fn    Progress
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.sent += int64(n)
		p.fn(p.sent, p.total)
	}
	return n, err
}

func (c *Client) UploadResume(ctx context.Context, fileName string, data []byte, progress Progress) (*models.Resume, error) {
	const op = "InterviewAPI.UploadResume"

	buf, ct, err := multipartBody(nil, Upload{
		Field:    "resume",
		FileName: filepath.Base(fileName),
		MIMEType: resumeMIME(fileName),
		Data:     data,
	})
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid resume upload", err)
	}

	total := int64(buf.Len())
	var body io.Reader = buf
	if progress != nil {
		body = &progressReader{r: buf, total: total, fn: progress}
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/resume/upload", body, ct)
	if err != nil {
		return nil, utils.E(utils.CodeInvalidArgument, op, "invalid request", err)
	}
	req.ContentLength = total

	resp, err := c.send(req, op)
	if err != nil {
		return nil, err
	}
	var row models.Resume
	if err := decodeInto(op, unwrap(resp, "resume"), &row); err != nil {
		return nil, err
	}
	return &row, nil
}

func (c *Client) AnalyzeResume(ctx context.Context, resumeID string) (*models.ResumeAnalysis, error) {
	const op = "InterviewAPI.AnalyzeResume"

	body, err := c.postJSON(ctx, op, "/resume/"+url.PathEscape(resumeID)+"/analyze", nil)
	if err != nil {
		return nil, err
	}
	var a models.ResumeAnalysis
	if err := decodeInto(op, unwrap(body, "analysis"), &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func resumeMIME(fileName string) string {
	switch filepath.Ext(fileName) {
	case ".pdf", ".PDF":
		return "application/pdf"
	case ".doc", ".DOC":
		return "application/msword"
	case ".docx", ".DOCX":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}
