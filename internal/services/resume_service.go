package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/careerforge/careerforge/internal/models"
	"github.com/careerforge/careerforge/internal/providers/llm"
	pgrepo "github.com/careerforge/careerforge/internal/repositories/postgres"
	"github.com/careerforge/careerforge/internal/storage"
	"github.com/careerforge/careerforge/internal/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const MaxResumeBytes = 10 << 20

var resumeTypes = map[string]string{
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// ResumeMIMEType returns the accepted MIME type for fileName, or "".
func ResumeMIMEType(fileName string) string {
	return resumeTypes[strings.ToLower(filepath.Ext(fileName))]
}

type ResumeService interface {
	Upload(ctx context.Context, userID, fileName string, size int64, r io.Reader) (*models.Resume, error)
	Get(ctx context.Context, userID, id string) (*models.Resume, error)
	List(ctx context.Context, userID string) ([]models.Resume, error)
	Analyze(ctx context.Context, userID, id string) (*models.ResumeAnalysis, error)
	DownloadURL(ctx context.Context, userID, id string) (string, error)
	Delete(ctx context.Context, userID, id string) error
}

type resumeService struct {
	repo    pgrepo.ResumeRepository
	store   storage.ObjectStore
	llm     llm.Provider
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewResumeService(repo pgrepo.ResumeRepository, store storage.ObjectStore, provider llm.Provider, timeout time.Duration, l logrus.FieldLogger) ResumeService {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if l == nil {
		l = logrus.StandardLogger()
	}
	return &resumeService{repo: repo, store: store, llm: provider, timeout: timeout, log: l.WithField("component", "resume_service")}
}

func (s *resumeService) Upload(ctx context.Context, userID, fileName string, size int64, r io.Reader) (*models.Resume, error) {
	const op = "ResumeService.Upload"

	if userID == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id is required", nil)
	}
	mime := ResumeMIMEType(fileName)
	if mime == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "only PDF, DOC and DOCX files are allowed", nil)
	}
	if size <= 0 || size > MaxResumeBytes {
		return nil, utils.E(utils.CodeInvalidArgument, op, "file too large (max 10MB)", nil)
	}
	if s.store == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "file storage is not configured", nil)
	}

	id := uuid.NewString()
	object := "resumes/" + userID + "/" + id + strings.ToLower(filepath.Ext(fileName))
	path, err := s.store.Upload(ctx, object, mime, io.LimitReader(r, MaxResumeBytes))
	if err != nil {
		return nil, utils.E(utils.CodeUnavailable, op, "failed to store resume", err)
	}

	row := &models.Resume{
		ID:         id,
		UserID:     userID,
		FileName:   filepath.Base(fileName),
		FilePath:   path,
		FileSize:   int(size),
		MimeType:   mime,
		Status:     models.ResumeUploaded,
		Skills:     []string{},
		UploadedAt: time.Now().UTC(),
	}
	if err := s.repo.Insert(ctx, row); err != nil {
		_ = s.store.Delete(ctx, object)
		return nil, utils.E(utils.CodeInternal, op, "failed to save resume", err)
	}
	return row, nil
}

func (s *resumeService) Get(ctx context.Context, userID, id string) (*models.Resume, error) {
	const op = "ResumeService.Get"

	if userID == "" || id == "" {
		return nil, utils.E(utils.CodeInvalidArgument, op, "user_id and id are required", nil)
	}
	row, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return nil, utils.E(utils.CodeNotFound, op, "resume not found", err)
		}
		return nil, utils.E(utils.CodeInternal, op, "failed to load resume", err)
	}
	return row, nil
}

func (s *resumeService) List(ctx context.Context, userID string) ([]models.Resume, error) {
	const op = "ResumeService.List"

	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to list resumes", err)
	}
	if rows == nil {
		rows = []models.Resume{}
	}
	return rows, nil
}

const resumePrompt = `Analyze the attached resume for a job seeker.
Return JSON: {"summary":string,"skills":[string],"strengths":[string],"improvements":[string],"suggestedRoles":[string],"atsScore":0-100}`

func (s *resumeService) Analyze(ctx context.Context, userID, id string) (*models.ResumeAnalysis, error) {
	const op = "ResumeService.Analyze"

	row, err := s.Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if s.llm == nil || s.store == nil {
		return nil, utils.E(utils.CodeUnavailable, op, "resume analysis is not available", nil)
	}

	if err := s.repo.SetStatus(ctx, row.ID, models.ResumeAnalyzing); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to update resume", err)
	}
	fail := func(code utils.Code, msg string, err error) (*models.ResumeAnalysis, error) {
		if serr := s.repo.SetStatus(ctx, row.ID, models.ResumeFailed); serr != nil {
			s.log.WithError(serr).Warn("mark resume failed")
		}
		return nil, utils.E(code, op, msg, err)
	}

	actx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.store.Download(actx, storage.ObjectName(row.FilePath), MaxResumeBytes)
	if err != nil {
		return fail(utils.CodeUnavailable, "failed to read resume file", err)
	}

	raw, err := s.llm.Generate(actx, resumePrompt, llm.Attachment{MIMEType: row.MimeType, Data: data})
	if err != nil {
		if errors.Is(err, llm.ErrAttachmentUnsupported) {
			return fail(utils.CodeUnavailable, "the configured model cannot read resume files", err)
		}
		return fail(utils.CodeUnavailable, "resume analysis failed", err)
	}

	body := []byte(llm.ExtractJSON(raw))
	var a models.ResumeAnalysis
	if err := json.Unmarshal(body, &a); err != nil {
		return fail(utils.CodeInternal, "invalid analysis response", err)
	}
	if a.ATSScore < 0 || a.ATSScore > 100 {
		a.ATSScore = int(clamp(float64(a.ATSScore), 0, 100))
	}
	normalized, _ := json.Marshal(a)
	if err := s.repo.SaveAnalysis(ctx, row.ID, a, normalized); err != nil {
		return nil, utils.E(utils.CodeInternal, op, "failed to save analysis", err)
	}
	return &a, nil
}

func (s *resumeService) DownloadURL(ctx context.Context, userID, id string) (string, error) {
	const op = "ResumeService.DownloadURL"

	row, err := s.Get(ctx, userID, id)
	if err != nil {
		return "", err
	}
	if s.store == nil {
		return "", utils.E(utils.CodeUnavailable, op, "file storage is not configured", nil)
	}
	url, err := s.store.SignedGetURL(ctx, storage.ObjectName(row.FilePath), 15*time.Minute)
	if err != nil {
		return "", utils.E(utils.CodeUnavailable, op, "failed to sign url", err)
	}
	return url, nil
}

func (s *resumeService) Delete(ctx context.Context, userID, id string) error {
	const op = "ResumeService.Delete"

	row, err := s.Get(ctx, userID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, userID, id); err != nil {
		if errors.Is(err, utils.ErrNotFound) {
			return utils.E(utils.CodeNotFound, op, "resume not found", err)
		}
		return utils.E(utils.CodeInternal, op, "failed to delete resume", err)
	}
	if s.store != nil {
		if err := s.store.Delete(ctx, storage.ObjectName(row.FilePath)); err != nil {
			s.log.WithError(err).Warn("delete stored resume failed")
		}
	}
	return nil
}
