package upload

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/you/mimora/domain"
)

// Policy is the precheck applied before a file is stored
type Policy struct {
	MaxSizeBytes int64
	AllowedTypes []string
}

// Check sniffs the content type of file and enforces the size limit. The
// declared content type is ignored.
func (p Policy) Check(file domain.UploadFile) (*mimetype.MIME, error) {
	size := int64(len(file.Data))
	if size == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrUploadRejected)
	}
	if p.MaxSizeBytes > 0 && size > p.MaxSizeBytes {
		return nil, fmt.Errorf("%w: file is %d bytes, limit is %d", domain.ErrUploadRejected, size, p.MaxSizeBytes)
	}

	mt := mimetype.Detect(file.Data)
	if len(p.AllowedTypes) > 0 && !mimetype.EqualsAny(mt.String(), p.AllowedTypes...) {
		return nil, fmt.Errorf("%w: type %s is not allowed", domain.ErrUploadRejected, mt.String())
	}
	return mt, nil
}

// LocalUploader implements domain.Uploader by writing files under dir and
// serving them from baseURL
type LocalUploader struct {
	dir     string
	baseURL string
	policy  Policy
	log     *logrus.Entry
}

// NewLocalUploader creates an uploader rooted at dir
func NewLocalUploader(dir, baseURL string, policy Policy, log *logrus.Entry) *LocalUploader {
	return &LocalUploader{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		policy:  policy,
		log:     log.WithField("component", "uploader"),
	}
}

// Upload implements domain.Uploader
func (u *LocalUploader) Upload(ctx context.Context, file domain.UploadFile, category domain.UploadCategory) (string, error) {
	mt, err := u.policy.Check(file)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := uuid.NewString() + mt.Extension()
	dir := filepath.Join(u.dir, string(category))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), file.Data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	url := u.baseURL + path.Join("/", string(category), name)
	u.log.WithFields(logrus.Fields{
		"category": category,
		"type":     mt.String(),
		"size":     len(file.Data),
	}).Info("file uploaded")
	return url, nil
}

var _ domain.Uploader = (*LocalUploader)(nil)
