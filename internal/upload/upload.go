// Package upload implements the Media Upload Endpoint: single-use upload
// capability tokens exchanged for a checksummed blob on disk, grounded on
// original_source/backend/routes/media.py's issue_upt/upload pair and
// hashlib.sha256 checksum, generalized to this module's token.Authority
// and store.Store-backed single-use enforcement.
package upload

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/store"
	"peerprep/interview/internal/token"
)

// Result is what a successful upload resolves to: where the blob landed
// and its content checksum, so callers can attach it to an Answer or
// AntiCheatEvent without re-reading the file.
type Result struct {
	Path     string
	Checksum string
	Bytes    int64
}

// Service issues and redeems upload capability tokens.
type Service struct {
	store *store.Store
	auth  *token.Authority
	dir   string
}

func New(st *store.Store, auth *token.Authority, dir string) *Service {
	return &Service{store: st, auth: auth, dir: dir}
}

// IssueCapability mints one single-use upload capability token (upt) for
// a session and records it as an UploadCapabilityRecord so it can only be
// redeemed once. The token carries no token generation, so a state
// transition does not invalidate it.
func (s *Service) IssueCapability(ctx context.Context, sessionID string) (string, error) {
	tok, jti, err := s.auth.Mint(token.MintParams{
		Audience:  token.AudienceUPT,
		SessionID: sessionID,
		Scopes:    []string{"upload:session:" + sessionID},
		TTL:       token.TTLUPT,
	})
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	if err := s.store.CreateUploadCapability(ctx, &models.UploadCapabilityRecord{
		TokenID:   jti,
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(token.TTLUPT),
	}); err != nil {
		return "", err
	}
	return tok, nil
}

// Upload redeems the capability token exactly once, streams the multipart
// file to disk under a session-scoped, collision-resistant name, and
// returns its sha256 checksum.
func (s *Service) Upload(ctx context.Context, rawToken string, header *multipart.FileHeader, file multipart.File) (Result, error) {
	claims, err := s.auth.Verify(rawToken, token.AudienceUPT, "", nil)
	if err != nil {
		return Result{}, err
	}
	if !claims.HasScope("upload:session:" + claims.SessionID) {
		return Result{}, apperrors.New(apperrors.Unauthenticated, "token missing upload scope")
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return Result{}, apperrors.Wrap(apperrors.Internal, "create upload dir", err)
	}

	fname := fmt.Sprintf("%s_%s_%s", claims.SessionID, uuid.NewString(), filepath.Base(header.Filename))
	dest := filepath.Join(s.dir, fname)

	out, err := os.Create(dest)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.Internal, "create upload file", err)
	}
	defer out.Close()

	hasher := sha256.New()
	n, err := io.Copy(io.MultiWriter(out, hasher), file)
	if err != nil {
		return Result{}, apperrors.Wrap(apperrors.Internal, "write upload file", err)
	}
	checksum := hex.EncodeToString(hasher.Sum(nil))

	if err := s.store.ConsumeUploadCapability(ctx, claims.TokenID, dest); err != nil {
		return Result{}, err
	}

	return Result{Path: dest, Checksum: checksum, Bytes: n}, nil
}
