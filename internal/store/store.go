// Package store is the Session Store: authoritative persistence for
// sessions, questions, answers, anti-cheat events, and summaries, with the
// append-only invariants from spec.md §3 enforced at the write path.
package store

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/models"
)

// Store wraps a *gorm.DB with per-session write serialization, grounded in
// the teacher's ai service's Postgres wiring (same DSN-from-config style)
// and the match service's per-key sync.Map sharded-lock shape.
type Store struct {
	db    *gorm.DB
	locks sync.Map // sessionID -> *sync.Mutex
}

// Open connects to Postgres and auto-migrates every model, the same
// sequence as the teacher's ai/cmd/server/main.go initDatabase.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to connect to database", err)
	}
	if err := db.AutoMigrate(models.AllTables()...); err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to migrate database", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an already-open, already-migrated *gorm.DB. It exists so
// other packages' tests can stand up a Store against an in-memory SQLite
// database instead of a real Postgres instance, the same role the teacher's
// UserRepository{DB: db} literal plays for its own tests.
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// WithSessionLock serializes fn against every other write to this session.
// The State Machine, Anti-Cheat Engine, and answer/question append paths
// all go through this so the mutex is the single point of write
// serialization spec.md §4.2 and §5 require.
func (s *Store) WithSessionLock(sessionID string, fn func() error) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// CreateSession persists a new session in PendingPrecheck and returns its id.
func (s *Store) CreateSession(ctx context.Context, userID string, cfg models.SessionConfig) (*models.Session, error) {
	session := &models.Session{
		ID:            uuid.NewString(),
		UserID:        userID,
		SessionConfig: cfg,
		State:         models.StatePendingPrecheck,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.db.WithContext(ctx).Create(session).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to create session", err)
	}
	return session, nil
}

// GetSession is a read-through lookup.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.NotFound, "session not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to load session", err)
	}
	return &session, nil
}

// UpdateSession persists an in-memory mutation of a session record.
// Callers must already hold the session's lock (via WithSessionLock).
func (s *Store) UpdateSession(ctx context.Context, session *models.Session) error {
	if err := s.db.WithContext(ctx).Save(session).Error; err != nil {
		return apperrors.Wrap(apperrors.Internal, "failed to persist session", err)
	}
	return nil
}

// AppendQuestion assigns the next gapless ordinal and persists the question.
// Rejects if the session is not Active. Callers must hold the session lock.
func (s *Store) AppendQuestion(ctx context.Context, session *models.Session, q *models.Question) error {
	if session.State != models.StateActive {
		return apperrors.New(apperrors.InvalidState, "session is not active")
	}
	if session.AskedCount >= session.QuestionCount {
		return apperrors.New(apperrors.InvalidState, "question count exhausted")
	}
	session.AskedCount++
	q.ID = uuid.NewString()
	q.SessionID = session.ID
	q.Ordinal = session.AskedCount
	q.CreatedAt = time.Now().UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(q).Error; err != nil {
			return apperrors.Wrap(apperrors.Internal, "failed to persist question", err)
		}
		if err := tx.Save(session).Error; err != nil {
			return apperrors.Wrap(apperrors.Internal, "failed to persist session counters", err)
		}
		return nil
	})
}

// AppendAnswer rejects a second answer for the same question. Callers must
// hold the session lock.
func (s *Store) AppendAnswer(ctx context.Context, session *models.Session, a *models.Answer) error {
	if session.State != models.StateActive {
		return apperrors.New(apperrors.InvalidState, "session is not active")
	}

	var existing models.Answer
	err := s.db.WithContext(ctx).First(&existing, "question_id = ?", a.QuestionID).Error
	if err == nil {
		return apperrors.New(apperrors.AlreadyExists, "answer already recorded for this question")
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.Wrap(apperrors.Internal, "failed to check for existing answer", err)
	}

	a.ID = uuid.NewString()
	a.SessionID = session.ID
	a.SubmittedAt = time.Now().UTC()
	session.AnsweredCount++

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return apperrors.Wrap(apperrors.Internal, "failed to persist answer", err)
		}
		if err := tx.Save(session).Error; err != nil {
			return apperrors.Wrap(apperrors.Internal, "failed to persist session counters", err)
		}
		return nil
	})
}

// AppendAntiCheatBatch persists events atomically and advances the tail.
// Chain validation happens in internal/anticheat before this is called;
// this method trusts its caller and only enforces terminal-state rejection.
func (s *Store) AppendAntiCheatBatch(ctx context.Context, session *models.Session, events []models.AntiCheatEvent, newTailSeq int64, newTailHash string) error {
	if session.State.Terminal() {
		return apperrors.New(apperrors.InvalidState, "session is terminal")
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(events) > 0 {
			if err := tx.Create(&events).Error; err != nil {
				return apperrors.Wrap(apperrors.Internal, "failed to persist anti-cheat batch", err)
			}
		}
		session.TailSeq = newTailSeq
		session.TailHash = newTailHash
		if err := tx.Save(session).Error; err != nil {
			return apperrors.Wrap(apperrors.Internal, "failed to persist session tail", err)
		}
		return nil
	})
}

// LatestAntiCheatEvent returns the stored predecessor for chain validation,
// or nil if the session has no events yet.
func (s *Store) LatestAntiCheatEvent(ctx context.Context, sessionID string) (*models.AntiCheatEvent, error) {
	var ev models.AntiCheatEvent
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("seq DESC").
		First(&ev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to load anti-cheat tail", err)
	}
	return &ev, nil
}

// AppendStrike persists a derived strike record.
func (s *Store) AppendStrike(ctx context.Context, strike *models.Strike) error {
	strike.ID = uuid.NewString()
	strike.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(strike).Error; err != nil {
		return apperrors.Wrap(apperrors.Internal, "failed to persist strike", err)
	}
	return nil
}

// CountStrikesByType returns how many strikes of a given event type have
// been recorded for a session, used by the Anti-Cheat Engine's per-type
// repeat thresholds (e.g. "auto-end on 2nd FS_EXIT").
func (s *Store) CountStrikesByType(ctx context.Context, sessionID, eventType string) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Strike{}).
		Where("session_id = ? AND type = ?", sessionID, eventType).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.Internal, "failed to count strikes by type", err)
	}
	return count, nil
}

// CountStrikesBySeverity returns how many strikes of a given severity have
// been recorded for a session, used by the Anti-Cheat Engine's cumulative
// minor-strike threshold (e.g. "auto-pause on 3rd minor").
func (s *Store) CountStrikesBySeverity(ctx context.Context, sessionID string, severity models.StrikeSeverity) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&models.Strike{}).
		Where("session_id = ? AND severity = ?", sessionID, severity).
		Count(&count).Error
	if err != nil {
		return 0, apperrors.Wrap(apperrors.Internal, "failed to count strikes by severity", err)
	}
	return count, nil
}

// ListStrikes returns every strike for a session in creation order, for the
// summary's strike timeline.
func (s *Store) ListStrikes(ctx context.Context, sessionID string) ([]models.Strike, error) {
	var strikes []models.Strike
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at ASC").Find(&strikes).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to list strikes", err)
	}
	return strikes, nil
}

// WriteSummary stores the session's summary, idempotent via upsert on
// session id. It checks neither the caller nor the session's state; the
// gateway's finalize handler calls it.
func (s *Store) WriteSummary(ctx context.Context, summary *models.Summary) error {
	summary.CreatedAt = time.Now().UTC()
	err := s.db.WithContext(ctx).
		Where("session_id = ?", summary.SessionID).
		Assign(summary).
		FirstOrCreate(summary).Error
	if err != nil {
		return apperrors.Wrap(apperrors.Internal, "failed to persist summary", err)
	}
	return nil
}

// GetSummary reads the summary for a session, if it exists.
func (s *Store) GetSummary(ctx context.Context, sessionID string) (*models.Summary, error) {
	var summary models.Summary
	err := s.db.WithContext(ctx).First(&summary, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.NotFound, "summary not found")
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to load summary", err)
	}
	return &summary, nil
}

// QuestionsAndAnswers loads the full transcript for finalize/review.
func (s *Store) QuestionsAndAnswers(ctx context.Context, sessionID string) ([]models.Question, []models.Answer, error) {
	var questions []models.Question
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("ordinal ASC").Find(&questions).Error; err != nil {
		return nil, nil, apperrors.Wrap(apperrors.Internal, "failed to load questions", err)
	}
	var answers []models.Answer
	if err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Find(&answers).Error; err != nil {
		return nil, nil, apperrors.Wrap(apperrors.Internal, "failed to load answers", err)
	}
	return questions, answers, nil
}

// CreateUploadCapability records a minted UPT so it can be checked for
// single-use and later reaped by the retention sweeper.
func (s *Store) CreateUploadCapability(ctx context.Context, rec *models.UploadCapabilityRecord) error {
	rec.CreatedAt = time.Now().UTC()
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return apperrors.Wrap(apperrors.Internal, "failed to record upload capability", err)
	}
	return nil
}

// ConsumeUploadCapability marks a UPT's backing record consumed, atomically
// rejecting a second use of the same token id.
func (s *Store) ConsumeUploadCapability(ctx context.Context, tokenID, blobRef string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec models.UploadCapabilityRecord
		err := tx.First(&rec, "token_id = ?", tokenID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.New(apperrors.TokenInvalid, "unrecognized upload capability")
		}
		if err != nil {
			return apperrors.Wrap(apperrors.Internal, "failed to load upload capability", err)
		}
		if rec.Consumed {
			return apperrors.New(apperrors.TokenAlreadyUsed, "upload capability already used")
		}
		rec.Consumed = true
		rec.BlobRef = blobRef
		if err := tx.Save(&rec).Error; err != nil {
			return apperrors.Wrap(apperrors.Internal, "failed to consume upload capability", err)
		}
		return nil
	})
}

// ExpiredUploadCapabilities returns records older than cutoff, for the
// retention sweeper.
func (s *Store) ExpiredUploadCapabilities(ctx context.Context, cutoff time.Time) ([]models.UploadCapabilityRecord, error) {
	var recs []models.UploadCapabilityRecord
	if err := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Find(&recs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.Internal, "failed to list expired upload capabilities", err)
	}
	return recs, nil
}

// DeleteUploadCapabilities removes the given records, for the retention
// sweeper.
func (s *Store) DeleteUploadCapabilities(ctx context.Context, tokenIDs []string) error {
	if len(tokenIDs) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Delete(&models.UploadCapabilityRecord{}, "token_id IN ?", tokenIDs).Error; err != nil {
		return apperrors.Wrap(apperrors.Internal, "failed to delete expired upload capabilities", err)
	}
	return nil
}
