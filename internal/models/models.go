// Package models holds the GORM-backed domain entities persisted by the
// Session Store, plus the enums and JSON wire types shared across
// components.
package models

import (
	"time"
)

// SessionState is the session's single mutable lifecycle field. The State
// Machine is the only writer.
type SessionState string

const (
	StatePendingPrecheck SessionState = "PendingPrecheck"
	StateReady           SessionState = "Ready"
	StateActive          SessionState = "Active"
	StatePaused          SessionState = "Paused"
	StateCompleted       SessionState = "Completed"
	StateEnded           SessionState = "Ended"
)

// Terminal reports whether no further mutation of the session is accepted.
func (s SessionState) Terminal() bool {
	return s == StateCompleted || s == StateEnded
}

type QuestionMode string

const (
	ModeBehavioral QuestionMode = "behavioral"
	ModeCoding     QuestionMode = "coding"
	ModeScenario   QuestionMode = "scenario"
	ModeMCQ        QuestionMode = "mcq"
	ModeFIB        QuestionMode = "fib"
	ModeRandom     QuestionMode = "random"
)

type Difficulty string

const (
	DifficultyEasy     Difficulty = "easy"
	DifficultyMedium   Difficulty = "medium"
	DifficultyHard     Difficulty = "hard"
	DifficultyAdaptive Difficulty = "adaptive"
)

// SessionConfig is immutable once the session is created.
type SessionConfig struct {
	RoleCategory            string       `json:"roleCategory" gorm:"column:role_category"`
	ExperienceYears         int          `json:"experienceYears" gorm:"column:experience_years"`
	ExperienceMonths        int          `json:"experienceMonths" gorm:"column:experience_months"`
	Modes                   StringSlice  `json:"modes" gorm:"column:modes"`
	QuestionCount           int          `json:"questionCount" gorm:"column:question_count"`
	DurationLimit           int          `json:"durationLimit" gorm:"column:duration_limit"`
	Language                string       `json:"language" gorm:"column:language"`
	Accent                  string       `json:"accent" gorm:"column:accent"`
	Difficulty              Difficulty   `json:"difficulty" gorm:"column:difficulty"`
	JobDescription          string       `json:"jobDescription,omitempty" gorm:"column:job_description"`
	ResumeRef               string       `json:"resumeRef,omitempty" gorm:"column:resume_ref"`
	CompanyTargets          StringSlice  `json:"companyTargets" gorm:"column:company_targets"`
	IncludeCuratedQuestions bool         `json:"includeCuratedQuestions" gorm:"column:include_curated_questions"`
	AllowAIGenerated        bool         `json:"allowAIGenerated" gorm:"column:allow_ai_generated"`
	AllowMCQ                bool         `json:"allowMCQ" gorm:"column:allow_mcq"`
	AllowFIB                bool         `json:"allowFIB" gorm:"column:allow_fib"`
	ConsentRecording        bool         `json:"consentRecording" gorm:"column:consent_recording"`
	ConsentAntiCheat        bool         `json:"consentAntiCheat" gorm:"column:consent_anti_cheat"`
	ConsentTimestamp        time.Time    `json:"consentTimestamp" gorm:"column:consent_timestamp"`
}

// Session is the aggregate root. All other entities reference SessionID and
// are orphaned without it.
type Session struct {
	ID     string `json:"sessionId" gorm:"primaryKey;column:id"`
	UserID string `json:"userId" gorm:"index;column:user_id"`

	SessionConfig

	State SessionState `json:"state" gorm:"column:state"`

	AskedCount       int `json:"askedCount" gorm:"column:asked_count"`
	AnsweredCount    int `json:"answeredCount" gorm:"column:answered_count"`
	StrikeMinorCount int `json:"strikeMinorCount" gorm:"column:strike_minor_count"`
	StrikeMajorCount int `json:"strikeMajorCount" gorm:"column:strike_major_count"`
	TailSeq          int64  `json:"tailSeq" gorm:"column:tail_seq"`
	TailHash         string `json:"tailHash" gorm:"column:tail_hash"`

	// TokenGen is bumped on every transition out of Active; it is embedded in
	// minted IST/ACET/AIPT/WST claims and re-checked when AIPT and WST tokens
	// are verified, which is how those outstanding tokens for the session are
	// invalidated without a revocation list. UPTs are minted without it and
	// are not invalidated by a transition.
	TokenGen int64 `json:"-" gorm:"column:token_gen"`

	PrecheckStatus string `json:"-" gorm:"column:precheck_status"`
	PrecheckChecks JSONMap `json:"-" gorm:"column:precheck_checks"`

	CreatedAt time.Time  `json:"createdAt" gorm:"column:created_at"`
	StartedAt *time.Time `json:"startedAt,omitempty" gorm:"column:started_at"`
	EndedAt   *time.Time `json:"endedAt,omitempty" gorm:"column:ended_at"`
}

func (Session) TableName() string { return "sessions" }

// QuestionType is the discriminator for a Question's metadata shape.
type QuestionType string

const (
	QuestionBehavioral QuestionType = "behavioral"
	QuestionCoding     QuestionType = "coding"
	QuestionScenario   QuestionType = "scenario"
	QuestionMCQ        QuestionType = "mcq"
	QuestionFIB        QuestionType = "fib"
)

// Question is immutable once created. The gateway's next-question handler
// builds it from an AI Proxy draft and persists it via Store.AppendQuestion;
// the State Machine does not create questions.
type Question struct {
	ID        string       `json:"questionId" gorm:"primaryKey;column:id"`
	SessionID string       `json:"-" gorm:"index;column:session_id"`
	Ordinal   int          `json:"questionNumber" gorm:"column:ordinal"`
	Type      QuestionType `json:"type" gorm:"column:type"`
	Text      string       `json:"text" gorm:"column:text"`
	Metadata  JSONMap      `json:"metadata,omitempty" gorm:"column:metadata"`
	CreatedAt time.Time    `json:"-" gorm:"column:created_at"`
}

func (Question) TableName() string { return "questions" }

// AnswerKind is the discriminator for an Answer's payload.
type AnswerKind string

const (
	AnswerVoice AnswerKind = "voice"
	AnswerText  AnswerKind = "text"
	AnswerCode  AnswerKind = "code"
	AnswerMCQ   AnswerKind = "mcq"
	AnswerFIB   AnswerKind = "fib"
)

// Answer is immutable once created; at most one per QuestionID.
type Answer struct {
	ID         string     `json:"answerId" gorm:"primaryKey;column:id"`
	SessionID  string     `json:"-" gorm:"index;column:session_id"`
	QuestionID string     `json:"questionId" gorm:"uniqueIndex;column:question_id"`
	Kind       AnswerKind `json:"kind" gorm:"column:kind"`
	Payload    JSONMap    `json:"payload" gorm:"column:payload"`
	Transcript string     `json:"transcript,omitempty" gorm:"column:transcript"`
	TimeSpentS int        `json:"timeSpentSeconds" gorm:"column:time_spent_s"`
	SubmittedAt time.Time `json:"submittedAt" gorm:"column:submitted_at"`
}

func (Answer) TableName() string { return "answers" }

// AntiCheatEvent is immutable once persisted. The chain property holds
// between every event after the first: PrevHash equals HashCanonical of the
// stored predecessor.
type AntiCheatEvent struct {
	SessionID string    `json:"sessionId" gorm:"primaryKey;column:session_id"`
	Seq       int64     `json:"seq" gorm:"primaryKey;column:seq"`
	Type      string    `json:"type" gorm:"column:type"`
	Details   JSONMap   `json:"details,omitempty" gorm:"column:details"`
	Ts        time.Time `json:"ts" gorm:"column:ts"`
	PrevHash  string    `json:"prevHash" gorm:"column:prev_hash"`
}

func (AntiCheatEvent) TableName() string { return "anti_cheat_events" }

// StrikeSeverity classifies an Anti-Cheat policy hit.
type StrikeSeverity string

const (
	SeverityMinor StrikeSeverity = "minor"
	SeverityMajor StrikeSeverity = "major"
)

// StrikeAction is the side-effect the Anti-Cheat Engine requested from the
// State Machine for a given strike.
type StrikeAction string

const (
	ActionNone  StrikeAction = "none"
	ActionPause StrikeAction = "pause"
	ActionEnd   StrikeAction = "end"
)

// Strike is immutable once persisted.
type Strike struct {
	ID             string         `json:"strikeId" gorm:"primaryKey;column:id"`
	SessionID      string         `json:"sessionId" gorm:"index;column:session_id"`
	Severity       StrikeSeverity `json:"severity" gorm:"column:severity"`
	Type           string         `json:"type" gorm:"column:type"`
	TriggeringSeq  int64          `json:"triggeringSeq" gorm:"column:triggering_seq"`
	Action         StrikeAction   `json:"action" gorm:"column:action"`
	CreatedAt      time.Time      `json:"createdAt" gorm:"column:created_at"`
}

func (Strike) TableName() string { return "strikes" }

// AntiCheatVerdict summarizes a session's anti-cheat outcome for the
// Summary.
type AntiCheatVerdict string

const (
	VerdictPass    AntiCheatVerdict = "pass"
	VerdictWarning AntiCheatVerdict = "warning"
	VerdictFailed  AntiCheatVerdict = "failed"
)

// Summary is written once per session, upon finalize.
type Summary struct {
	SessionID        string           `json:"-" gorm:"primaryKey;column:session_id"`
	RubricScores      JSONMap          `json:"rubric" gorm:"column:rubric_scores"`
	OverallScore      int              `json:"-" gorm:"column:overall_score"`
	Strengths         StringSlice      `json:"strengths" gorm:"column:strengths"`
	Gaps              StringSlice      `json:"gaps" gorm:"column:gaps"`
	Review            JSONSlice        `json:"review,omitempty" gorm:"column:review"`
	AntiCheatVerdict   AntiCheatVerdict `json:"antiCheatVerdict" gorm:"column:anti_cheat_verdict"`
	StrikeTimeline     JSONSlice        `json:"strikeTimeline,omitempty" gorm:"column:strike_timeline"`
	FallbackUsed       bool             `json:"fallbackUsed" gorm:"column:fallback_used"`
	CreatedAt          time.Time        `json:"-" gorm:"column:created_at"`
}

func (Summary) TableName() string { return "summaries" }

// UploadCapabilityRecord binds a single-use upload token to a session and is
// the unit the retention sweeper reaps.
type UploadCapabilityRecord struct {
	TokenID   string     `json:"-" gorm:"primaryKey;column:token_id"`
	SessionID string     `json:"-" gorm:"index;column:session_id"`
	Consumed  bool       `json:"-" gorm:"column:consumed"`
	BlobRef   string     `json:"-" gorm:"column:blob_ref"`
	CreatedAt time.Time  `json:"-" gorm:"column:created_at"`
	ExpiresAt time.Time  `json:"-" gorm:"column:expires_at"`
}

func (UploadCapabilityRecord) TableName() string { return "upload_capability_records" }

// ConsumedToken is a migrated table of single-use token ids; no code path
// writes to it. UPT single use is enforced through
// UploadCapabilityRecord.Consumed instead.
type ConsumedToken struct {
	TokenID     string    `gorm:"primaryKey;column:token_id"`
	ConsumedAt  time.Time `gorm:"column:consumed_at"`
}

func (ConsumedToken) TableName() string { return "consumed_tokens" }

// AllTables lists every model the Session Store auto-migrates at startup.
func AllTables() []any {
	return []any{
		&Session{},
		&Question{},
		&Answer{},
		&AntiCheatEvent{},
		&Strike{},
		&Summary{},
		&UploadCapabilityRecord{},
		&ConsumedToken{},
	}
}
