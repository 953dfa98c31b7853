package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"peerprep/interview/internal/aiproxy"
	"peerprep/interview/internal/anticheat"
	"peerprep/interview/internal/apperrors"
	"peerprep/interview/internal/eventbus"
	"peerprep/interview/internal/models"
	"peerprep/interview/internal/sandbox"
	"peerprep/interview/internal/statemachine"
	"peerprep/interview/internal/token"
)

// wireEvent is the JSON shape of one anti-cheat event in a request body;
// toIncomingEvents lowers it to the engine's internal representation.
type wireEvent struct {
	Seq      int64          `json:"seq"`
	Type     string         `json:"type"`
	Details  map[string]any `json:"details,omitempty"`
	Ts       time.Time      `json:"ts"`
	PrevHash string         `json:"prevHash"`
}

func toIncomingEvents(events []wireEvent) []anticheat.IncomingEvent {
	out := make([]anticheat.IncomingEvent, len(events))
	for i, e := range events {
		out[i] = anticheat.IncomingEvent{Seq: e.Seq, Type: e.Type, Details: e.Details, Ts: e.Ts, PrevHash: e.PrevHash}
	}
	return out
}

type nextQuestionResponse struct {
	QuestionID     string         `json:"questionId"`
	QuestionNumber int            `json:"questionNumber"`
	Type           models.QuestionType `json:"type"`
	Text           string         `json:"text"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// handleNextQuestion drives the Ready->Active transition on the session's
// first question and every later call otherwise just advances AskedCount;
// statemachine.CauseFirstQuestion is the cause recorded for that edge.
func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyBearer(r, token.AudienceAIPT, id, true); err != nil {
		writeError(w, err)
		return
	}

	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if session.State == models.StateReady {
		session, err = s.sm.Transition(r.Context(), id, models.StateActive, statemachine.CauseFirstQuestion)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	if session.State != models.StateActive {
		writeError(w, apperrors.New(apperrors.InvalidState, "session is not active"))
		return
	}

	if _, loaded := s.nextQuestionInFlight.LoadOrStore(id, struct{}{}); loaded {
		writeError(w, apperrors.New(apperrors.AlreadyInFlight, "a next-question request is already in flight for this session"))
		return
	}
	defer s.nextQuestionInFlight.Delete(id)

	draft, err := s.ai.GenerateQuestion(r.Context(), aiproxy.QuestionRequest{
		SessionID:    id,
		RoleCategory: session.RoleCategory,
		Difficulty:   session.Difficulty,
		Ordinal:      session.AskedCount + 1,
		Remaining:    session.QuestionCount - session.AskedCount,
	}, modesOf(session), session.IncludeCuratedQuestions)
	if err != nil {
		writeError(w, err)
		return
	}

	question := &models.Question{Type: draft.Type, Text: draft.Text, Metadata: draft.Metadata}
	if err := s.store.WithSessionLock(id, func() error {
		return s.store.AppendQuestion(r.Context(), session, question)
	}); err != nil {
		writeError(w, err)
		return
	}

	s.hub.GetOrCreate(id).Publish(eventbus.QuestionCreated, question)

	writeJSON(w, http.StatusOK, nextQuestionResponse{
		QuestionID: question.ID, QuestionNumber: question.Ordinal, Type: question.Type,
		Text: question.Text, Metadata: question.Metadata,
	})
}

func modesOf(session *models.Session) []models.QuestionMode {
	modes := make([]models.QuestionMode, len(session.Modes))
	for i, m := range session.Modes {
		modes[i] = models.QuestionMode(m)
	}
	return modes
}

type answerRequest struct {
	QuestionID  string              `json:"questionId"`
	Kind        models.AnswerKind   `json:"kind"`
	Payload     map[string]any      `json:"payload"`
	Transcript  string              `json:"transcript,omitempty"`
	TimeSpentS  int                 `json:"timeSpentSeconds"`
}

type answerResponse struct {
	AnswerID    string `json:"answerId"`
	Score       int    `json:"score,omitempty"`
	Comment     string `json:"comment,omitempty"`
	ModelAnswer string `json:"modelAnswer,omitempty"`
	Fallback    bool   `json:"fallbackUsed,omitempty"`
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyBearer(r, token.AudienceIST, id, false); err != nil {
		writeError(w, err)
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuestionID == "" {
		writeError(w, apperrors.New(apperrors.ValidationFailed, "invalid answer body"))
		return
	}

	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	answer := &models.Answer{
		QuestionID: req.QuestionID, Kind: req.Kind, Payload: req.Payload,
		Transcript: req.Transcript, TimeSpentS: req.TimeSpentS,
	}
	if err := s.store.WithSessionLock(id, func() error {
		return s.store.AppendAnswer(r.Context(), session, answer)
	}); err != nil {
		writeError(w, err)
		return
	}
	s.hub.GetOrCreate(id).Publish(eventbus.AnswerRecorded, answer)

	var question models.Question
	questions, _, qerr := s.store.QuestionsAndAnswers(r.Context(), id)
	if qerr == nil {
		for _, q := range questions {
			if q.ID == req.QuestionID {
				question = q
				break
			}
		}
	}

	draft, fallback := s.ai.GenerateFeedback(r.Context(), id, aiproxy.FeedbackRequest{Question: question, Answer: *answer})
	s.hub.GetOrCreate(id).Publish(eventbus.FeedbackCreated, draft)

	writeJSON(w, http.StatusOK, answerResponse{
		AnswerID: answer.ID, Score: draft.Score, Comment: draft.Comment,
		ModelAnswer: draft.ModelAnswer, Fallback: fallback,
	})
}

type codeEvalRequest struct {
	Language     string              `json:"language"`
	Code         string              `json:"code"`
	FunctionName string              `json:"functionName"`
	Tests        []sandbox.TestCase  `json:"tests"`
}

func (s *Server) handleCodeEval(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyBearer(r, token.AudienceIST, id, false); err != nil {
		writeError(w, err)
		return
	}
	if s.sandbox == nil {
		writeError(w, apperrors.New(apperrors.ProviderUnavailable, "code execution sandbox is unavailable"))
		return
	}

	var req codeEvalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" || req.FunctionName == "" {
		writeError(w, apperrors.New(apperrors.ValidationFailed, "invalid code-eval body"))
		return
	}

	result, err := s.sandbox.CodeEval(r.Context(), sandbox.Language(req.Language), req.Code, req.FunctionName, req.Tests)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type antiCheatRequest struct {
	Events []wireEvent `json:"events"`
}

type antiCheatResponse struct {
	TailSeq  int64  `json:"tailSeq"`
	TailHash string `json:"tailHash"`
}

func (s *Server) handleAntiCheat(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyBearer(r, token.AudienceACET, id, false); err != nil {
		writeError(w, err)
		return
	}

	var req antiCheatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.New(apperrors.ValidationFailed, "invalid anti-cheat batch body"))
		return
	}

	tailSeq, tailHash, err := s.ac.IngestBatch(r.Context(), id, toIncomingEvents(req.Events))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, antiCheatResponse{TailSeq: tailSeq, TailHash: tailHash})
}

func (s *Server) handleAntiCheatTail(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyCookieOrBearer(r); err != nil {
		writeError(w, err)
		return
	}
	tailSeq, tailHash, err := s.ac.Tail(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"seq": tailSeq, "hash": tailHash})
}

type summaryResponse struct {
	Rubric           map[string]any `json:"rubric"`
	Strengths        []string       `json:"strengths"`
	Gaps             []string       `json:"gaps"`
	AntiCheatVerdict models.AntiCheatVerdict `json:"antiCheatVerdict"`
	FallbackUsed     bool           `json:"fallbackUsed"`
}

// handleFinalize generates the summary via the AI Proxy (never erroring,
// per SPEC_FULL.md §4.5), transitions the session to Completed carrying
// that summary as the transition's own fan-out payload (one
// SESSION_COMPLETED frame per finalize call, not two), and only then
// persists the summary row, so a finalize that loses a race against a
// major strike never leaves an orphaned summary behind.
func (s *Server) handleFinalize(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyBearer(r, token.AudienceIST, id, false); err != nil {
		writeError(w, err)
		return
	}

	preSession, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	questions, answers, err := s.store.QuestionsAndAnswers(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	strikes, err := s.store.ListStrikes(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	draft, fallback := s.ai.GenerateSummary(r.Context(), id, aiproxy.SummaryRequest{Questions: questions, Answers: answers})

	verdict := models.VerdictPass
	if preSession.StrikeMajorCount > 0 {
		verdict = models.VerdictFailed
	} else if preSession.StrikeMinorCount > 0 {
		verdict = models.VerdictWarning
	}

	summary := &models.Summary{
		SessionID: id, RubricScores: draft.Rubric, OverallScore: draft.OverallScore,
		Strengths: draft.Strengths, Gaps: draft.Gaps, Review: toReviewSlice(draft.Review),
		AntiCheatVerdict: verdict, StrikeTimeline: toStrikeTimeline(strikes), FallbackUsed: fallback,
	}

	// Attempt the transition before persisting the summary row: if finalize
	// is racing a major strike that already ended the session, the
	// transition is rejected and no summary is ever written for a session
	// that isn't Completed, preserving the append-only invariant.
	if _, err := s.sm.TransitionWithPayload(r.Context(), id, models.StateCompleted, statemachine.CauseFinalizeRequested, summary); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.WriteSummary(r.Context(), summary); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, summaryResponse{
		Rubric: draft.Rubric, Strengths: draft.Strengths, Gaps: draft.Gaps,
		AntiCheatVerdict: verdict, FallbackUsed: fallback,
	})
}

func toReviewSlice(review []map[string]any) models.JSONSlice {
	out := make(models.JSONSlice, len(review))
	for i, item := range review {
		out[i] = item
	}
	return out
}

func toStrikeTimeline(strikes []models.Strike) models.JSONSlice {
	out := make(models.JSONSlice, len(strikes))
	for i, st := range strikes {
		out[i] = map[string]any{
			"type": st.Type, "severity": st.Severity, "action": st.Action,
			"seq": st.TriggeringSeq, "at": st.CreatedAt,
		}
	}
	return out
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyCookieOrBearer(r); err != nil {
		writeError(w, err)
		return
	}
	summary, err := s.store.GetSummary(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleReview(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyCookieOrBearer(r); err != nil {
		writeError(w, err)
		return
	}
	questions, answers, err := s.store.QuestionsAndAnswers(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"questions": questions, "answers": answers})
}

type stateResponse struct {
	State          models.SessionState `json:"state"`
	AskedCount     int                  `json:"askedCount"`
	AnsweredCount  int                  `json:"answeredCount"`
	StrikeMinor    int                  `json:"strikeMinorCount"`
	StrikeMajor    int                  `json:"strikeMajorCount"`
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	id := sessionIDParam(r)
	if _, err := s.verifyCookieOrBearer(r); err != nil {
		writeError(w, err)
		return
	}
	session, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stateResponse{
		State: session.State, AskedCount: session.AskedCount, AnsweredCount: session.AnsweredCount,
		StrikeMinor: session.StrikeMinorCount, StrikeMajor: session.StrikeMajorCount,
	})
}
