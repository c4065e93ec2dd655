package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"psyeval-server/db"
	"psyeval-server/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// memStore is an in-memory Store. writes counts every mutating call.
type memStore struct {
	nextID         int
	writes         int
	questionnaires map[int]models.Questionnaire
	rows           []models.QuestionRow
	subjects       map[int]models.Subject
	assignments    map[int]models.Assignment
	reports        map[int]models.Report // keyed by assignment id
	reportIDs      map[int]int
	failWith       error
}

func newMemStore() *memStore {
	return &memStore{
		questionnaires: map[int]models.Questionnaire{},
		subjects:       map[int]models.Subject{},
		assignments:    map[int]models.Assignment{},
		reports:        map[int]models.Report{},
		reportIDs:      map[int]int{},
	}
}

func (m *memStore) id() int {
	m.nextID++
	return m.nextID
}

func (m *memStore) ListQuestionnaires(context.Context) ([]models.Questionnaire, error) {
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := []models.Questionnaire{}
	for _, q := range m.questionnaires {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) CreateQuestionnaire(_ context.Context, title, category string) (int, error) {
	m.writes++
	id := m.id()
	m.questionnaires[id] = models.Questionnaire{ID: id, Title: title, Category: category}
	return id, nil
}

func (m *memStore) DeleteQuestionnaire(_ context.Context, id int) error {
	m.writes++
	delete(m.questionnaires, id)
	return nil
}

func (m *memStore) QuestionnaireExists(_ context.Context, title string) (bool, error) {
	for _, q := range m.questionnaires {
		if q.Title == title {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) ListQuestionRows(context.Context) ([]models.QuestionRow, error) {
	return m.rows, nil
}

func (m *memStore) ListQuestionRowsByQuestionnaire(_ context.Context, questionnaireID int) ([]models.QuestionRow, error) {
	var out []models.QuestionRow
	for _, r := range m.rows {
		if r.QuestionnaireID == questionnaireID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memStore) CreateQuestion(_ context.Context, questionnaireID int, text, factor string, answers []models.AnswerInput) (int, error) {
	if _, ok := m.questionnaires[questionnaireID]; !ok {
		return 0, db.ErrInvalidReference
	}
	m.writes++
	id := m.id()
	var f *string
	if factor != "" {
		f = &factor
	}
	for _, a := range answers {
		answerID, answerText, score := m.id(), a.Text, *a.Score
		m.rows = append(m.rows, models.QuestionRow{
			QuestionID: id, QuestionnaireID: questionnaireID, QuestionText: text, Factor: f,
			AnswerID: &answerID, AnswerText: &answerText, Score: &score,
		})
	}
	return id, nil
}

func (m *memStore) DeleteQuestion(_ context.Context, id int) error {
	m.writes++
	return nil
}

func (m *memStore) ListSubjects(context.Context) ([]models.Subject, error) {
	out := []models.Subject{}
	for _, s := range m.subjects {
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) CreateSubject(_ context.Context, sub models.Subject) (int, error) {
	m.writes++
	sub.ID = m.id()
	m.subjects[sub.ID] = sub
	return sub.ID, nil
}

func (m *memStore) CreateAssignment(_ context.Context, subjectID, questionnaireID int) (int, error) {
	_, subjectOK := m.subjects[subjectID]
	_, questionnaireOK := m.questionnaires[questionnaireID]
	if !subjectOK || !questionnaireOK {
		return 0, db.ErrInvalidReference
	}
	m.writes++
	id := m.id()
	m.assignments[id] = models.Assignment{ID: id, SubjectID: subjectID, QuestionnaireID: questionnaireID, Status: models.StatusAssigned}
	return id, nil
}

func (m *memStore) ListAssignments(_ context.Context, subjectID int) ([]models.AssignmentSummary, error) {
	out := []models.AssignmentSummary{}
	for _, a := range m.assignments {
		if a.SubjectID == subjectID {
			out = append(out, models.AssignmentSummary{
				ID:                 a.ID,
				QuestionnaireID:    a.QuestionnaireID,
				QuestionnaireTitle: m.questionnaires[a.QuestionnaireID].Title,
				Status:             a.Status,
			})
		}
	}
	return out, nil
}

func (m *memStore) FindOpenAssignment(_ context.Context, subjectID, questionnaireID int) (int, error) {
	found := 0
	for _, a := range m.assignments {
		if a.SubjectID == subjectID && a.QuestionnaireID == questionnaireID && a.Status == models.StatusAssigned && a.ID > found {
			found = a.ID
		}
	}
	if found == 0 {
		return 0, db.ErrNotFound
	}
	return found, nil
}

func (m *memStore) ListReports(context.Context) ([]models.ReportSummary, error) {
	out := []models.ReportSummary{}
	for assignmentID, r := range m.reports {
		a := m.assignments[assignmentID]
		out = append(out, models.ReportSummary{
			AssignmentID:       assignmentID,
			SubjectName:        m.subjects[a.SubjectID].Name,
			QuestionnaireTitle: m.questionnaires[a.QuestionnaireID].Title,
			TotalScore:         r.TotalScore,
			FactorScores:       r.FactorScores,
			Conclusion:         r.Conclusion,
		})
	}
	return out, nil
}

func (m *memStore) SaveReport(_ context.Context, r models.Report) (int, error) {
	a, ok := m.assignments[r.AssignmentID]
	if !ok {
		return 0, db.ErrInvalidReference
	}
	m.writes++
	id, ok := m.reportIDs[r.AssignmentID]
	if !ok {
		id = m.id()
		m.reportIDs[r.AssignmentID] = id
	}
	r.ID = id
	m.reports[r.AssignmentID] = r
	a.Status = models.StatusReported
	m.assignments[a.ID] = a
	return id, nil
}

func (m *memStore) GetResult(_ context.Context, subjectID, questionnaireID int) (models.Result, error) {
	latest := 0
	for assignmentID := range m.reports {
		a := m.assignments[assignmentID]
		if a.SubjectID == subjectID && a.QuestionnaireID == questionnaireID && assignmentID > latest {
			latest = assignmentID
		}
	}
	if latest == 0 {
		return models.Result{}, db.ErrNotFound
	}
	r := m.reports[latest]
	return models.Result{TotalScore: r.TotalScore, FactorScores: r.FactorScores, Conclusion: r.Conclusion}, nil
}

func (m *memStore) ListScoringKey(_ context.Context, questionnaireID int) ([]models.ScoringKey, error) {
	var key []models.ScoringKey
	for _, r := range m.rows {
		if r.QuestionnaireID != questionnaireID || r.AnswerID == nil {
			continue
		}
		factor := ""
		if r.Factor != nil {
			factor = *r.Factor
		}
		key = append(key, models.ScoringKey{QuestionID: r.QuestionID, Factor: factor, AnswerID: *r.AnswerID, Score: *r.Score})
	}
	return key, nil
}

func setupRouter(store Store) *gin.Engine {
	router := gin.New()
	RegisterRoutes(router, store, "")
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

// seed creates a subject, a questionnaire and an assignment between them.
func seed(t *testing.T, router *gin.Engine) (subjectID, questionnaireID, assignmentID int) {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/subjects", gin.H{"name": "Ana", "age": 30, "gender": "F", "contact": "ana@example.com"})
	require.Equal(t, http.StatusCreated, w.Code)
	subjectID = decode[models.Subject](t, w).ID

	w = doJSON(t, router, http.MethodPost, "/api/questionnaires", gin.H{"title": "Mood", "category": "clinical"})
	require.Equal(t, http.StatusCreated, w.Code)
	questionnaireID = decode[models.Questionnaire](t, w).ID

	w = doJSON(t, router, http.MethodPost, "/api/assignments", gin.H{"subjectId": subjectID, "questionnaireId": questionnaireID})
	require.Equal(t, http.StatusCreated, w.Code)
	assignmentID = decode[models.Assignment](t, w).ID
	return subjectID, questionnaireID, assignmentID
}

func TestRoot(t *testing.T) {
	w := doJSON(t, setupRouter(newMemStore()), http.MethodGet, "/", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Backend is running!", w.Body.String())
}

func TestHealthCheck(t *testing.T) {
	w := doJSON(t, setupRouter(newMemStore()), http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReportRoundTripThroughResults(t *testing.T) {
	router := setupRouter(newMemStore())
	subjectID, questionnaireID, assignmentID := seed(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/reports", gin.H{
		"assignmentId": assignmentID,
		"totalScore":   10,
		"factorScores": gin.H{"anxiety": 3, "depression": 7},
		"conclusion":   "Mild",
	})
	require.Equal(t, http.StatusCreated, w.Code)
	report := decode[models.Report](t, w)
	assert.Equal(t, assignmentID, report.AssignmentID)
	assert.NotZero(t, report.ID)

	w = doJSON(t, router, http.MethodGet, "/api/results/"+strconv.Itoa(subjectID)+"/"+strconv.Itoa(questionnaireID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	result := decode[models.Result](t, w)
	assert.Equal(t, map[string]float64{"anxiety": 3, "depression": 7}, result.FactorScores)
	assert.Equal(t, 10, result.TotalScore)
	assert.Equal(t, "Mild", result.Conclusion)
}

func TestGetResult_NotFound(t *testing.T) {
	router := setupRouter(newMemStore())
	subjectID, questionnaireID, _ := seed(t, router)

	w := doJSON(t, router, http.MethodGet, "/api/results/"+strconv.Itoa(subjectID)+"/"+strconv.Itoa(questionnaireID), nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"No results found for this test"}`, w.Body.String())
}

func TestCreateReport_ZeroTotalAccepted(t *testing.T) {
	router := setupRouter(newMemStore())
	_, _, assignmentID := seed(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/reports", gin.H{
		"assignmentId": assignmentID,
		"totalScore":   0,
		"factorScores": gin.H{},
		"conclusion":   "None",
	})

	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestCreateReport_UnknownAssignment(t *testing.T) {
	router := setupRouter(newMemStore())

	w := doJSON(t, router, http.MethodPost, "/api/reports", gin.H{
		"assignmentId": 99, "totalScore": 1, "factorScores": gin.H{}, "conclusion": "x",
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreate_MissingFieldsWriteNothing(t *testing.T) {
	tests := []struct {
		name string
		path string
		body gin.H
	}{
		{"questionnaire without category", "/api/questionnaires", gin.H{"title": "Mood"}},
		{"question without answers", "/api/questions", gin.H{"questionnaireId": 1, "text": "Q"}},
		{"question with empty answers", "/api/questions", gin.H{"questionnaireId": 1, "text": "Q", "answers": []gin.H{}}},
		{"question answer without score", "/api/questions", gin.H{"questionnaireId": 1, "text": "Q", "answers": []gin.H{{"text": "Yes"}}}},
		{"subject without contact", "/api/subjects", gin.H{"name": "Ana", "age": 30, "gender": "F"}},
		{"assignment without questionnaire", "/api/assignments", gin.H{"subjectId": 1}},
		{"report without totalScore", "/api/reports", gin.H{"assignmentId": 1, "factorScores": gin.H{}, "conclusion": "x"}},
		{"report without conclusion", "/api/reports", gin.H{"assignmentId": 1, "totalScore": 2, "factorScores": gin.H{}}},
		{"responses without responses", "/api/responses", gin.H{"subjectId": 1, "questionnaireId": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			w := doJSON(t, setupRouter(store), http.MethodPost, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, decode[gin.H](t, w), "error")
			assert.Zero(t, store.writes)
		})
	}
}

func TestCreate_ScoresBeyondIntRangeRejected(t *testing.T) {
	tests := []struct {
		name string
		path string
		body gin.H
	}{
		{"answer score too large", "/api/questions", gin.H{"questionnaireId": 1, "text": "Q", "answers": []gin.H{{"text": "Big", "score": 3000000000}}}},
		{"answer score too small", "/api/questions", gin.H{"questionnaireId": 1, "text": "Q", "answers": []gin.H{{"text": "Small", "score": -3000000000}}}},
		{"report total too large", "/api/reports", gin.H{"assignmentId": 1, "totalScore": 3000000000, "factorScores": gin.H{}, "conclusion": "x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore()
			w := doJSON(t, setupRouter(store), http.MethodPost, tt.path, tt.body)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Zero(t, store.writes)
		})
	}
}

func TestQuestionsGroupedWithAnswers(t *testing.T) {
	router := setupRouter(newMemStore())
	_, questionnaireID, _ := seed(t, router)

	w := doJSON(t, router, http.MethodPost, "/api/questions", gin.H{
		"questionnaireId": questionnaireID,
		"text":            "Do you sleep well?",
		"factor":          "sleep",
		"answers":         []gin.H{{"text": "Yes", "score": 0}, {"text": "No", "score": 2}},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	created := decode[gin.H](t, w)
	assert.Equal(t, "Question and answers added successfully", created["message"])

	w = doJSON(t, router, http.MethodGet, "/api/questions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	questions := decode[[]models.Question](t, w)
	require.Len(t, questions, 1)
	assert.Equal(t, "Do you sleep well?", questions[0].Text)
	require.Len(t, questions[0].Answers, 2)
	assert.Equal(t, "Yes", questions[0].Answers[0].Text)
	assert.Equal(t, 2, questions[0].Answers[1].Score)

	w = doJSON(t, router, http.MethodGet, "/api/questionnaires/"+strconv.Itoa(questionnaireID)+"/questions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	views := decode[[]models.QuestionView](t, w)
	require.Len(t, views, 1)
	assert.Equal(t, "sleep", views[0].Factor)
}

func TestCreateQuestion_UnknownQuestionnaire(t *testing.T) {
	w := doJSON(t, setupRouter(newMemStore()), http.MethodPost, "/api/questions", gin.H{
		"questionnaireId": 42, "text": "Q", "answers": []gin.H{{"text": "Yes", "score": 1}},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListEndpoints_EmptyArrays(t *testing.T) {
	router := setupRouter(newMemStore())
	for _, path := range []string{"/api/questionnaires", "/api/questions", "/api/subjects", "/api/reports", "/api/assignments/7"} {
		t.Run(path, func(t *testing.T) {
			w := doJSON(t, router, http.MethodGet, path, nil)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, `[]`, w.Body.String())
		})
	}
}

func TestInvalidPathIDs(t *testing.T) {
	router := setupRouter(newMemStore())
	tests := []struct{ method, path string }{
		{http.MethodDelete, "/api/questionnaires/abc"},
		{http.MethodDelete, "/api/questions/0"},
		{http.MethodGet, "/api/assignments/x"},
		{http.MethodGet, "/api/results/1/y"},
		{http.MethodGet, "/api/questionnaires/-3/questions"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := doJSON(t, router, tt.method, tt.path, nil)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestDeleteQuestionnaire(t *testing.T) {
	store := newMemStore()
	router := setupRouter(store)
	_, questionnaireID, _ := seed(t, router)

	w := doJSON(t, router, http.MethodDelete, "/api/questionnaires/"+strconv.Itoa(questionnaireID), nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"Questionnaire deleted successfully"}`, w.Body.String())
	assert.Empty(t, store.questionnaires)
}

func TestListAssignmentsAndReports(t *testing.T) {
	router := setupRouter(newMemStore())
	subjectID, _, assignmentID := seed(t, router)
	doJSON(t, router, http.MethodPost, "/api/reports", gin.H{
		"assignmentId": assignmentID, "totalScore": 4, "factorScores": gin.H{"a": 4}, "conclusion": "ok",
	})

	w := doJSON(t, router, http.MethodGet, "/api/assignments/"+strconv.Itoa(subjectID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assignments := decode[[]models.AssignmentSummary](t, w)
	require.Len(t, assignments, 1)
	assert.Equal(t, "Mood", assignments[0].QuestionnaireTitle)
	assert.Equal(t, models.StatusReported, assignments[0].Status)

	w = doJSON(t, router, http.MethodGet, "/api/reports", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reports := decode[[]models.ReportSummary](t, w)
	require.Len(t, reports, 1)
	assert.Equal(t, "Ana", reports[0].SubjectName)
	assert.Equal(t, 4, reports[0].TotalScore)
}

func TestSubmitResponses(t *testing.T) {
	store := newMemStore()
	router := setupRouter(store)
	subjectID, questionnaireID, assignmentID := seed(t, router)
	doJSON(t, router, http.MethodPost, "/api/questions", gin.H{
		"questionnaireId": questionnaireID, "text": "Nervous?", "factor": "worry",
		"answers": []gin.H{{"text": "Never", "score": 0}, {"text": "Often", "score": 3}},
	})
	doJSON(t, router, http.MethodPost, "/api/questions", gin.H{
		"questionnaireId": questionnaireID, "text": "Sleep badly?",
		"answers": []gin.H{{"text": "No", "score": 0}, {"text": "Yes", "score": 2}},
	})
	key, _ := store.ListScoringKey(context.Background(), questionnaireID)
	require.Len(t, key, 4)
	responses := map[string]int{
		strconv.Itoa(key[0].QuestionID): key[1].AnswerID, // Often
		strconv.Itoa(key[2].QuestionID): key[3].AnswerID, // Yes
	}

	w := doJSON(t, router, http.MethodPost, "/api/responses", gin.H{
		"subjectId": subjectID, "questionnaireId": questionnaireID, "responses": responses,
	})

	require.Equal(t, http.StatusCreated, w.Code)
	body := decode[gin.H](t, w)
	assert.EqualValues(t, assignmentID, body["assignmentId"])
	assert.EqualValues(t, 5, body["totalScore"])
	assert.EqualValues(t, 5, body["maxScore"])
	assert.Equal(t, "High overall score (5 of 5)", body["conclusion"])
	assert.Equal(t, map[string]any{"worry": 3.0}, body["factorScores"])
	assert.Equal(t, models.StatusReported, store.assignments[assignmentID].Status)

	// The assignment is closed now.
	w = doJSON(t, router, http.MethodPost, "/api/responses", gin.H{
		"subjectId": subjectID, "questionnaireId": questionnaireID, "responses": responses,
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitResponses_ForeignAnswer(t *testing.T) {
	store := newMemStore()
	router := setupRouter(store)
	subjectID, questionnaireID, _ := seed(t, router)
	doJSON(t, router, http.MethodPost, "/api/questions", gin.H{
		"questionnaireId": questionnaireID, "text": "Nervous?",
		"answers": []gin.H{{"text": "Never", "score": 0}},
	})
	key, _ := store.ListScoringKey(context.Background(), questionnaireID)
	require.Len(t, key, 1)
	writes := store.writes

	w := doJSON(t, router, http.MethodPost, "/api/responses", gin.H{
		"subjectId": subjectID, "questionnaireId": questionnaireID,
		"responses": map[string]int{strconv.Itoa(key[0].QuestionID): 9999},
	})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, writes, store.writes)
}

func TestStorageFailureIsGeneric(t *testing.T) {
	store := newMemStore()
	store.failWith = errors.New("connection reset")

	w := doJSON(t, setupRouter(store), http.MethodGet, "/api/questionnaires", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.JSONEq(t, `{"error":"Failed to fetch questionnaires"}`, w.Body.String())
}

func TestTriggerImport(t *testing.T) {
	dir := t.TempDir()
	bank := "title: Mood\ncategory: clinical\nquestions:\n  - text: Sad?\n    answers:\n      - {text: Never, score: 0}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mood.yaml"), []byte(bank), 0o600))
	store := newMemStore()
	router := gin.New()
	RegisterRoutes(router, store, dir)

	w := doJSON(t, router, http.MethodPost, "/api/admin/import", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"imported":["mood.yaml"],"skipped":[],"failed":[]}`, w.Body.String())
	assert.Len(t, store.questionnaires, 1)
}

func TestTriggerImport_NotConfigured(t *testing.T) {
	w := doJSON(t, setupRouter(newMemStore()), http.MethodPost, "/api/admin/import", nil)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
