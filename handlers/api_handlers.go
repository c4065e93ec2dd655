package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"psyeval-server/db"
	"psyeval-server/models"
	"psyeval-server/scoring"
	"psyeval-server/utils"
)

// Store is the storage the handlers need; *db.Store implements it.
type Store interface {
	ListQuestionnaires(ctx context.Context) ([]models.Questionnaire, error)
	CreateQuestionnaire(ctx context.Context, title, category string) (int, error)
	DeleteQuestionnaire(ctx context.Context, id int) error
	QuestionnaireExists(ctx context.Context, title string) (bool, error)

	ListQuestionRows(ctx context.Context) ([]models.QuestionRow, error)
	ListQuestionRowsByQuestionnaire(ctx context.Context, questionnaireID int) ([]models.QuestionRow, error)
	CreateQuestion(ctx context.Context, questionnaireID int, text, factor string, answers []models.AnswerInput) (int, error)
	DeleteQuestion(ctx context.Context, id int) error

	ListSubjects(ctx context.Context) ([]models.Subject, error)
	CreateSubject(ctx context.Context, sub models.Subject) (int, error)

	CreateAssignment(ctx context.Context, subjectID, questionnaireID int) (int, error)
	ListAssignments(ctx context.Context, subjectID int) ([]models.AssignmentSummary, error)
	FindOpenAssignment(ctx context.Context, subjectID, questionnaireID int) (int, error)

	ListReports(ctx context.Context) ([]models.ReportSummary, error)
	SaveReport(ctx context.Context, r models.Report) (int, error)
	GetResult(ctx context.Context, subjectID, questionnaireID int) (models.Result, error)
	ListScoringKey(ctx context.Context, questionnaireID int) ([]models.ScoringKey, error)
}

var _ Store = (*db.Store)(nil)

// storageFailure logs err and writes the generic message. Writes that point
// at a missing subject, questionnaire or assignment, or carry a number the
// columns cannot hold, are the caller's fault and answer 400.
func storageFailure(c *gin.Context, err error, message string) {
	switch {
	case errors.Is(err, db.ErrInvalidReference):
		zap.L().Warn(message, zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Referenced record does not exist"})
		return
	case errors.Is(err, db.ErrOutOfRange):
		zap.L().Warn(message, zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "Score is out of range"})
		return
	}
	zap.L().Error(message, zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": message})
}

// pathID reads a positive integer path parameter, answering 400 when it is not one.
func pathID(c *gin.Context, name string) (int, bool) {
	id, err := utils.ParseID(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return id, true
}

// Root answers the plain-text liveness probe.
// GET /
func Root(c *gin.Context) {
	c.String(http.StatusOK, "Backend is running!")
}

// ListQuestionnaires lists all questionnaires.
// GET /api/questionnaires
func ListQuestionnaires(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		questionnaires, err := store.ListQuestionnaires(c.Request.Context())
		if err != nil {
			storageFailure(c, err, "Failed to fetch questionnaires")
			return
		}
		c.JSON(http.StatusOK, questionnaires)
	}
}

// CreateQuestionnaire adds a questionnaire.
// POST /api/questionnaires
func CreateQuestionnaire(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.QuestionnaireCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Title and category are required"})
			return
		}
		id, err := store.CreateQuestionnaire(c.Request.Context(), req.Title, req.Category)
		if err != nil {
			storageFailure(c, err, "Failed to add questionnaire")
			return
		}
		c.JSON(http.StatusCreated, models.Questionnaire{ID: id, Title: req.Title, Category: req.Category})
	}
}

// DeleteQuestionnaire removes a questionnaire with its questions and assignments.
// DELETE /api/questionnaires/:id
func DeleteQuestionnaire(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := store.DeleteQuestionnaire(c.Request.Context(), id); err != nil {
			storageFailure(c, err, "Failed to delete questionnaire")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Questionnaire deleted successfully"})
	}
}

// ListQuestions lists every question with its answers.
// GET /api/questions
func ListQuestions(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows, err := store.ListQuestionRows(c.Request.Context())
		if err != nil {
			storageFailure(c, err, "Failed to fetch questions")
			return
		}
		c.JSON(http.StatusOK, scoring.GroupQuestions(rows))
	}
}

// ListQuestionnaireQuestions lists the questions of one questionnaire.
// GET /api/questionnaires/:questionnaireId/questions
func ListQuestionnaireQuestions(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		questionnaireID, ok := pathID(c, "questionnaireId")
		if !ok {
			return
		}
		rows, err := store.ListQuestionRowsByQuestionnaire(c.Request.Context(), questionnaireID)
		if err != nil {
			storageFailure(c, err, "Failed to fetch questions")
			return
		}
		c.JSON(http.StatusOK, scoring.Views(scoring.GroupQuestions(rows)))
	}
}

// CreateQuestion adds a question and its answer set.
// POST /api/questions
func CreateQuestion(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.QuestionCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": `Invalid request. Ensure "questionnaireId", "text", and "answers" are provided, and "answers" is a non-empty array of {text, score}.`,
			})
			return
		}
		id, err := store.CreateQuestion(c.Request.Context(), req.QuestionnaireID, req.Text, req.Factor, req.Answers)
		if err != nil {
			storageFailure(c, err, "Failed to add question")
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "message": "Question and answers added successfully"})
	}
}

// DeleteQuestion removes a question and its answers.
// DELETE /api/questions/:id
func DeleteQuestion(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		if err := store.DeleteQuestion(c.Request.Context(), id); err != nil {
			storageFailure(c, err, "Failed to delete question")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Question deleted successfully"})
	}
}

// ListSubjects lists all subjects.
// GET /api/subjects
func ListSubjects(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjects, err := store.ListSubjects(c.Request.Context())
		if err != nil {
			storageFailure(c, err, "Failed to fetch subjects")
			return
		}
		c.JSON(http.StatusOK, subjects)
	}
}

// CreateSubject adds a subject.
// POST /api/subjects
func CreateSubject(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SubjectCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name, age, gender, and contact are required"})
			return
		}
		sub := models.Subject{Name: req.Name, Age: req.Age, Gender: req.Gender, Contact: req.Contact}
		id, err := store.CreateSubject(c.Request.Context(), sub)
		if err != nil {
			storageFailure(c, err, "Failed to add subject")
			return
		}
		sub.ID = id
		c.JSON(http.StatusCreated, sub)
	}
}

// CreateAssignment assigns a questionnaire to a subject.
// POST /api/assignments
func CreateAssignment(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AssignmentCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Subject ID and Questionnaire ID are required"})
			return
		}
		id, err := store.CreateAssignment(c.Request.Context(), req.SubjectID, req.QuestionnaireID)
		if err != nil {
			storageFailure(c, err, "Failed to assign questionnaire")
			return
		}
		c.JSON(http.StatusCreated, models.Assignment{
			ID:              id,
			SubjectID:       req.SubjectID,
			QuestionnaireID: req.QuestionnaireID,
			Status:          models.StatusAssigned,
		})
	}
}

// ListAssignments lists the assignments of a subject.
// GET /api/assignments/:subjectId
func ListAssignments(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID, ok := pathID(c, "subjectId")
		if !ok {
			return
		}
		assignments, err := store.ListAssignments(c.Request.Context(), subjectID)
		if err != nil {
			storageFailure(c, err, "Failed to load assignments")
			return
		}
		c.JSON(http.StatusOK, assignments)
	}
}

// ListReports lists every report with subject and questionnaire names.
// GET /api/reports
func ListReports(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		reports, err := store.ListReports(c.Request.Context())
		if err != nil {
			storageFailure(c, err, "Failed to fetch reports")
			return
		}
		c.JSON(http.StatusOK, reports)
	}
}

// CreateReport stores the outcome of a completed assignment.
// POST /api/reports
func CreateReport(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ReportCreateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Assignment ID, total score, factor scores, and conclusion are required"})
			return
		}
		report := models.Report{
			AssignmentID: req.AssignmentID,
			TotalScore:   *req.TotalScore,
			FactorScores: req.FactorScores,
			Conclusion:   req.Conclusion,
		}
		id, err := store.SaveReport(c.Request.Context(), report)
		if err != nil {
			storageFailure(c, err, "Failed to generate report")
			return
		}
		report.ID = id
		c.JSON(http.StatusCreated, report)
	}
}

// GetResult fetches the report of a subject for one questionnaire.
// GET /api/results/:subjectId/:questionnaireId
func GetResult(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		subjectID, ok := pathID(c, "subjectId")
		if !ok {
			return
		}
		questionnaireID, ok := pathID(c, "questionnaireId")
		if !ok {
			return
		}
		result, err := store.GetResult(c.Request.Context(), subjectID, questionnaireID)
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No results found for this test"})
			return
		}
		if err != nil {
			storageFailure(c, err, "Failed to fetch test results")
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// SubmitResponses scores a subject's responses against the open assignment
// and stores the resulting report.
// POST /api/responses
func SubmitResponses(store Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.ResponsesSubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Subject ID, questionnaire ID, and responses are required"})
			return
		}
		ctx := c.Request.Context()

		assignmentID, err := store.FindOpenAssignment(ctx, req.SubjectID, req.QuestionnaireID)
		if errors.Is(err, db.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "No open assignment for this subject and questionnaire"})
			return
		}
		if err != nil {
			storageFailure(c, err, "Failed to submit responses")
			return
		}

		key, err := store.ListScoringKey(ctx, req.QuestionnaireID)
		if err != nil {
			storageFailure(c, err, "Failed to submit responses")
			return
		}
		outcome, err := scoring.Compose(key, req.Responses)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		report := models.Report{
			AssignmentID: assignmentID,
			TotalScore:   outcome.TotalScore,
			FactorScores: outcome.FactorScores,
			Conclusion:   outcome.Conclusion,
		}
		id, err := store.SaveReport(ctx, report)
		if err != nil {
			storageFailure(c, err, "Failed to submit responses")
			return
		}
		zap.L().Info("responses scored",
			zap.Int("assignment_id", assignmentID),
			zap.Int("report_id", id),
			zap.Int("total_score", outcome.TotalScore),
			zap.Int("max_score", outcome.MaxScore))
		report.ID = id
		c.JSON(http.StatusCreated, gin.H{
			"id":           report.ID,
			"assignmentId": report.AssignmentID,
			"totalScore":   report.TotalScore,
			"maxScore":     outcome.MaxScore,
			"factorScores": report.FactorScores,
			"conclusion":   report.Conclusion,
		})
	}
}
