package models

import (
	"time"
)

// AssignmentStatus is the explicit engagement state of an assignment.
type AssignmentStatus string

const (
	StatusAssigned AssignmentStatus = "assigned"
	StatusReported AssignmentStatus = "reported"
)

// Questionnaire is a named, categorized set of questions
type Questionnaire struct {
	ID       int    `json:"id"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

// QuestionRow is one row of the questions LEFT JOIN answers result.
// Answer columns are nil when the question has no answers.
type QuestionRow struct {
	QuestionID      int
	QuestionnaireID int
	QuestionText    string
	Factor          *string
	AnswerID        *int
	AnswerText      *string
	Score           *int
}

// Answer is a scored option of a question
type Answer struct {
	ID    int    `json:"id,omitempty"`
	Text  string `json:"text"`
	Score int    `json:"score"`
}

// Question is a question with its collected answers
type Question struct {
	ID              int      `json:"question_id"`
	QuestionnaireID int      `json:"questionnaire_id"`
	Text            string   `json:"question_text"`
	Factor          string   `json:"factor,omitempty"`
	Answers         []Answer `json:"answers"`
}

// QuestionView is the questionnaire-scoped shape of a question.
type QuestionView struct {
	ID      int      `json:"id"`
	Text    string   `json:"text"`
	Factor  string   `json:"factor,omitempty"`
	Answers []Answer `json:"answers"`
}

// View projects q into its questionnaire-scoped shape.
func (q Question) View() QuestionView {
	return QuestionView{ID: q.ID, Text: q.Text, Factor: q.Factor, Answers: q.Answers}
}

// Subject is a person being evaluated
type Subject struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Age     int    `json:"age"`
	Gender  string `json:"gender"`
	Contact string `json:"contact"`
}

// Assignment links one subject to one questionnaire
type Assignment struct {
	ID              int              `json:"id"`
	SubjectID       int              `json:"subjectId"`
	QuestionnaireID int              `json:"questionnaireId"`
	Status          AssignmentStatus `json:"status,omitempty"`
}

// AssignmentSummary is an assignment listed for a subject
type AssignmentSummary struct {
	ID                 int              `json:"id"`
	QuestionnaireTitle string           `json:"questionnaireTitle"`
	QuestionnaireID    int              `json:"questionnaireId"`
	Status             AssignmentStatus `json:"status"`
	CreatedAt          time.Time        `json:"createdAt"`
}

// Report is the stored outcome for one assignment
type Report struct {
	ID           int                `json:"id"`
	AssignmentID int                `json:"assignmentId"`
	TotalScore   int                `json:"totalScore"`
	FactorScores map[string]float64 `json:"factorScores"`
	Conclusion   string             `json:"conclusion"`
}

// ReportSummary is a report joined with subject and questionnaire names
type ReportSummary struct {
	AssignmentID       int                `json:"assignment_id"`
	SubjectName        string             `json:"subject_name"`
	QuestionnaireTitle string             `json:"questionnaire_title"`
	TotalScore         int                `json:"total_score"`
	FactorScores       map[string]float64 `json:"factor_scores"`
	Conclusion         string             `json:"conclusion"`
}

// Result is a report looked up by subject and questionnaire
type Result struct {
	TotalScore   int                `json:"totalScore"`
	FactorScores map[string]float64 `json:"factorScores"`
	Conclusion   string             `json:"conclusion"`
}

// ScoringKey is one answer of a questionnaire with what it is worth.
type ScoringKey struct {
	QuestionID int
	Factor     string
	AnswerID   int
	Score      int
}

// Outcome is a scored set of responses
type Outcome struct {
	TotalScore   int                `json:"totalScore"`
	MaxScore     int                `json:"maxScore"`
	FactorScores map[string]float64 `json:"factorScores"`
	Conclusion   string             `json:"conclusion"`
}

// QuestionnaireCreateRequest for POST /api/questionnaires
type QuestionnaireCreateRequest struct {
	Title    string `json:"title" binding:"required"`
	Category string `json:"category" binding:"required"`
}

// AnswerInput is one answer option of a new question
type AnswerInput struct {
	Text  string `json:"text" binding:"required" yaml:"text"`
	Score *int   `json:"score" binding:"required,min=-2147483648,max=2147483647" yaml:"score"`
}

// QuestionCreateRequest for POST /api/questions
type QuestionCreateRequest struct {
	QuestionnaireID int           `json:"questionnaireId" binding:"required,gt=0"`
	Text            string        `json:"text" binding:"required"`
	Factor          string        `json:"factor"`
	Answers         []AnswerInput `json:"answers" binding:"required,min=1,dive"`
}

// SubjectCreateRequest for POST /api/subjects
type SubjectCreateRequest struct {
	Name    string `json:"name" binding:"required"`
	Age     int    `json:"age" binding:"required,gt=0"`
	Gender  string `json:"gender" binding:"required"`
	Contact string `json:"contact" binding:"required"`
}

// AssignmentCreateRequest for POST /api/assignments
type AssignmentCreateRequest struct {
	SubjectID       int `json:"subjectId" binding:"required,gt=0"`
	QuestionnaireID int `json:"questionnaireId" binding:"required,gt=0"`
}

// ReportCreateRequest for POST /api/reports.
// TotalScore is a pointer so that a score of zero still counts as present.
// Scores are bounded to the range of the INT columns.
type ReportCreateRequest struct {
	AssignmentID int                `json:"assignmentId" binding:"required,gt=0"`
	TotalScore   *int               `json:"totalScore" binding:"required,min=-2147483648,max=2147483647"`
	FactorScores map[string]float64 `json:"factorScores" binding:"required"`
	Conclusion   string             `json:"conclusion" binding:"required"`
}

// ResponsesSubmitRequest for POST /api/responses.
// Responses maps question id to the chosen answer id.
type ResponsesSubmitRequest struct {
	SubjectID       int         `json:"subjectId" binding:"required,gt=0"`
	QuestionnaireID int         `json:"questionnaireId" binding:"required,gt=0"`
	Responses       map[int]int `json:"responses" binding:"required"`
}

// Bank is a questionnaire bank file
type Bank struct {
	Title     string         `yaml:"title"`
	Category  string         `yaml:"category"`
	Questions []BankQuestion `yaml:"questions"`
}

// BankQuestion is one question of a bank file
type BankQuestion struct {
	Text    string        `yaml:"text"`
	Factor  string        `yaml:"factor"`
	Answers []AnswerInput `yaml:"answers"`
}
