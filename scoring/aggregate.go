// Package scoring turns flat question/answer rows into nested questions and
// computes scored outcomes for a subject's responses.
package scoring

import (
	"psyeval-server/models"
)

// GroupQuestions folds LEFT JOIN rows into questions with their answers.
// Questions appear in the order their id is first seen. A row without an
// answer text contributes the question only.
func GroupQuestions(rows []models.QuestionRow) []models.Question {
	questions := make([]models.Question, 0)
	position := make(map[int]int)
	for _, row := range rows {
		idx, seen := position[row.QuestionID]
		if !seen {
			q := models.Question{
				ID:              row.QuestionID,
				QuestionnaireID: row.QuestionnaireID,
				Text:            row.QuestionText,
				Answers:         []models.Answer{},
			}
			if row.Factor != nil {
				q.Factor = *row.Factor
			}
			idx = len(questions)
			position[row.QuestionID] = idx
			questions = append(questions, q)
		}
		if row.AnswerText == nil {
			continue
		}
		answer := models.Answer{Text: *row.AnswerText}
		if row.AnswerID != nil {
			answer.ID = *row.AnswerID
		}
		if row.Score != nil {
			answer.Score = *row.Score
		}
		questions[idx].Answers = append(questions[idx].Answers, answer)
	}
	return questions
}

// Views projects grouped questions into their questionnaire-scoped shape.
func Views(questions []models.Question) []models.QuestionView {
	views := make([]models.QuestionView, 0, len(questions))
	for _, q := range questions {
		views = append(views, q.View())
	}
	return views
}
