package db

import (
	"context"
	"fmt"
	"math"

	"psyeval-server/models"
	"psyeval-server/scoring"
	"psyeval-server/utils"
)

// Store issues the parameterized queries behind every endpoint.
type Store struct {
	conn DBTX
}

// NewStore returns a Store running its queries on conn.
func NewStore(conn DBTX) *Store {
	return &Store{conn: conn}
}

// --- questionnaires ---

func (s *Store) ListQuestionnaires(ctx context.Context) ([]models.Questionnaire, error) {
	rows, err := s.conn.Query(ctx, `SELECT id, title, category FROM questionnaires ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query questionnaires: %w", err)
	}
	defer rows.Close()

	questionnaires := []models.Questionnaire{}
	for rows.Next() {
		var q models.Questionnaire
		if err := rows.Scan(&q.ID, &q.Title, &q.Category); err != nil {
			return nil, fmt.Errorf("failed to scan questionnaire: %w", err)
		}
		questionnaires = append(questionnaires, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read questionnaires: %w", err)
	}
	return questionnaires, nil
}

func (s *Store) CreateQuestionnaire(ctx context.Context, title, category string) (int, error) {
	var id int
	err := s.conn.QueryRow(ctx, `
		INSERT INTO questionnaires (title, category) VALUES ($1, $2) RETURNING id
	`, title, category).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert questionnaire: %w", classify(err))
	}
	return id, nil
}

func (s *Store) DeleteQuestionnaire(ctx context.Context, id int) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM questionnaires WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete questionnaire %d: %w", id, err)
	}
	return nil
}

// QuestionnaireExists reports whether a questionnaire with this title is stored.
func (s *Store) QuestionnaireExists(ctx context.Context, title string) (bool, error) {
	var exists bool
	err := s.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM questionnaires WHERE title = $1)`, title).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to look up questionnaire %q: %w", title, err)
	}
	return exists, nil
}

// --- questions ---

const questionRowsSQL = `
	SELECT q.question_id, q.questionnaire_id, q.question_text, q.factor, a.id, a.answer_text, a.score
	FROM questions q
	LEFT JOIN answers a ON q.question_id = a.question_id
`

// ListQuestionRows returns the flat question x answer join for all questions.
func (s *Store) ListQuestionRows(ctx context.Context) ([]models.QuestionRow, error) {
	return s.queryQuestionRows(ctx, questionRowsSQL+` ORDER BY q.question_id, a.id`)
}

// ListQuestionRowsByQuestionnaire returns the join restricted to one questionnaire.
func (s *Store) ListQuestionRowsByQuestionnaire(ctx context.Context, questionnaireID int) ([]models.QuestionRow, error) {
	return s.queryQuestionRows(ctx, questionRowsSQL+` WHERE q.questionnaire_id = $1 ORDER BY q.question_id, a.id`, questionnaireID)
}

func (s *Store) queryQuestionRows(ctx context.Context, query string, args ...any) ([]models.QuestionRow, error) {
	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query questions: %w", err)
	}
	defer rows.Close()

	var result []models.QuestionRow
	for rows.Next() {
		var r models.QuestionRow
		if err := rows.Scan(&r.QuestionID, &r.QuestionnaireID, &r.QuestionText, &r.Factor, &r.AnswerID, &r.AnswerText, &r.Score); err != nil {
			return nil, fmt.Errorf("failed to scan question row: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read question rows: %w", err)
	}
	return result, nil
}

// CreateQuestion inserts a question and then its answers. The two statements
// are not wrapped in a transaction; a failed answer insert leaves the question
// without answers.
func (s *Store) CreateQuestion(ctx context.Context, questionnaireID int, text, factor string, answers []models.AnswerInput) (int, error) {
	texts := make([]string, 0, len(answers))
	scores := make([]int, 0, len(answers))
	for i, a := range answers {
		var score int
		if a.Score != nil {
			score = *a.Score
		}
		if err := checkInt4(fmt.Sprintf("answer %d score", i+1), score); err != nil {
			return 0, err
		}
		texts = append(texts, a.Text)
		scores = append(scores, score)
	}

	var questionID int
	err := s.conn.QueryRow(ctx, `
		INSERT INTO questions (questionnaire_id, question_text, factor) VALUES ($1, $2, $3) RETURNING question_id
	`, questionnaireID, text, utils.StringPtr(factor)).Scan(&questionID)
	if err != nil {
		return 0, fmt.Errorf("failed to insert question: %w", classify(err))
	}

	_, err = s.conn.Exec(ctx, `
		INSERT INTO answers (question_id, answer_text, score)
		SELECT $1, t.answer_text, t.score
		FROM unnest($2::text[], $3::int[]) WITH ORDINALITY AS t(answer_text, score, ord)
		ORDER BY t.ord
	`, questionID, texts, scores)
	if err != nil {
		return questionID, fmt.Errorf("failed to insert answers for question %d: %w", questionID, classify(err))
	}
	return questionID, nil
}

func (s *Store) DeleteQuestion(ctx context.Context, id int) error {
	if _, err := s.conn.Exec(ctx, `DELETE FROM questions WHERE question_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete question %d: %w", id, err)
	}
	return nil
}

// --- subjects ---

func (s *Store) ListSubjects(ctx context.Context) ([]models.Subject, error) {
	rows, err := s.conn.Query(ctx, `SELECT id, name, age, gender, contact FROM subjects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query subjects: %w", err)
	}
	defer rows.Close()

	subjects := []models.Subject{}
	for rows.Next() {
		var sub models.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Age, &sub.Gender, &sub.Contact); err != nil {
			return nil, fmt.Errorf("failed to scan subject: %w", err)
		}
		subjects = append(subjects, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subjects: %w", err)
	}
	return subjects, nil
}

func (s *Store) CreateSubject(ctx context.Context, sub models.Subject) (int, error) {
	var id int
	err := s.conn.QueryRow(ctx, `
		INSERT INTO subjects (name, age, gender, contact) VALUES ($1, $2, $3, $4) RETURNING id
	`, sub.Name, sub.Age, sub.Gender, sub.Contact).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert subject: %w", classify(err))
	}
	return id, nil
}

// --- assignments ---

func (s *Store) CreateAssignment(ctx context.Context, subjectID, questionnaireID int) (int, error) {
	var id int
	err := s.conn.QueryRow(ctx, `
		INSERT INTO assignments (subject_id, questionnaire_id) VALUES ($1, $2) RETURNING id
	`, subjectID, questionnaireID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert assignment: %w", classify(err))
	}
	return id, nil
}

// ListAssignments returns a subject's assignments with questionnaire titles.
func (s *Store) ListAssignments(ctx context.Context, subjectID int) ([]models.AssignmentSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT a.id, q.title, q.id, a.status, a.created_at
		FROM assignments a
		JOIN questionnaires q ON a.questionnaire_id = q.id
		WHERE a.subject_id = $1
		ORDER BY a.id
	`, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments for subject %d: %w", subjectID, err)
	}
	defer rows.Close()

	assignments := []models.AssignmentSummary{}
	for rows.Next() {
		var a models.AssignmentSummary
		var status string
		if err := rows.Scan(&a.ID, &a.QuestionnaireTitle, &a.QuestionnaireID, &status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		a.Status = models.AssignmentStatus(status)
		assignments = append(assignments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read assignments: %w", err)
	}
	return assignments, nil
}

// FindOpenAssignment returns the most recent assignment of the pair that has
// no report yet.
func (s *Store) FindOpenAssignment(ctx context.Context, subjectID, questionnaireID int) (int, error) {
	var id int
	err := s.conn.QueryRow(ctx, `
		SELECT id FROM assignments
		WHERE subject_id = $1 AND questionnaire_id = $2 AND status = $3
		ORDER BY id DESC
		LIMIT 1
	`, subjectID, questionnaireID, string(models.StatusAssigned)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to find open assignment for subject %d, questionnaire %d: %w", subjectID, questionnaireID, classify(err))
	}
	return id, nil
}

// --- reports ---

func (s *Store) ListReports(ctx context.Context) ([]models.ReportSummary, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT a.id, s.name, q.title, r.total_score, r.factor_scores, r.conclusion
		FROM reports r
		JOIN assignments a ON a.id = r.assignment_id
		JOIN subjects s ON s.id = a.subject_id
		JOIN questionnaires q ON q.id = a.questionnaire_id
		ORDER BY r.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []models.ReportSummary{}
	for rows.Next() {
		var r models.ReportSummary
		var factorScoresJSON []byte
		if err := rows.Scan(&r.AssignmentID, &r.SubjectName, &r.QuestionnaireTitle, &r.TotalScore, &factorScoresJSON, &r.Conclusion); err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		if r.FactorScores, err = scoring.DecodeFactorScores(factorScoresJSON); err != nil {
			return nil, fmt.Errorf("report for assignment %d: %w", r.AssignmentID, err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read reports: %w", err)
	}
	return reports, nil
}

// SaveReport stores the report of an assignment and marks the assignment
// reported, in one statement. A second report for the same assignment
// replaces the first.
func (s *Store) SaveReport(ctx context.Context, r models.Report) (int, error) {
	if err := checkInt4("total score", r.TotalScore); err != nil {
		return 0, err
	}
	factorScoresJSON, err := scoring.EncodeFactorScores(r.FactorScores)
	if err != nil {
		return 0, err
	}

	var id int
	err = s.conn.QueryRow(ctx, `
		WITH saved AS (
			INSERT INTO reports (assignment_id, total_score, factor_scores, conclusion)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (assignment_id) DO UPDATE SET
				total_score = EXCLUDED.total_score,
				factor_scores = EXCLUDED.factor_scores,
				conclusion = EXCLUDED.conclusion,
				created_at = CURRENT_TIMESTAMP
			RETURNING id, assignment_id
		), marked AS (
			UPDATE assignments SET status = $5
			FROM saved WHERE assignments.id = saved.assignment_id
		)
		SELECT id FROM saved
	`, r.AssignmentID, r.TotalScore, factorScoresJSON, r.Conclusion, string(models.StatusReported)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to save report for assignment %d: %w", r.AssignmentID, classify(err))
	}
	return id, nil
}

// GetResult returns the report of the latest reported assignment of the pair.
func (s *Store) GetResult(ctx context.Context, subjectID, questionnaireID int) (models.Result, error) {
	var res models.Result
	var factorScoresJSON []byte
	err := s.conn.QueryRow(ctx, `
		SELECT r.total_score, r.factor_scores, r.conclusion
		FROM reports r
		JOIN assignments a ON a.id = r.assignment_id
		WHERE a.subject_id = $1 AND a.questionnaire_id = $2
		ORDER BY a.id DESC
		LIMIT 1
	`, subjectID, questionnaireID).Scan(&res.TotalScore, &factorScoresJSON, &res.Conclusion)
	if err != nil {
		return models.Result{}, fmt.Errorf("failed to fetch result for subject %d, questionnaire %d: %w", subjectID, questionnaireID, classify(err))
	}
	if res.FactorScores, err = scoring.DecodeFactorScores(factorScoresJSON); err != nil {
		return models.Result{}, err
	}
	return res, nil
}

// --- scoring ---

// ListScoringKey returns every answer of a questionnaire with its question's factor.
func (s *Store) ListScoringKey(ctx context.Context, questionnaireID int) ([]models.ScoringKey, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT q.question_id, COALESCE(q.factor, ''), a.id, a.score
		FROM questions q
		JOIN answers a ON a.question_id = q.question_id
		WHERE q.questionnaire_id = $1
		ORDER BY q.question_id, a.id
	`, questionnaireID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scoring key for questionnaire %d: %w", questionnaireID, err)
	}
	defer rows.Close()

	var key []models.ScoringKey
	for rows.Next() {
		var k models.ScoringKey
		if err := rows.Scan(&k.QuestionID, &k.Factor, &k.AnswerID, &k.Score); err != nil {
			return nil, fmt.Errorf("failed to scan scoring key: %w", err)
		}
		key = append(key, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scoring key: %w", err)
	}
	return key, nil
}

// checkInt4 rejects values an INT column cannot hold.
func checkInt4(field string, v int) error {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return fmt.Errorf("%s %d: %w", field, v, ErrOutOfRange)
	}
	return nil
}
