package scoring

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"psyeval-server/models"
)

// ErrInvalidResponse is returned when submitted responses cannot be scored.
var ErrInvalidResponse = errors.New("invalid response")

// EncodeFactorScores serializes a factor breakdown for storage.
func EncodeFactorScores(scores map[string]float64) ([]byte, error) {
	if scores == nil {
		scores = map[string]float64{}
	}
	b, err := json.Marshal(scores)
	if err != nil {
		return nil, fmt.Errorf("failed to encode factor scores: %w", err)
	}
	return b, nil
}

// DecodeFactorScores reverses EncodeFactorScores. An empty payload decodes
// to an empty map.
func DecodeFactorScores(b []byte) (map[string]float64, error) {
	scores := map[string]float64{}
	if len(b) == 0 {
		return scores, nil
	}
	if err := json.Unmarshal(b, &scores); err != nil {
		return nil, fmt.Errorf("failed to decode factor scores: %w", err)
	}
	if scores == nil {
		scores = map[string]float64{}
	}
	return scores, nil
}

type scoredQuestion struct {
	factor  string
	best    int
	answers map[int]int // answer id -> score
}

// Compose scores responses (question id -> answer id) against the scoring key
// of one questionnaire. Unanswered questions score nothing but still count
// toward the maximum.
func Compose(key []models.ScoringKey, responses map[int]int) (models.Outcome, error) {
	if len(responses) == 0 {
		return models.Outcome{}, fmt.Errorf("%w: no responses submitted", ErrInvalidResponse)
	}

	questions := make(map[int]*scoredQuestion)
	for _, k := range key {
		q, ok := questions[k.QuestionID]
		if !ok {
			q = &scoredQuestion{factor: k.Factor, best: k.Score, answers: make(map[int]int)}
			questions[k.QuestionID] = q
		}
		if k.Score > q.best {
			q.best = k.Score
		}
		q.answers[k.AnswerID] = k.Score
	}

	// Iterate in id order so error messages are deterministic.
	questionIDs := make([]int, 0, len(responses))
	for id := range responses {
		questionIDs = append(questionIDs, id)
	}
	sort.Ints(questionIDs)

	outcome := models.Outcome{FactorScores: map[string]float64{}}
	for _, questionID := range questionIDs {
		q, ok := questions[questionID]
		if !ok {
			return models.Outcome{}, fmt.Errorf("%w: question %d is not part of this questionnaire", ErrInvalidResponse, questionID)
		}
		answerID := responses[questionID]
		score, ok := q.answers[answerID]
		if !ok {
			return models.Outcome{}, fmt.Errorf("%w: answer %d does not belong to question %d", ErrInvalidResponse, answerID, questionID)
		}
		outcome.TotalScore += score
		if q.factor != "" {
			outcome.FactorScores[q.factor] += float64(score)
		}
	}
	for _, q := range questions {
		outcome.MaxScore += q.best
	}
	outcome.Conclusion = Conclude(outcome.TotalScore, outcome.MaxScore)
	return outcome, nil
}

// Conclude describes a total score relative to the maximum attainable.
func Conclude(total, maxScore int) string {
	if maxScore <= 0 {
		return "No scorable questions answered"
	}
	ratio := float64(total) / float64(maxScore)
	band := "High"
	switch {
	case ratio < 1.0/3.0:
		band = "Low"
	case ratio < 2.0/3.0:
		band = "Moderate"
	}
	return fmt.Sprintf("%s overall score (%d of %d)", band, total, maxScore)
}
