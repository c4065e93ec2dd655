// Package ingestion imports questionnaire banks from YAML files.
//
// A bank file describes one questionnaire:
//
//	title: Beck Anxiety Inventory
//	category: anxiety
//	questions:
//	  - text: Numbness or tingling
//	    factor: somatic
//	    answers:
//	      - {text: Not at all, score: 0}
//	      - {text: Severely, score: 3}
package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"psyeval-server/models"
)

// Importer is the storage the import writes through.
type Importer interface {
	QuestionnaireExists(ctx context.Context, title string) (bool, error)
	CreateQuestionnaire(ctx context.Context, title, category string) (int, error)
	CreateQuestion(ctx context.Context, questionnaireID int, text, factor string, answers []models.AnswerInput) (int, error)
	DeleteQuestionnaire(ctx context.Context, id int) error
}

// ImportSummary reports what one import run did.
type ImportSummary struct {
	Imported []string `json:"imported"`
	Skipped  []string `json:"skipped"`
	Failed   []string `json:"failed"`
}

// LoadBank reads and validates one bank file.
func LoadBank(path string) (models.Bank, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Bank{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var bank models.Bank
	if err := yaml.Unmarshal(data, &bank); err != nil {
		return models.Bank{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := validateBank(bank); err != nil {
		return models.Bank{}, fmt.Errorf("%s: %w", path, err)
	}
	return bank, nil
}

func validateBank(bank models.Bank) error {
	if strings.TrimSpace(bank.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(bank.Category) == "" {
		return fmt.Errorf("category is required")
	}
	if len(bank.Questions) == 0 {
		return fmt.Errorf("at least one question is required")
	}
	for i, q := range bank.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("question %d: text is required", i+1)
		}
		if len(q.Answers) == 0 {
			return fmt.Errorf("question %d: at least one answer is required", i+1)
		}
		for j, a := range q.Answers {
			if strings.TrimSpace(a.Text) == "" {
				return fmt.Errorf("question %d, answer %d: text is required", i+1, j+1)
			}
			if a.Score == nil {
				return fmt.Errorf("question %d, answer %d: score is required", i+1, j+1)
			}
		}
	}
	return nil
}

// ImportDir imports every *.yaml / *.yml bank in dir, in file name order.
// Banks whose title already exists are skipped. A bank that fails to load or
// store is recorded as failed and the run continues; only an unreadable
// directory aborts it.
func ImportDir(ctx context.Context, store Importer, dir string) (ImportSummary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ImportSummary{}, fmt.Errorf("failed to read import directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".yaml", ".yml":
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)

	summary := ImportSummary{Imported: []string{}, Skipped: []string{}, Failed: []string{}}
	for _, name := range files {
		path := filepath.Join(dir, name)
		bank, err := LoadBank(path)
		if err != nil {
			zap.L().Warn("skipping invalid questionnaire bank", zap.String("file", path), zap.Error(err))
			summary.Failed = append(summary.Failed, name)
			continue
		}
		exists, err := store.QuestionnaireExists(ctx, bank.Title)
		if err != nil {
			return summary, err
		}
		if exists {
			zap.L().Info("questionnaire already present", zap.String("title", bank.Title))
			summary.Skipped = append(summary.Skipped, name)
			continue
		}
		if err := importBank(ctx, store, bank); err != nil {
			zap.L().Error("failed to import questionnaire bank", zap.String("file", path), zap.Error(err))
			summary.Failed = append(summary.Failed, name)
			continue
		}
		zap.L().Info("imported questionnaire bank",
			zap.String("file", path),
			zap.String("title", bank.Title),
			zap.Int("questions", len(bank.Questions)))
		summary.Imported = append(summary.Imported, name)
	}
	return summary, nil
}

func importBank(ctx context.Context, store Importer, bank models.Bank) error {
	questionnaireID, err := store.CreateQuestionnaire(ctx, bank.Title, bank.Category)
	if err != nil {
		return err
	}
	for i, q := range bank.Questions {
		if _, err := store.CreateQuestion(ctx, questionnaireID, q.Text, q.Factor, q.Answers); err != nil {
			// Drop the partial questionnaire so the next run imports the bank again.
			if delErr := store.DeleteQuestionnaire(ctx, questionnaireID); delErr != nil {
				zap.L().Error("failed to remove partially imported questionnaire",
					zap.Int("questionnaire_id", questionnaireID), zap.Error(delErr))
			}
			return fmt.Errorf("question %d: %w", i+1, err)
		}
	}
	return nil
}
