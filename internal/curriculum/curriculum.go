// Package curriculum loads curriculum data files and seeds the document
// store with one searchable chunk per topic.
package curriculum

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/taleemlabs/taleemd/internal/retriever"
)

// Objective is a single learning objective within a topic.
type Objective struct {
	ID          string `yaml:"id"`
	Description string `yaml:"description"`
}

// Topic is a teachable unit within a chapter.
type Topic struct {
	ID          string      `yaml:"id"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Objectives  []Objective `yaml:"objectives"`
	Keywords    []string    `yaml:"keywords"`
}

// Chapter groups topics under a grade level.
type Chapter struct {
	ID     string  `yaml:"id"`
	Name   string  `yaml:"name"`
	Grade  int     `yaml:"grade"`
	Topics []Topic `yaml:"topics"`
}

// Subject is a named collection of chapters, e.g. Mathematics.
type Subject struct {
	ID       string    `yaml:"id"`
	Name     string    `yaml:"name"`
	Chapters []Chapter `yaml:"chapters"`
}

// Curriculum is the root of a curriculum data file.
type Curriculum struct {
	Subjects []Subject `yaml:"subjects"`
}

// Load reads and parses a curriculum YAML file.
func Load(path string) (*Curriculum, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading curriculum file: %w", err)
	}

	var c Curriculum
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing curriculum file %s: %w", path, err)
	}
	return &c, nil
}

// Seed indexes every topic into the store as a curriculum document and
// returns the number of documents added.
func (c *Curriculum) Seed(store *retriever.Store, logger *zap.Logger) int {
	if logger == nil {
		logger = zap.NewNop()
	}

	added := 0
	for _, subject := range c.Subjects {
		for _, chapter := range subject.Chapters {
			for _, topic := range chapter.Topics {
				store.Add(retriever.Document{
					Content:    renderTopic(subject, chapter, topic),
					Source:     subject.Name + "/" + chapter.Name,
					SourceType: retriever.SourceCurriculum,
					Topic:      topic.Name,
					Chapter:    chapter.Name,
					Grade:      chapter.Grade,
					Metadata: map[string]interface{}{
						"subject":    subject.Name,
						"topic_id":   topic.ID,
						"chapter_id": chapter.ID,
						"keywords":   topic.Keywords,
					},
				})
				added++
			}
		}
	}

	logger.Info("seeded curriculum",
		zap.Int("subjects", len(c.Subjects)),
		zap.Int("documents", added),
	)
	return added
}

// renderTopic flattens a topic into searchable text.
func renderTopic(subject Subject, chapter Chapter, topic Topic) string {
	parts := []string{
		"Topic: " + topic.Name,
		"Chapter: " + chapter.Name,
		"Subject: " + subject.Name,
	}

	if topic.Description != "" {
		parts = append(parts, "Description: "+topic.Description)
	}

	if len(topic.Objectives) > 0 {
		parts = append(parts, "Learning Objectives:")
		for _, obj := range topic.Objectives {
			parts = append(parts, "  - "+obj.Description)
		}
	}

	if len(topic.Keywords) > 0 {
		parts = append(parts, "Keywords: "+strings.Join(topic.Keywords, ", "))
	}

	return strings.Join(parts, "\n")
}
