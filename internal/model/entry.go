package model

import "time"

// DatasetEntry is one accepted fictional-technology page. Entries are
// created once per accepted page, uniquely keyed by normalized title, and
// never mutated afterwards.
type DatasetEntry struct {
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	URL            string    `json:"url"`
	SourceCategory string    `json:"source_category"`
	TechType       TechType  `json:"tech_type"`
	Confidence     float64   `json:"confidence"`
	ContentLength  int       `json:"content_length"`
	ScrapedAt      time.Time `json:"scraped_at"`
}

// NewDatasetEntry builds an entry from a fetched page and its classification.
func NewDatasetEntry(page PageContent, sourceCategory string, res ClassificationResult) DatasetEntry {
	return DatasetEntry{
		Name:           page.Title,
		Description:    page.Text,
		URL:            page.URL,
		SourceCategory: sourceCategory,
		TechType:       res.TechType,
		Confidence:     res.Confidence,
		ContentLength:  len(page.Text),
		ScrapedAt:      time.Now().UTC(),
	}
}

// TrainingExample is the instruction-tuning rendition of a dataset entry.
type TrainingExample struct {
	Instruction string           `json:"instruction"`
	Input       string           `json:"input"`
	Output      string           `json:"output"`
	Metadata    TrainingMetadata `json:"metadata"`
}

// TrainingMetadata carries provenance for a training example.
type TrainingMetadata struct {
	Source   string   `json:"source"`
	Category string   `json:"category"`
	TechType TechType `json:"tech_type"`
	URL      string   `json:"url"`
}

// TrainingExample converts the entry into the training data format.
func (e DatasetEntry) TrainingExample() TrainingExample {
	return TrainingExample{
		Instruction: "Describe this " + string(e.TechType) + " from science fiction:",
		Input:       e.Name,
		Output:      e.Description,
		Metadata: TrainingMetadata{
			Source:   "wikipedia",
			Category: e.SourceCategory,
			TechType: e.TechType,
			URL:      e.URL,
		},
	}
}
