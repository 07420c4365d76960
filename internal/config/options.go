package config

import (
	"fmt"
	"time"
)

// Margins are page-edge exclusion zones in points. Text inside them is
// treated as running headers, footers or page numbers.
type Margins struct {
	Left   float64 `yaml:"left" json:"left"`
	Top    float64 `yaml:"top" json:"top"`
	Right  float64 `yaml:"right" json:"right"`
	Bottom float64 `yaml:"bottom" json:"bottom"`
}

// Options holds the structuring thresholds shared by every pipeline stage.
// It is built once at startup and passed by value; stages must not modify it.
type Options struct {
	Margins Margins `yaml:"margins"`

	// Header inference
	MaxHeaderLevels       int     `yaml:"max_header_levels"`
	BodyFontSizeThreshold float64 `yaml:"body_font_size_threshold"`
	HeuristicSamplePages  int     `yaml:"heuristic_sample_pages"`

	// Scan classification: characters per square inch of page area.
	DensityThreshold float64 `yaml:"density_threshold"`
	ScanSamplePages  int     `yaml:"scan_sample_pages"`

	// Chunks whose trimmed text is shorter than this are merged or dropped.
	MinChunkChars int `yaml:"min_chunk_chars"`

	// Level-2 headings containing one of these terms are pushed to level 3.
	SubtopicTerms []string `yaml:"subtopic_terms"`

	OCRLanguages       []string      `yaml:"ocr_languages"`
	RecognitionTimeout time.Duration `yaml:"recognition_timeout"`
}

func DefaultOptions() Options {
	return Options{
		Margins:               Margins{Left: 0, Top: 50, Right: 0, Bottom: 30},
		MaxHeaderLevels:       3,
		BodyFontSizeThreshold: 11,
		HeuristicSamplePages:  3,
		DensityThreshold:      0.1,
		ScanSamplePages:       5,
		MinChunkChars:         30,
		SubtopicTerms:         []string{"mortality", "knock-down", "resistance", "vector", "prevalence"},
		OCRLanguages:          []string{"eng"},
		RecognitionTimeout:    5 * time.Minute,
	}
}

func (o Options) Validate() error {
	if o.MaxHeaderLevels < 1 {
		return fmt.Errorf("max_header_levels must be at least 1, got %d", o.MaxHeaderLevels)
	}
	if o.BodyFontSizeThreshold < 0 {
		return fmt.Errorf("body_font_size_threshold must not be negative")
	}
	if o.DensityThreshold < 0 {
		return fmt.Errorf("density_threshold must not be negative")
	}
	if o.ScanSamplePages < 1 || o.HeuristicSamplePages < 1 {
		return fmt.Errorf("sample page counts must be at least 1")
	}
	if o.MinChunkChars < 0 {
		return fmt.Errorf("min_chunk_chars must not be negative")
	}
	m := o.Margins
	if m.Left < 0 || m.Top < 0 || m.Right < 0 || m.Bottom < 0 {
		return fmt.Errorf("margins must not be negative: %+v", m)
	}
	if len(o.OCRLanguages) == 0 {
		return fmt.Errorf("at least one OCR language is required")
	}
	if o.RecognitionTimeout <= 0 {
		return fmt.Errorf("recognition_timeout must be positive")
	}
	return nil
}
