package domain

// Narrative is the structured output of the narrative stage.
type Narrative struct {
	Title    string            `json:"title"`
	Subtitle string            `json:"subtitle,omitempty"`
	Slides   []SlideDescriptor `json:"slides"`
}

type SlideDescriptor struct {
	SlideNumber      int      `json:"slideNumber"`
	Type             string   `json:"type,omitempty"`
	Headline         string   `json:"headline"`
	Subheadline      string   `json:"subheadline,omitempty"`
	KeyPoints        []string `json:"keyPoints,omitempty"`
	LayoutSuggestion string   `json:"layoutSuggestion,omitempty"`
}

// SlideFragment is one generated markup unit awaiting persistence.
type SlideFragment struct {
	Ordinal  int
	Filename string
	Markup   string
}
