package common

// WebSearchResult is one hit returned by the search provider.
type WebSearchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	RawContent    string  `json:"rawContent,omitempty"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"publishedDate"`
}

type WebSearchImage struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// WebSearchOutput is the full answer of one web search call.
type WebSearchOutput struct {
	Query        string            `json:"query"`
	Answer       string            `json:"answer,omitempty"`
	ResponseTime float64           `json:"responseTime"`
	Images       []WebSearchImage  `json:"images"`
	Results      []WebSearchResult `json:"results"`
}

// WebSearchInput is the argument object of the web search tool.
type WebSearchInput struct {
	Query   string            `json:"query" validate:"min=1,max=200" jsonschema:"description=The search query to run on the web"`
	Options *WebSearchOptions `json:"options,omitempty" validate:"omitempty"`
}

type WebSearchOptions struct {
	SearchDepth       string   `json:"search_depth,omitempty" validate:"omitempty,oneof=basic advanced" jsonschema:"enum=basic,enum=advanced"`
	Topic             string   `json:"topic,omitempty" validate:"omitempty,oneof=general news finance" jsonschema:"enum=general,enum=news,enum=finance"`
	Days              int      `json:"days,omitempty" validate:"min=0"`
	MaxResults        int      `json:"max_results,omitempty" validate:"omitempty,min=1,max=100"`
	IncludeAnswer     bool     `json:"include_answer,omitempty"`
	IncludeRawContent bool     `json:"include_raw_content,omitempty"`
	IncludeDomains    []string `json:"include_domains,omitempty"`
	ExcludeDomains    []string `json:"exclude_domains,omitempty"`
	TimeRange         string   `json:"time_range,omitempty" validate:"omitempty,oneof=year month week day y m w d"`
	Country           string   `json:"country,omitempty" validate:"omitempty,len=2"`
}

// WebLinkChecklistItem is a search hit offered to the user for approval.
// ID is "<resultIndex>-<itemIndex>" and only meaningful for the turn that
// produced it.
type WebLinkChecklistItem struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	Title   string `json:"title"`
	Summary string `json:"summary"`
}
