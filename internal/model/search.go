package model

// SearchResult is a candidate returned by the external lookup service,
// annotated with whether the viewing user already saved it.
type SearchResult struct {
	ExternalID string `json:"externalId"`
	Title      string `json:"title"`
	Year       string `json:"year,omitempty"`
	Genre      string `json:"genre,omitempty"`
	Runtime    string `json:"runtime,omitempty"`
	Director   string `json:"director,omitempty"`
	Poster     string `json:"poster,omitempty"`
	IsAdded    bool   `json:"isAdded"`
}
