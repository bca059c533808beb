package models

// Hit is a chunk returned by a similarity search together with its cosine score.
type Hit struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`
}

// Citation is a presentation view of a hit.
type Citation struct {
	Filename        string  `json:"filename"`
	Page            int     `json:"page"`
	Section         string  `json:"section"`
	Similarity      float32 `json:"similarity"`
	Excerpt         string  `json:"excerpt"`
	HasTable        bool    `json:"has_table"`
	Reference       string  `json:"reference,omitempty"`
	PublicationYear string  `json:"publication_year,omitempty"`
}

// QueryResponse bundles everything the answer generator needs for one question.
type QueryResponse struct {
	Query     string     `json:"query"`
	Hits      []Hit      `json:"hits"`
	Contexts  string     `json:"contexts"`
	Citations []Citation `json:"citations"`
}
