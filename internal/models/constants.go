package models

const (
	AbstractRegex   = `^(abstract|özet)\s*[:|\n]`
	ReferencesRegex = `^(references|bibliography|kaynaklar)`
	AppendixRegex   = `^(appendix|ek)\s*[:\d]`
	SectionRegex    = `^(?:\d+(?:\.\d+)*\.?\s+)?(introduction|background|methods?|materials and methods|results|discussion|conclusions?|summary|case reports?|treatment|diagnosis|management|pathophysiology|epidemiology|recommendations)\s*$`
	NumberedHeading = `^\d+(?:\.\d+)*\.?\s+[A-Z][^.]{2,80}$`

	// ClassifyPrefixLen is how many leading characters are inspected for section markers.
	ClassifyPrefixLen = 200

	TableDataMarker = "[TABLE DATA]"
	TableCellSep    = " | "
)

// TableMarkers are substrings that mark a page as tabular.
var TableMarkers = []string{
	TableDataMarker,
	"| --- | --- |",
	"\t|\t",
}

var (
	SplitSystemPrompt = `You are an expert at splitting academic/technical documents into meaningful chunks for RAG systems.

Your task: Analyze the text and decide WHERE to split it into chunks.

Rules:
1. Each chunk should be semantically complete (one coherent idea/topic)
2. Prefer natural boundaries: section breaks, paragraph breaks, topic changes
3. Optimal chunk size: 500-1500 characters (but prioritize meaning over size)
4. Don't break mid-sentence or mid-paragraph unless absolutely necessary

Output format (JSON):
{
  "split_indices": [0, 523, 1247, 2103],
  "reasoning": "Split at section boundary, then at topic change..."
}

split_indices = character positions where splits should occur (start of each chunk)
`

	SplitUserPromptTemplate = `Analyze this text and decide where to split it into chunks:

TEXT:
%s

CHARACTER COUNT: %d

Decide the optimal split points. Return JSON with split_indices.`
)
