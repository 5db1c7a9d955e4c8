package model

import "maps"

// DefaultNumQuestions is used when a form carries no positive question count.
const DefaultNumQuestions = 10

// FormData holds the generation parameters chosen at step 2.
type FormData struct {
	Board          string         `json:"board" yaml:"board"`
	Grade          string         `json:"grade" yaml:"grade"`
	Subject        string         `json:"subject" yaml:"subject"`
	Section        string         `json:"section" yaml:"section"`
	Topic          string         `json:"topic" yaml:"topic"`
	NumQuestions   int            `json:"numQuestions" yaml:"num_questions"`
	QuestionDist   map[string]int `json:"questionDist" yaml:"question_distribution"`
	DifficultyDist map[string]int `json:"difficultyDist" yaml:"difficulty_distribution"`
	BloomDist      map[string]int `json:"bloomDist" yaml:"bloom_distribution"`
}

// Difficulty and Bloom levels in display order.
var (
	DifficultyLevels = []string{"easy", "medium", "hard"}
	BloomLevels      = []string{"remember", "understand", "apply", "analyze", "evaluate", "create"}
)

// DefaultFormData returns the parameters a fresh configuration starts from.
func DefaultFormData() FormData {
	return FormData{
		NumQuestions: DefaultNumQuestions,
		QuestionDist: map[string]int{
			string(MCQSingleAnswer):   2,
			string(MCQMultipleAnswer): 3,
			string(TrueFalse):         1,
			string(FillInTheBlanks):   0,
			string(VeryShortAnswer):   1,
			string(ShortAnswer):       1,
			string(LongAnswer):        2,
			string(MatchTheColumn):    0,
		},
		DifficultyDist: map[string]int{"easy": 30, "medium": 50, "hard": 20},
		BloomDist: map[string]int{
			"remember": 30, "understand": 30, "apply": 30,
			"analyze": 10, "evaluate": 0, "create": 0,
		},
	}
}

// Normalized fills zero values from the defaults. Distributions that are
// present are kept as given, including negative or mismatched values.
func (f FormData) Normalized() FormData {
	def := DefaultFormData()
	if f.NumQuestions <= 0 {
		f.NumQuestions = def.NumQuestions
	}
	if f.QuestionDist == nil {
		f.QuestionDist = def.QuestionDist
	} else {
		f.QuestionDist = maps.Clone(f.QuestionDist)
	}
	if f.DifficultyDist == nil {
		f.DifficultyDist = def.DifficultyDist
	} else {
		f.DifficultyDist = maps.Clone(f.DifficultyDist)
	}
	if f.BloomDist == nil {
		f.BloomDist = def.BloomDist
	} else {
		f.BloomDist = maps.Clone(f.BloomDist)
	}
	return f
}

// Complete reports whether board, grade and subject are selected.
func (f FormData) Complete() bool {
	return f.Board != "" && f.Grade != "" && f.Subject != ""
}

// DifficultyTotal sums the difficulty percentages. It should be 100 but is
// only reported, never enforced.
func (f FormData) DifficultyTotal() int { return sum(f.DifficultyDist) }

// BloomTotal sums the Bloom taxonomy percentages.
func (f FormData) BloomTotal() int { return sum(f.BloomDist) }

// QuestionTotal sums the per-type question counts.
func (f FormData) QuestionTotal() int { return sum(f.QuestionDist) }

func sum(m map[string]int) int {
	total := 0
	for _, v := range m {
		total += v
	}
	return total
}
