// Package intent classifies a user turn before the model sees it. The
// classifier decides which tools the turn may use: no deterministic signal,
// no tools. It is a pair of compiled regexes, deliberately cheap, and it runs
// exactly once per turn.
package intent

import "regexp"

// Result reports which actionable intents a turn carries. Both can be true
// at once; the model then chooses which tool fits.
type Result struct {
	ProfileUpdate bool
	TestResult    bool
}

// Actionable reports whether any tool should be exposed for this turn.
func (r Result) Actionable() bool {
	return r.ProfileUpdate || r.TestResult
}

// Classifier decides tool exposure from raw utterance text.
type Classifier interface {
	Classify(utterance string) Result
}

var (
	// A profile update needs a mutation verb followed somewhere by a
	// profile noun. "I have a peanut allergy" alone does not match; "add
	// peanut allergy" does.
	profilePattern = regexp.MustCompile(
		`(?i)\b(add|remove|update|change|set|delete)\b.*(condition|allergy|allergies|diet|preference|meat|food|exclusion|religion|sex|race)`)

	// A test result needs a lab keyword followed somewhere by a digit, so
	// "what is TSH?" stays a plain question while "my TSH was 2.5" does not.
	testPattern = regexp.MustCompile(
		`(?i)\b(tsh|glucose|blood pressure|cholesterol|hba1c|test result|test|lab)\b.*\d`)
)

// RegexClassifier is the default Classifier.
type RegexClassifier struct{}

// NewClassifier returns the default regex-based classifier.
func NewClassifier() *RegexClassifier {
	return &RegexClassifier{}
}

// Classify matches the utterance against both intent patterns.
func (*RegexClassifier) Classify(utterance string) Result {
	return Result{
		ProfileUpdate: profilePattern.MatchString(utterance),
		TestResult:    testPattern.MatchString(utterance),
	}
}
