package intent

import "testing"

func TestClassifyProfileUpdate(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		want      bool
	}{
		{name: "add allergy", utterance: "add peanuts to my allergies", want: true},
		{name: "remove condition", utterance: "please remove diabetes from my conditions", want: true},
		{name: "update diet", utterance: "update my diet to vegetarian", want: true},
		{name: "set religion", utterance: "set my religion to buddhist", want: true},
		{name: "change meat choice", utterance: "change my meat preference to chicken only", want: true},
		{name: "delete exclusion", utterance: "delete shellfish from food exclusions", want: true},
		{name: "uppercase", utterance: "ADD PEANUTS TO MY ALLERGIES", want: true},
		{name: "statement without verb", utterance: "I have a peanut allergy", want: false},
		{name: "verb without noun", utterance: "add two cups of rice to the recipe", want: false},
		{name: "noun before verb", utterance: "my allergies, can you add them up?", want: false},
		{name: "verb embedded in word", utterance: "saddened by my allergies", want: false},
		{name: "plain question", utterance: "what should I eat for breakfast?", want: false},
		{name: "empty", utterance: "", want: false},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.utterance)
			if got.ProfileUpdate != tt.want {
				t.Errorf("Classify(%q).ProfileUpdate = %v, want %v", tt.utterance, got.ProfileUpdate, tt.want)
			}
		})
	}
}

func TestClassifyTestResult(t *testing.T) {
	tests := []struct {
		name      string
		utterance string
		want      bool
	}{
		{name: "tsh with value", utterance: "my TSH was 2.5 yesterday", want: true},
		{name: "glucose with value", utterance: "glucose came back at 105", want: true},
		{name: "blood pressure", utterance: "blood pressure reading of 120/80", want: true},
		{name: "cholesterol", utterance: "cholesterol is 190 mg/dL", want: true},
		{name: "hba1c", utterance: "HbA1c result: 5.7%", want: true},
		{name: "generic lab", utterance: "lab report shows 42", want: true},
		{name: "test result phrase", utterance: "got a test result of 88 today", want: true},
		{name: "keyword without digit", utterance: "what does TSH measure?", want: false},
		{name: "digit without keyword", utterance: "I ran 5 miles today", want: false},
		{name: "digit before keyword", utterance: "in 2024 I should get a glucose test", want: false},
		{name: "keyword embedded in word", utterance: "latest protest had 300 people", want: false},
		{name: "empty", utterance: "", want: false},
	}

	c := NewClassifier()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Classify(tt.utterance)
			if got.TestResult != tt.want {
				t.Errorf("Classify(%q).TestResult = %v, want %v", tt.utterance, got.TestResult, tt.want)
			}
		})
	}
}

func TestClassifyBothIntents(t *testing.T) {
	c := NewClassifier()
	got := c.Classify("add this glucose test of 105 to my conditions")
	if !got.ProfileUpdate || !got.TestResult {
		t.Errorf("expected both intents, got %+v", got)
	}
	if !got.Actionable() {
		t.Error("expected Actionable() to be true")
	}

	if c.Classify("hello there").Actionable() {
		t.Error("greeting should not be actionable")
	}
}
