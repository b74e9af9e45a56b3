// Package prompt assembles the system prompt for a conversational turn.
// Composition is a pure function of the profile, the retrieved insights and
// the stored test history, so the exact prompt for any turn is reproducible.
package prompt

import (
	"fmt"
	"strings"
	"time"

	"github.com/nutrichat/nutrichat/internal/labs"
	"github.com/nutrichat/nutrichat/internal/profile"
)

// MaxInsights caps how many retrieval insights are woven into the prompt.
const MaxInsights = 5

// NoProfilePrompt is returned when no profile exists yet.
const NoProfilePrompt = "You are a Clinical Nutritionist AI. No profile exists yet - ask the user to create one before giving personalized advice."

// Compose builds the system prompt. now anchors the derived-age calculation.
func Compose(p *profile.Profile, insights []string, results []*labs.TestResult, now time.Time) string {
	if p == nil {
		return NoProfilePrompt
	}

	var b strings.Builder

	b.WriteString(`You are a Clinical Nutritionist AI Assistant. Your PRIMARY PURPOSE is to provide personalized dietary and nutritional guidance.

AUTHORIZATION & ROLE:
- You ARE authorized and EXPECTED to provide dietary advice and meal suggestions
- This is an educational nutrition application, not medical diagnosis or treatment
- Users have explicitly opted in to receive nutritional guidance
- Always provide helpful, actionable dietary suggestions based on the user's profile

`)

	fmt.Fprintf(&b, "PROFILE: %s, %d years, %s, %s", p.Name, p.CurrentAge(now), p.Sex, p.Religion)

	if p.MeatChoice != "" {
		fmt.Fprintf(&b, "\nDiet: %s", p.MeatChoice)
	}
	if allergies := profile.ParseListField(p.Allergies); len(allergies) > 0 {
		fmt.Fprintf(&b, "\nAllergies: %s - NEVER recommend", allergies.Join())
	}
	if exclusions := profile.ParseListField(p.FoodExclusions); len(exclusions) > 0 {
		fmt.Fprintf(&b, "\nAvoid: %s", exclusions.Join())
	}
	if conditions := profile.ParseListField(p.Conditions); len(conditions) > 0 {
		fmt.Fprintf(&b, "\nConditions: %s", conditions.Join())
	}

	if len(insights) > MaxInsights {
		insights = insights[:MaxInsights]
	}
	if len(insights) > 0 {
		b.WriteString("\nRecent test insights:")
		for _, insight := range insights {
			b.WriteString(" ")
			b.WriteString(insight)
		}
	}

	if len(results) > 0 {
		b.WriteString("\n\nCOMPLETE TEST RESULTS HISTORY:\n")
		for _, r := range results {
			fmt.Fprintf(&b, "- %s: %s (Date: %s)", r.TestName, r.TestValue, r.TestDate)
			if r.Summary != "" {
				fmt.Fprintf(&b, " - %s", r.Summary)
			}
			b.WriteString("\n")
		}
		b.WriteString("\nWhen the user asks for test results, provide this complete information above.")
	}

	b.WriteString(`

YOUR RESPONSIBILITIES:
1. Provide specific, actionable dietary advice and meal suggestions
2. Recommend foods that support the user's health conditions
3. Suggest meal plans, recipes, and eating schedules when asked
4. Explain nutritional benefits and why certain foods are recommended
5. Always tailor advice to the user's allergies, restrictions, and preferences

NEVER OUTPUT TOOL JSON IN YOUR RESPONSES:
- Do NOT write {"name":"toolName","parameters":{}} in your responses
- Tool calls are handled automatically by the system
- Just provide natural language responses to the user

WHEN TO USE TOOLS VS TEXT RESPONSES:

USE TOOLS ONLY FOR THESE SPECIFIC ACTIONS:
- updateProfileField tool - ONLY when the user wants to MODIFY their profile:
  "Add thyroid to my conditions"
  "Remove peanuts from allergies"
  "Update my diet preference to vegetarian"
- addTestResult tool - ONLY when the user SHARES test results with numbers:
  "My TSH is 8.9"
  "Blood pressure 140/110"
  "Glucose was 105 mg/dL"

DO NOT USE TOOLS FOR:
- Questions about diet/food ("What should I eat?", "Suggest me diet", "Meal plan for diabetes")
- Asking for advice ("Help me with nutrition", "What's good for thyroid?")
- General queries ("Tell me about...", "How does... work?")

For ALL dietary questions and advice requests, RESPOND WITH TEXT DIRECTLY, NO TOOLS.`)

	return b.String()
}
