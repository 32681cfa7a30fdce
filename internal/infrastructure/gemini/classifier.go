package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"commentguard/internal/domain"
	"commentguard/internal/ports"
)

const defaultModel = "gemini-2.0-flash"

// Classifier asks Gemini for a structured spam verdict per comment.
type Classifier struct {
	client *genai.Client
	model  string
}

var _ ports.Classifier = (*Classifier)(nil)

// NewClassifier builds the Gemini client.
func NewClassifier(ctx context.Context, apiKey, model string) (*Classifier, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	return &Classifier{client: client, model: model}, nil
}

// Classify sends one comment to the model and parses its JSON verdict.
func (c *Classifier) Classify(ctx context.Context, comment domain.Comment) (domain.Verdict, error) {
	prompt := buildPrompt(comment)

	resp, err := c.client.Models.GenerateContent(ctx, c.model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			Temperature:      genai.Ptr[float32](0.1),
		},
	)
	if err != nil {
		return domain.Verdict{}, fmt.Errorf("generate verdict: %w", err)
	}

	verdict, err := ParseVerdict(resp.Text())
	if err != nil {
		return domain.Verdict{}, err
	}
	return verdict, nil
}

// ParseVerdict decodes the model's JSON answer, tolerating markdown code
// fences some models wrap around JSON output.
func ParseVerdict(text string) (domain.Verdict, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var verdict domain.Verdict
	if err := json.Unmarshal([]byte(text), &verdict); err != nil {
		return domain.Verdict{}, fmt.Errorf("parse verdict: %w", err)
	}

	if verdict.Confidence < 0 {
		verdict.Confidence = 0
	}
	if verdict.Confidence > 1 {
		verdict.Confidence = 1
	}
	if verdict.DetectedPatterns == nil {
		verdict.DetectedPatterns = []string{}
	}
	if verdict.SpamType == "" {
		verdict.SpamType = domain.SpamTypeClean
	}
	if verdict.RiskLevel == "" {
		verdict.RiskLevel = domain.RiskLow
	}
	if verdict.RecommendedAction == "" {
		verdict.RecommendedAction = domain.ActionIgnore
	}

	return verdict, nil
}

func buildPrompt(comment domain.Comment) string {
	var b strings.Builder
	b.WriteString("Analyze this YouTube comment for online gambling/betting spam (judol/judi online).\n\n")
	fmt.Fprintf(&b, "Comment: %q\n", comment.Text)
	fmt.Fprintf(&b, "Author: %s\n", comment.Author)
	fmt.Fprintf(&b, "Likes: %d\n\n", comment.LikeCount)
	b.WriteString(`Detection criteria:
1. Gambling keywords: judi, slot, casino, gacor, maxwin, zeus, pragmatic, gates of olympus
2. Promotional patterns: bonus, deposit, daftar, link alternatif, situs terpercaya
3. Suspicious formats: WORD+NUMBERS (GACOR77, ZEUS123)
4. Call-to-action phrases: "klik link", "daftar sekarang", "bonus new member"
5. Emoji patterns commonly used in spam
6. Repetitive or template-like content

Respond with JSON:
{
  "is_spam": boolean,
  "confidence": 0.0-1.0,
  "spam_type": "gambling|promotional|suspicious|clean",
  "reason": "detailed explanation",
  "detected_patterns": ["list of patterns"],
  "risk_level": "low|medium|high|critical",
  "recommended_action": "ignore|review|delete|ban_user"
}`)
	return b.String()
}
