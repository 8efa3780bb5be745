package broadcast

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/aimd54/fanfund-tracker/internal/config"
)

// FundFacts carries the values the contribution template may reference.
type FundFacts struct {
	Title          string
	Nickname       string
	Amount         float64
	UserAmount     float64
	Ranking        int
	AmountDistance float64
	TotalAmount    float64
	SupporterNum   int64
	AverageAmount  float64
	TimeToEnd      string
	Link           string
}

// CardFacts carries the values the card draw template may reference.
type CardFacts struct {
	Nickname    string
	TierName    string
	Name        string
	Description string
	OwnedCount  int64
	TierTotal   int64
	Image       string
}

// Composer renders the operator-configured message templates. Templates are
// parsed once at startup so a bad pattern fails fast instead of at broadcast
// time.
type Composer struct {
	fund          *template.Template
	card          *template.Template
	encouragement string
}

// NewComposer parses the configured patterns.
func NewComposer(fund *config.FundConfig, card *config.CardConfig) (*Composer, error) {
	fundTmpl, err := template.New("fund").Parse(fund.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid fund pattern: %w", err)
	}
	cardTmpl, err := template.New("card").Parse(card.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid card pattern: %w", err)
	}
	return &Composer{
		fund:          fundTmpl,
		card:          cardTmpl,
		encouragement: card.Encouragement,
	}, nil
}

// ComposeFund renders the contribution report message.
func (c *Composer) ComposeFund(facts *FundFacts) (string, error) {
	var buf strings.Builder
	if err := c.fund.Execute(&buf, facts); err != nil {
		return "", fmt.Errorf("failed to render fund message: %w", err)
	}
	return buf.String(), nil
}

// ComposeCard renders the card draw message.
func (c *Composer) ComposeCard(facts *CardFacts) (string, error) {
	var buf strings.Builder
	if err := c.card.Execute(&buf, facts); err != nil {
		return "", fmt.Errorf("failed to render card message: %w", err)
	}
	return buf.String(), nil
}

// Encouragement returns the line appended when a contribution stays below the
// draw threshold.
func (c *Composer) Encouragement() string {
	return c.encouragement
}
