// Package classifier assigns fictional-technology types to page text using
// weighted pattern matching. Classification is pure: no I/O, no shared
// mutable state, and identical input always yields an identical result.
package classifier

import (
	"regexp"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/arvinsingh/fictech-harvester/internal/config"
	"github.com/arvinsingh/fictech-harvester/internal/model"
)

type compiledExclusion struct {
	name   string
	re     *regexp.Regexp
	weight float64
}

// Classifier scores page text against an immutable rule set.
type Classifier struct {
	rules      RuleSet
	exclusions []compiledExclusion
	priority   map[model.TechType]int

	minContentLength    int
	exclusionThreshold  float64
	normalizingConstant float64
}

// New compiles the rule set into a ready Classifier. Zero-valued config
// fields fall back to the documented defaults.
func New(rules RuleSet, cfg config.ClassifierConfig) (*Classifier, error) {
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = 200
	}
	if cfg.ExclusionThreshold <= 0 {
		cfg.ExclusionThreshold = 2
	}
	if cfg.NormalizingConstant <= 0 {
		cfg.NormalizingConstant = 8
	}

	c := &Classifier{
		rules:               rules,
		priority:            make(map[model.TechType]int),
		minContentLength:    cfg.MinContentLength,
		exclusionThreshold:  cfg.ExclusionThreshold,
		normalizingConstant: cfg.NormalizingConstant,
	}

	for i, tt := range model.AllTechTypes() {
		c.priority[tt] = i
	}

	for _, ex := range rules.Exclusions {
		re, err := regexp.Compile(ex.Pattern)
		if err != nil {
			return nil, eris.Wrapf(err, "classifier: compile exclusion %q", ex.Name)
		}
		c.exclusions = append(c.exclusions, compiledExclusion{
			name:   ex.Name,
			re:     re,
			weight: ex.Weight,
		})
	}

	return c, nil
}

// Classify scores the given page text and returns the classification
// verdict. Rejections are normal outcomes, not errors.
func (c *Classifier) Classify(text string) model.ClassificationResult {
	if len(text) < c.minContentLength {
		return model.ClassificationResult{
			TechType: model.TechTypeNone,
			Rejected: true,
			Reason:   model.ReasonLength,
		}
	}

	lower := strings.ToLower(text)

	if c.exclusionScore(lower) > c.exclusionThreshold {
		return model.ClassificationResult{
			TechType: model.TechTypeNone,
			Rejected: true,
			Reason:   model.ReasonExcluded,
		}
	}

	bestType := model.TechTypeNone
	bestScore := 0.0
	for _, rule := range c.rules.Types {
		score := c.typeScore(rule, lower)
		if score > bestScore || (score == bestScore && score > 0 && c.priority[rule.Type] < c.priority[bestType]) {
			bestScore = score
			bestType = rule.Type
		}
	}

	if bestScore == 0 {
		return model.ClassificationResult{
			TechType: model.TechTypeNone,
			Rejected: true,
			Reason:   model.ReasonNoMatch,
		}
	}

	confidence := bestScore / c.normalizingConstant
	if confidence > 1 {
		confidence = 1
	}

	return model.ClassificationResult{
		TechType:   bestType,
		Confidence: confidence,
	}
}

// typeScore sums keyword weight, context weight, and the both-kinds bonus
// for a single type rule.
func (c *Classifier) typeScore(rule TypeRule, lower string) float64 {
	var keywordMatches, contextMatches int
	for _, kw := range rule.Keywords {
		if strings.Contains(lower, kw) {
			keywordMatches++
		}
	}
	for _, cx := range rule.Context {
		if strings.Contains(lower, cx) {
			contextMatches++
		}
	}

	score := float64(keywordMatches)*rule.Weight + float64(contextMatches)*2
	if keywordMatches > 0 && contextMatches > 0 {
		score += 3
	}
	return score
}

func (c *Classifier) exclusionScore(lower string) float64 {
	var score float64
	for _, ex := range c.exclusions {
		if ex.re.MatchString(lower) {
			score += ex.weight
		}
	}
	return score
}
