package scorer

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/icp-resolver/internal/config"
	"github.com/sells-group/icp-resolver/internal/model"
)

// Factor names used in Result.Components.
const (
	FactorResimercial  = "resimercial"
	FactorCertBreadth  = "cert_breadth"
	FactorTradeBreadth = "trade_breadth"
	FactorOM           = "om_signal"
)

// Tier cut points.
const (
	PlatinumMin = 80
	GoldMin     = 60
	SilverMin   = 40
)

// Result holds the scoring outcome for one contractor.
type Result struct {
	Score           int                 `json:"score"`
	Tier            model.Tier          `json:"tier"`
	Components      map[string]float64  `json:"components"`
	MatchedKeywords map[string][]string `json:"matched_keywords,omitempty"`
}

// Scorer is a pure, read-only ICP scorer. It is safe for concurrent use.
type Scorer struct {
	cfg config.ScorerConfig
}

// New validates cfg and returns a Scorer. Empty keyword tables use defaults.
func New(cfg config.ScorerConfig) (*Scorer, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return &Scorer{cfg: withDefaults(cfg)}, nil
}

// TierFor maps a score to its tier. It is monotonic in score.
func TierFor(score int) model.Tier {
	switch {
	case score >= PlatinumMin:
		return model.TierPlatinum
	case score >= GoldMin:
		return model.TierGold
	case score >= SilverMin:
		return model.TierSilver
	default:
		return model.TierBronze
	}
}

// Score computes the score of one contractor without modifying it.
func (s *Scorer) Score(c *model.Contractor) Result {
	text := s.corpus(c)
	matched := make(map[string][]string)

	commercial := matchKeywords(s.cfg.CommercialKeywords, text)
	residential := matchKeywords(s.cfg.ResidentialKeywords, text)
	if len(commercial) > 0 {
		matched["commercial"] = commercial
	}
	if len(residential) > 0 {
		matched["residential"] = residential
	}
	om := matchKeywords(s.cfg.OMKeywords, text)
	if len(om) > 0 {
		matched["om"] = om
	}
	trades := s.trades(c, text)
	if len(trades) > 0 {
		matched["trades"] = trades
	}

	components := map[string]float64{
		FactorResimercial:  scoreResimercial(len(commercial) > 0, len(residential) > 0 || c.OEMCount() > 0),
		FactorCertBreadth:  saturate(c.OEMCount(), s.cfg.CertSaturation),
		FactorTradeBreadth: saturate(len(trades), s.cfg.TradeSaturation),
		FactorOM:           saturate(len(om), s.cfg.OMSaturation),
	}
	total := components[FactorResimercial]*s.cfg.ResimercialWeight +
		components[FactorCertBreadth]*s.cfg.CertBreadthWeight +
		components[FactorTradeBreadth]*s.cfg.TradeBreadthWeight +
		components[FactorOM]*s.cfg.OMWeight
	score := int(math.Round(math.Max(0, math.Min(100, total))))

	r := Result{
		Score:      score,
		Tier:       TierFor(score),
		Components: components,
	}
	if len(matched) > 0 {
		r.MatchedKeywords = matched
	}
	return r
}

// Apply scores c and stores the score and tier on it.
func (s *Scorer) Apply(c *model.Contractor) Result {
	r := s.Score(c)
	c.Score = r.Score
	c.Tier = r.Tier
	return r
}

// ScoreAll scores every contractor in place, sharding the slice across
// workers goroutines. Each goroutine owns a disjoint range of the slice.
func (s *Scorer) ScoreAll(ctx context.Context, cs []*model.Contractor, workers int) error {
	if workers < 1 {
		workers = 1
	}
	if workers > len(cs) {
		workers = len(cs)
	}
	if workers == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(cs) + workers - 1) / workers
	for start := 0; start < len(cs); start += chunk {
		shard := cs[start:min(start+chunk, len(cs))]
		g.Go(func() error {
			for _, c := range shard {
				if err := gctx.Err(); err != nil {
					return eris.Wrap(err, "scorer: score shard")
				}
				s.Apply(c)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	zap.L().Info("scorer: scoring complete",
		zap.Int("contractors", len(cs)),
		zap.Int("workers", workers),
	)
	return nil
}

// corpus is the lowercased, word-separated text the keyword heuristics run on.
func (s *Scorer) corpus(c *model.Contractor) string {
	parts := []string{c.DisplayName}
	for _, cert := range c.Certifications {
		parts = append(parts, cert.Label)
	}
	return tokenize(strings.Join(parts, " "))
}

// trades returns the distinct trade names: license categories plus trades
// detected by keyword in the name and labels.
func (s *Scorer) trades(c *model.Contractor, text string) []string {
	set := make(map[string]bool)
	for _, cat := range c.Categories() {
		hits := s.tradesIn(tokenize(cat))
		if len(hits) == 0 {
			set[strings.ToLower(strings.TrimSpace(cat))] = true
		}
		for _, h := range hits {
			set[h] = true
		}
	}
	for _, h := range s.tradesIn(text) {
		set[h] = true
	}

	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (s *Scorer) tradesIn(text string) []string {
	var out []string
	for trade, kws := range s.cfg.TradeKeywords {
		if len(matchKeywords(kws, text)) > 0 {
			out = append(out, trade)
		}
	}
	return out
}

func scoreResimercial(commercial, residential bool) float64 {
	switch {
	case commercial && residential:
		return 100
	case commercial:
		return 60
	case residential:
		return 40
	default:
		return 0
	}
}

// saturate scales n linearly to 0-100, reaching 100 at limit.
func saturate(n, limit int) float64 {
	if n <= 0 || limit <= 0 {
		return 0
	}
	if n > limit {
		n = limit
	}
	return float64(n) / float64(limit) * 100
}

// tokenize lowercases text and replaces everything except letters, digits
// and '&' with single spaces, padded so whole words can be matched as
// " word ".
func tokenize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '&' {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}
	return " " + strings.Join(strings.Fields(b.String()), " ") + " "
}

// matchKeywords returns the keywords that occur as whole words in a
// tokenized text.
func matchKeywords(keywords []string, text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var matched []string
	for _, kw := range keywords {
		needle := tokenize(kw)
		if strings.TrimSpace(needle) == "" {
			continue
		}
		if strings.Contains(text, needle) {
			matched = append(matched, kw)
		}
	}
	return matched
}
