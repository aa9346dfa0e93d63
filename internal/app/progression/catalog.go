package progression

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/vijayaragavanr18/Vervathon25/internal/domain"
)

// Catalog is an immutable, validated set of achievement definitions.
// Evaluation order is the definition order.
type Catalog struct {
	defs  []domain.AchievementDef
	index map[string]int
}

// NewCatalog validates defs and returns a catalog holding a private copy.
// IDs must be unique and non-empty, rewards non-negative, predicates well formed.
func NewCatalog(defs []domain.AchievementDef) (*Catalog, error) {
	c := &Catalog{
		defs:  make([]domain.AchievementDef, 0, len(defs)),
		index: make(map[string]int, len(defs)),
	}
	for i, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("%w: definition %d has no id", domain.ErrInvalidCatalog, i)
		}
		if _, dup := c.index[d.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", domain.ErrInvalidCatalog, d.ID)
		}
		if d.XPReward < 0 {
			return nil, fmt.Errorf("%w: %s: negative xp_reward %d", domain.ErrInvalidCatalog, d.ID, d.XPReward)
		}
		if err := d.Predicate.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidCatalog, d.ID, err)
		}
		c.index[d.ID] = len(c.defs)
		c.defs = append(c.defs, d)
	}
	return c, nil
}

// Definitions returns a copy of the definitions in evaluation order.
func (c *Catalog) Definitions() []domain.AchievementDef {
	out := make([]domain.AchievementDef, len(c.defs))
	copy(out, c.defs)
	return out
}

// Get returns the definition with the given ID.
func (c *Catalog) Get(id string) (domain.AchievementDef, bool) {
	i, ok := c.index[id]
	if !ok {
		return domain.AchievementDef{}, false
	}
	return c.defs[i], true
}

// Len returns the number of definitions.
func (c *Catalog) Len() int { return len(c.defs) }

// catalogFile is the on-disk layout of a catalog:
//
//	[[achievement]]
//	id = "first_upload"
//	xp_reward = 50
//	[achievement.predicate]
//	kind = "count"
//	metric = "documents"
//	threshold = 1
type catalogFile struct {
	Achievements []domain.AchievementDef `toml:"achievement"`
}

// LoadCatalog reads a TOML catalog file. An empty path yields DefaultCatalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates TOML catalog data.
func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidCatalog, err)
	}
	if len(f.Achievements) == 0 {
		return nil, fmt.Errorf("%w: no achievements defined", domain.ErrInvalidCatalog)
	}
	return NewCatalog(f.Achievements)
}

// DefaultCatalog returns the built-in catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(DefaultAchievements())
	if err != nil {
		panic("progression: built-in catalog invalid: " + err.Error())
	}
	return c
}

// ─── Built-in Achievements ──────────────────────────────────────────────────
// Six categories. Predicates read only the snapshot, so order is irrelevant
// to the outcome of a pass.

// DefaultAchievements returns the built-in definitions.
func DefaultAchievements() []domain.AchievementDef {
	return []domain.AchievementDef{
		// ── Getting Started ────────────────────────────────────────────
		{
			ID: "first_upload", Title: "First Upload", Category: domain.CatGettingStarted,
			Description: "Upload your first document.", XPReward: 50,
			Predicate: domain.CountAtLeast(domain.MetricDocuments, 1),
		},
		{
			ID: "first_chat", Title: "Hello There", Category: domain.CatGettingStarted,
			Description: "Ask your first question.", XPReward: 25,
			Predicate: domain.CountAtLeast(domain.MetricChatTurns, 1),
		},
		{
			ID: "first_quiz", Title: "Quiz Taker", Category: domain.CatGettingStarted,
			Description: "Complete your first quiz.", XPReward: 50,
			Predicate: domain.CountAtLeast(domain.MetricQuizzes, 1),
		},
		{
			ID: "regular", Title: "Regular", Category: domain.CatGettingStarted,
			Description: "Log in on 10 occasions.", XPReward: 50,
			Predicate: domain.CountAtLeast(domain.MetricLogins, 10),
		},

		// ── Documents ──────────────────────────────────────────────────
		{
			ID: "document_collector", Title: "Document Collector", Category: domain.CatDocuments,
			Description: "Upload 10 documents.", XPReward: 100,
			Predicate: domain.CountAtLeast(domain.MetricDocuments, 10),
		},
		{
			ID: "bookworm", Title: "Bookworm", Category: domain.CatDocuments,
			Description: "Upload 50 documents.", XPReward: 300,
			Predicate: domain.CountAtLeast(domain.MetricDocuments, 50),
		},

		// ── Conversation ───────────────────────────────────────────────
		{
			ID: "conversationalist", Title: "Conversationalist", Category: domain.CatConversation,
			Description: "Send 50 chat messages.", XPReward: 150,
			Predicate: domain.CountAtLeast(domain.MetricChatTurns, 50),
		},
		{
			ID: "deep_thinker", Title: "Deep Thinker", Category: domain.CatConversation,
			Description: "Send 250 chat messages.", XPReward: 500,
			Predicate: domain.CountAtLeast(domain.MetricChatTurns, 250),
		},

		// ── Quizzes ────────────────────────────────────────────────────
		{
			ID: "quiz_enthusiast", Title: "Quiz Enthusiast", Category: domain.CatQuizzes,
			Description: "Complete 10 quizzes.", XPReward: 150,
			Predicate: domain.CountAtLeast(domain.MetricQuizzes, 10),
		},
		{
			ID: "quiz_master", Title: "Quiz Master", Category: domain.CatQuizzes,
			Description: "Average 90% or better over at least 5 scored quizzes.", XPReward: 200,
			Predicate: domain.ScoreAtLeast(90, 5),
		},
		{
			ID: "perfectionist", Title: "Perfectionist", Category: domain.CatQuizzes,
			Description: "Keep a perfect average over at least 3 scored quizzes.", XPReward: 150,
			Predicate: domain.ScoreAtLeast(100, 3),
		},

		// ── Streaks ────────────────────────────────────────────────────
		{
			ID: "streak_3", Title: "On a Roll", Category: domain.CatStreaks,
			Description: "Study 3 days in a row.", XPReward: 75,
			Predicate: domain.StreakAtLeast(3),
		},
		{
			ID: "streak_7", Title: "Week Warrior", Category: domain.CatStreaks,
			Description: "Study 7 days in a row.", XPReward: 200,
			Predicate: domain.StreakAtLeast(7),
		},
		{
			ID: "streak_30", Title: "Monthly Scholar", Category: domain.CatStreaks,
			Description: "Study 30 days in a row.", XPReward: 1000,
			Predicate: domain.StreakAtLeast(30),
		},
		{
			ID: "streak_longest_14", Title: "Fortnight Focus", Category: domain.CatStreaks,
			Description: "Reach a best streak of 14 days.", XPReward: 300,
			Predicate: domain.LongestStreakAtLeast(14),
		},

		// ── Mastery ────────────────────────────────────────────────────
		{
			ID: "level_5", Title: "Rising Star", Category: domain.CatMastery,
			Description: "Reach level 5.", XPReward: 100,
			Predicate: domain.CountAtLeast(domain.MetricLevel, 5),
		},
		{
			ID: "level_10", Title: "Veteran Learner", Category: domain.CatMastery,
			Description: "Reach level 10.", XPReward: 250,
			Predicate: domain.CountAtLeast(domain.MetricLevel, 10),
		},
		{
			ID: "well_rounded", Title: "Well Rounded", Category: domain.CatMastery,
			Description: "Upload 5 documents, send 20 messages and complete 5 quizzes.", XPReward: 250,
			Predicate: domain.AllOf(
				domain.CountAtLeast(domain.MetricDocuments, 5),
				domain.CountAtLeast(domain.MetricChatTurns, 20),
				domain.CountAtLeast(domain.MetricQuizzes, 5),
			),
		},
		{
			ID: "scholar", Title: "Scholar", Category: domain.CatMastery,
			Description: "Upload 100 documents or complete 50 quizzes.", XPReward: 500,
			Predicate: domain.AnyOf(
				domain.CountAtLeast(domain.MetricDocuments, 100),
				domain.CountAtLeast(domain.MetricQuizzes, 50),
			),
		},
	}
}
