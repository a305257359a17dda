// Package roster stores per-guild player ratings and balancer settings.
package roster

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DoyleJ11/servant-draft/internal/balance"
	"github.com/DoyleJ11/servant-draft/internal/catalog"
)

var ErrInvalidPlayer = errors.New("invalid roster player")

type Player struct {
	GuildID string   `gorm:"primaryKey;size:32" json:"guild_id"`
	UserID  int64    `gorm:"primaryKey;autoIncrement:false" json:"user_id,string"`
	Name    string   `gorm:"size:64" json:"name"`
	Rating  *float64 `json:"rating,omitempty"`
	// CharacterRatings holds per-character proficiency.
	CharacterRatings map[string]float64 `gorm:"serializer:json" json:"character_ratings,omitempty"`
	Preferred        []string           `gorm:"serializer:json" json:"preferred,omitempty"`
	UpdatedAt        time.Time          `json:"updated_at"`
}

func (Player) TableName() string { return "roster_players" }

// Proficiency returns the player's rating on character, if known.
func (p Player) Proficiency(character string) *float64 {
	v, ok := p.CharacterRatings[catalog.Normalize(character)]
	if !ok {
		return nil
	}
	return &v
}

// GuildSettings are balancer overrides tuned per guild.
type GuildSettings struct {
	GuildID   string            `gorm:"primaryKey;size:32"`
	Algorithm balance.Algorithm `gorm:"size:16"`
	Weights   *balance.Weights  `gorm:"serializer:json"`
	UpdatedAt time.Time
}

func (GuildSettings) TableName() string { return "guild_settings" }

type Store interface {
	LoadRoster(ctx context.Context, guildID string) ([]Player, error)
	Upsert(ctx context.Context, p Player) error
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Player{}, &GuildSettings{})
}

// DB is the gorm-backed store.
type DB struct {
	db *gorm.DB
}

func NewDB(db *gorm.DB) *DB { return &DB{db: db} }

func (d *DB) LoadRoster(ctx context.Context, guildID string) ([]Player, error) {
	var players []Player
	err := d.db.WithContext(ctx).
		Where(&Player{GuildID: guildID}).
		Order("user_id").
		Find(&players).Error
	if err != nil {
		return nil, fmt.Errorf("load roster %s: %w", guildID, err)
	}
	return players, nil
}

func (d *DB) Upsert(ctx context.Context, p Player) error {
	if p.GuildID == "" || p.UserID == 0 {
		return fmt.Errorf("%w: guild and user are required", ErrInvalidPlayer)
	}
	if len(p.CharacterRatings) > 0 {
		normalized := make(map[string]float64, len(p.CharacterRatings))
		for c, v := range p.CharacterRatings {
			normalized[catalog.Normalize(c)] = v
		}
		p.CharacterRatings = normalized
	}
	err := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&p).Error
	if err != nil {
		return fmt.Errorf("save roster player %d: %w", p.UserID, err)
	}
	return nil
}

// Settings returns the guild's balancer overrides. found is false when the
// guild never tuned anything.
func (d *DB) Settings(ctx context.Context, guildID string) (GuildSettings, bool, error) {
	var s GuildSettings
	err := d.db.WithContext(ctx).Where(&GuildSettings{GuildID: guildID}).First(&s).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return GuildSettings{GuildID: guildID}, false, nil
	}
	if err != nil {
		return GuildSettings{}, false, fmt.Errorf("load settings %s: %w", guildID, err)
	}
	return s, true, nil
}

func (d *DB) SaveSettings(ctx context.Context, s GuildSettings) error {
	if s.Weights != nil {
		if err := s.Weights.Validate(); err != nil {
			return err
		}
	}
	if s.Algorithm != "" {
		if _, err := balance.ParseAlgorithm(string(s.Algorithm)); err != nil {
			return err
		}
	}
	return d.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&s).Error
}

// BalancePlayers joins roster ratings onto drafted players. Players missing
// from the roster stay unrated.
func BalancePlayers(players []Player, drafted []balance.Player) []balance.Player {
	byID := make(map[int64]Player, len(players))
	for _, p := range players {
		byID[p.UserID] = p
	}
	out := make([]balance.Player, len(drafted))
	for i, d := range drafted {
		if p, ok := byID[d.UserID]; ok {
			d.Rating = p.Rating
			d.Proficiency = p.Proficiency(d.Character)
		}
		out[i] = d
	}
	return out
}
