// Package recorder keeps an append-only history of drafted matches and
// their outcomes.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/DoyleJ11/servant-draft/internal/engine"
)

var ErrDuplicateMatch = errors.New("match already recorded")
var ErrUnknownMatch = errors.New("unknown match")
var ErrInvalidRecord = errors.New("invalid match record")

type RecordedPlayer struct {
	UserID    int64  `json:"user_id,string"`
	Name      string `json:"name"`
	Character string `json:"character"`
	Captain   bool   `json:"captain,omitempty"`
	Bot       bool   `json:"bot,omitempty"`
}

// MatchRecord is written once a draft completes.
type MatchRecord struct {
	MatchID        string            `gorm:"primaryKey;size:36" json:"match_id"`
	DraftID        string            `gorm:"size:36" json:"draft_id"`
	GuildID        string            `gorm:"size:32;index" json:"guild_id"`
	ChannelID      string            `gorm:"size:32" json:"channel_id"`
	TeamSize       int               `json:"team_size"`
	Mode           string            `gorm:"size:16" json:"mode"`
	Simulation     bool              `json:"simulation"`
	Captains       []int64           `gorm:"serializer:json" json:"captains"`
	Team1          []RecordedPlayer  `gorm:"serializer:json" json:"team1"`
	Team2          []RecordedPlayer  `gorm:"serializer:json" json:"team2"`
	SystemBans     []string          `gorm:"serializer:json" json:"system_bans"`
	CaptainBans    map[string]string `gorm:"serializer:json" json:"captain_bans"`
	Algorithm      string            `gorm:"size:16" json:"algorithm,omitempty"`
	PredictedScore *float64          `json:"predicted_score,omitempty"`
	Confidence     *float64          `json:"confidence,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
}

// MatchOutcome is written when the result of a recorded match is known.
type MatchOutcome struct {
	MatchID    string    `gorm:"primaryKey;size:36" json:"match_id"`
	Winner     int       `json:"winner"`
	Score      string    `gorm:"size:32" json:"score,omitempty"`
	RecordedBy int64     `json:"recorded_by,string"`
	CreatedAt  time.Time `json:"created_at"`
}

type Recorder interface {
	WritePrematch(ctx context.Context, rec MatchRecord) error
	WriteOutcome(ctx context.Context, out MatchOutcome) error
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&MatchRecord{}, &MatchOutcome{})
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store { return &Store{db: db} }

func (s *Store) WritePrematch(ctx context.Context, rec MatchRecord) error {
	if rec.MatchID == "" {
		return fmt.Errorf("%w: match id is required", ErrInvalidRecord)
	}
	err := s.db.WithContext(ctx).Create(&rec).Error
	if isDuplicate(err) {
		return fmt.Errorf("%w: %s", ErrDuplicateMatch, rec.MatchID)
	}
	if err != nil {
		return fmt.Errorf("write match %s: %w", rec.MatchID, err)
	}
	return nil
}

func (s *Store) WriteOutcome(ctx context.Context, out MatchOutcome) error {
	if out.Winner != int(engine.Team1) && out.Winner != int(engine.Team2) {
		return fmt.Errorf("%w: winner must be team 1 or 2, got %d", ErrInvalidRecord, out.Winner)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&MatchRecord{}).Where("match_id = ?", out.MatchID).Count(&count).Error; err != nil {
		return fmt.Errorf("look up match %s: %w", out.MatchID, err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", ErrUnknownMatch, out.MatchID)
	}
	err := s.db.WithContext(ctx).Create(&out).Error
	if isDuplicate(err) {
		return fmt.Errorf("%w: outcome for %s", ErrDuplicateMatch, out.MatchID)
	}
	if err != nil {
		return fmt.Errorf("write outcome %s: %w", out.MatchID, err)
	}
	return nil
}

// Recent lists a guild's latest matches, newest first.
func (s *Store) Recent(ctx context.Context, guildID string, limit int) ([]MatchRecord, error) {
	var recs []MatchRecord
	err := s.db.WithContext(ctx).
		Where(&MatchRecord{GuildID: guildID}).
		Order("created_at desc").
		Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (s *Store) Outcome(ctx context.Context, matchID string) (MatchOutcome, error) {
	var out MatchOutcome
	err := s.db.WithContext(ctx).Where("match_id = ?", matchID).First(&out).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return MatchOutcome{}, fmt.Errorf("%w: %s", ErrUnknownMatch, matchID)
	}
	return out, err
}

func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Prematch builds the record of a completed session.
func Prematch(s *engine.Session) MatchRecord {
	rec := MatchRecord{
		MatchID:     s.MatchID,
		DraftID:     s.ID,
		GuildID:     s.Key.GuildID,
		ChannelID:   s.Key.ChannelID,
		TeamSize:    s.TeamSize,
		Mode:        string(s.Mode),
		Simulation:  s.Simulation,
		SystemBans:  append([]string(nil), s.SystemBans...),
		CaptainBans: map[string]string{},
		CreatedAt:   s.CompletedAt,
	}
	for _, c := range s.Captains {
		rec.Captains = append(rec.Captains, int64(c))
		if ban, ok := s.CaptainBans[c]; ok {
			rec.CaptainBans[strconv.FormatInt(int64(c), 10)] = ban
		}
	}
	for _, team := range []engine.Team{engine.Team1, engine.Team2} {
		var members []RecordedPlayer
		for _, id := range s.TeamMembers(team) {
			p := s.Players[id]
			members = append(members, RecordedPlayer{
				UserID:    int64(p.ID),
				Name:      p.Name,
				Character: p.Character,
				Captain:   p.Captain,
				Bot:       p.Bot,
			})
		}
		if team == engine.Team1 {
			rec.Team1 = members
		} else {
			rec.Team2 = members
		}
	}
	if s.Balance != nil {
		score, confidence := s.Balance.Score, s.Balance.Confidence
		rec.Algorithm = s.Balance.Algorithm
		rec.PredictedScore = &score
		rec.Confidence = &confidence
	}
	return rec
}
