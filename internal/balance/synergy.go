package balance

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/DoyleJ11/servant-draft/internal/catalog"
)

// Synergy maps an unordered character pair to a synergy value.
type Synergy map[[2]string]float64

func pair(a, b string) [2]string {
	if a <= b {
		return [2]string{a, b}
	}
	return [2]string{b, a}
}

// LoadSynergy reads a JSON object of "a|b": value entries. A missing file is
// an empty table; malformed keys are skipped.
func LoadSynergy(path string) (Synergy, error) {
	if path == "" {
		return Synergy{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Synergy{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read synergy table: %w", err)
	}
	return ParseSynergy(data)
}

func ParseSynergy(data []byte) (Synergy, error) {
	var raw map[string]float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse synergy table: %w", err)
	}
	out := make(Synergy, len(raw))
	for k, v := range raw {
		a, b, ok := strings.Cut(k, "|")
		if !ok || strings.Contains(b, "|") {
			continue
		}
		out[pair(catalog.Normalize(a), catalog.Normalize(b))] = v
	}
	return out, nil
}

func (s Synergy) Pair(a, b string) float64 {
	return s[pair(a, b)]
}

// Team is the mean pairwise synergy of a team's characters, 0 for fewer
// than two characters.
func (s Synergy) Team(chars []string) float64 {
	total, count := 0.0, 0
	for i := 0; i < len(chars); i++ {
		for j := i + 1; j < len(chars); j++ {
			total += s.Pair(chars[i], chars[j])
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return total / float64(count)
}
