package state

import (
	"encoding/hex"
	"encoding/json"

	"lukechampine.com/blake3"
)

// Digest hashes the mutable game state in key order. Two resolutions of the
// same turn from the same starting state produce the same digest.
func (s *State) Digest() (string, error) {
	h := blake3.New(32, nil)
	enc := json.NewEncoder(h)
	write := func(section string, v any) error {
		if _, err := h.Write([]byte(section)); err != nil {
			return err
		}
		return enc.Encode(v)
	}
	sections := []struct {
		name string
		v    any
	}{
		{"turn", s.Turn},
		{"entities", SortedValues(s.Entities)},
		{"orders", SortedValues(s.Orders)},
		{"queued", SortedValues(s.Queued)},
		{"cooldowns", SortedValues(s.Cooldowns)},
		{"harvest", SortedValues(s.Harvest)},
		{"respawns", SortedValues(s.Respawns)},
		{"itineraries", SortedValues(s.Itineraries)},
		{"transits", SortedValues(s.Transits)},
		{"tapq", SortedValues(s.TapQueue)},
		{"loads", SortedValues(s.Loads)},
		{"regions", SortedValues(s.Regions)},
		{"visibility", SortedValues(s.Visibility)},
		{"logs", s.Logs},
	}
	for _, sec := range sections {
		if err := write(sec.name, sec.v); err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
