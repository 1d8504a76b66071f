package cart

import (
	"encoding/json"
	"fmt"
	"strings"
)

// encodeLines serializes lines as the JSON array persisted per scope.
func encodeLines(lines []Line) (string, error) {
	if lines == nil {
		lines = []Line{}
	}
	raw, err := json.Marshal(lines)
	if err != nil {
		return "", fmt.Errorf("encoding cart: %w", err)
	}
	return string(raw), nil
}

// decodeLines parses a persisted cart. Entries without a product id or with a
// quantity below 1 are dropped, and duplicate product ids are folded together
// so a hand-edited or legacy slot still yields a valid cart.
func decodeLines(raw string) ([]Line, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var decoded []Line
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("decoding cart: %w", err)
	}

	lines := make([]Line, 0, len(decoded))
	index := make(map[string]int, len(decoded))
	for _, line := range decoded {
		line.ProductID = strings.TrimSpace(line.ProductID)
		if line.ProductID == "" || line.Quantity < 1 || line.UnitPrice.IsNegative() {
			continue
		}
		if i, ok := index[line.ProductID]; ok {
			lines[i].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(lines)
		lines = append(lines, line)
	}
	return lines, nil
}
