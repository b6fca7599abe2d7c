package livepoll

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Poll is the authoritative poll snapshot. It is replaced wholesale on every
// PollUpdated push; the client never adjusts counts locally.
type Poll struct {
	Question string       `json:"question"`
	Options  OptionCounts `json:"options"`
}

// TotalVotes sums the counts of all options.
func (p Poll) TotalVotes() int {
	total := 0
	for _, label := range p.Options.labels {
		total += p.Options.counts[label]
	}
	return total
}

// OptionCounts maps option labels to vote counts while preserving the label
// order of the wire object, which is the order the host created the options
// in. A plain map would shuffle it.
type OptionCounts struct {
	labels []string
	counts map[string]int
}

// Labels returns the option labels in wire order.
func (o OptionCounts) Labels() []string {
	out := make([]string, len(o.labels))
	copy(out, o.labels)
	return out
}

// Count reports the vote count of a label and whether the label exists.
func (o OptionCounts) Count(label string) (int, bool) {
	n, ok := o.counts[label]
	return n, ok
}

// Len reports the number of options.
func (o OptionCounts) Len() int { return len(o.labels) }

// UnmarshalJSON decodes a JSON object token by token so that key order
// survives the trip through the decoder.
func (o *OptionCounts) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("options: expected object, got %v", tok)
	}

	labels := make([]string, 0, 4)
	counts := make(map[string]int, 4)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		label, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("options: expected string key, got %v", keyTok)
		}
		var n json.Number
		if err := dec.Decode(&n); err != nil {
			return fmt.Errorf("options[%s]: %w", label, err)
		}
		count, err := n.Int64()
		if err != nil {
			return fmt.Errorf("options[%s]: %w", label, err)
		}
		if count < 0 {
			return fmt.Errorf("options[%s]: negative count %d", label, count)
		}
		if _, seen := counts[label]; !seen {
			labels = append(labels, label)
		}
		counts[label] = int(count)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}

	o.labels = labels
	o.counts = counts
	return nil
}

// MarshalJSON writes the options back out in wire order.
func (o OptionCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, label := range o.labels {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		fmt.Fprintf(&buf, ":%d", o.counts[label])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
