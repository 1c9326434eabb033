package rapport

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rcliao/rapport/internal/model"
)

var speakerRoles = map[string]string{
	"human:":     "human",
	"user:":      "human",
	"agent:":     "agent",
	"assistant:": "agent",
}

// ParseTranscript reads either a JSON array of {role, text} objects or plain
// text where each turn starts with "Human:" or "Agent:". Unprefixed lines
// continue the previous turn.
func ParseTranscript(r io.Reader) (model.Transcript, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read transcript: %w", err)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var t model.Transcript
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return nil, fmt.Errorf("decode transcript: %w", err)
		}
		for i := range t {
			t[i].Role = strings.ToLower(t[i].Role)
			if t[i].Role == "user" {
				t[i].Role = "human"
			}
			if t[i].Role == "assistant" {
				t[i].Role = "agent"
			}
			if !model.ValidRoles[t[i].Role] {
				return nil, fmt.Errorf("turn %d: unknown role %q", i, t[i].Role)
			}
		}
		return t, nil
	}

	var t model.Transcript
	sc := bufio.NewScanner(bytes.NewReader(trimmed))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if role, rest, ok := speaker(line); ok {
			t = append(t, model.Utterance{Role: role, Text: rest})
			continue
		}
		if len(t) == 0 {
			if strings.TrimSpace(line) == "" {
				continue
			}
			return nil, fmt.Errorf("transcript must start with Human: or Agent:")
		}
		last := &t[len(t)-1]
		last.Text = strings.TrimSpace(last.Text + "\n" + line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan transcript: %w", err)
	}
	return t, nil
}

func speaker(line string) (role, rest string, ok bool) {
	lower := strings.ToLower(line)
	for prefix, role := range speakerRoles {
		if strings.HasPrefix(lower, prefix) {
			return role, strings.TrimSpace(line[len(prefix):]), true
		}
	}
	return "", "", false
}
