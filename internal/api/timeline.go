package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/kingrea/opex/internal/domain"
)

// TimelineEntries lists an initiative's timeline tasks.
func (c *Client) TimelineEntries(ctx context.Context, initiativeID int64) ([]domain.TimelineEntry, error) {
	var out []domain.TimelineEntry
	if err := c.do(ctx, http.MethodGet, idPath("/timeline-tracker/%d", initiativeID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// completionFlag decodes {"allCompleted": bool} or a bare boolean.
type completionFlag bool

func (f *completionFlag) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			AllCompleted bool `json:"allCompleted"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return err
		}
		*f = completionFlag(wrapped.AllCompleted)
		return nil
	}
	var bare bool
	if err := json.Unmarshal(trimmed, &bare); err != nil {
		return fmt.Errorf("api: decode completion flag: %w", err)
	}
	*f = completionFlag(bare)
	return nil
}

// TimelineAllCompleted asks whether every timeline entry is completed.
func (c *Client) TimelineAllCompleted(ctx context.Context, initiativeID int64) (bool, error) {
	var out completionFlag
	if err := c.do(ctx, http.MethodGet, idPath("/timeline-tracker/%d/all-completed", initiativeID), nil, nil, &out); err != nil {
		return false, err
	}
	return bool(out), nil
}
