package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/kingrea/opex/internal/domain"
)

// FAApproveRequest approves a batch of monthly monitoring entries.
type FAApproveRequest struct {
	EntryIDs   []int64 `json:"entryIds" validate:"required,min=1,dive,gt=0"`
	FAComments string  `json:"faComments,omitempty"`
}

// MonitoringEntries lists an initiative's monthly savings records.
func (c *Client) MonitoringEntries(ctx context.Context, initiativeID int64) ([]domain.MonitoringEntry, error) {
	var out []domain.MonitoringEntry
	if err := c.do(ctx, http.MethodGet, idPath("/monthly-monitoring/%d", initiativeID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApproveFA marks the given entries as approved by F&A.
func (c *Client) ApproveFA(ctx context.Context, req FAApproveRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("api: fa approve: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/monthly-monitoring/fa-approve", nil, req, nil)
}
