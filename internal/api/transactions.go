package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/kingrea/opex/internal/domain"
)

var validate = validator.New()

// ProcessRequest is the body of POST /workflow-transactions/{id}/process.
// ExpectedStatus and ExpectedVersion make the call conditional: the backend
// answers 409 when the transaction moved on.
type ProcessRequest struct {
	Action          domain.Action `json:"action" validate:"required,oneof=approved rejected dropped"`
	Remarks         string        `json:"remarks" validate:"required"`
	AssignedUserID  *int64        `json:"assignedUserId,omitempty" validate:"omitempty,gt=0"`
	RequiresMoc     *domain.YesNo `json:"requiresMoc,omitempty"`
	MocNumber       string        `json:"mocNumber,omitempty"`
	RequiresCapex   *domain.YesNo `json:"requiresCapex,omitempty"`
	CapexNumber     string        `json:"capexNumber,omitempty"`
	ExpectedStatus  domain.Status `json:"expectedStatus,omitempty"`
	ExpectedVersion int64         `json:"expectedVersion,omitempty"`
}

// Validate checks field rules before the request is sent.
func (r ProcessRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("api: process request: %s failed %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("api: process request: %w", err)
	}
	return nil
}

// VisibleTransactions lists the transactions the user may see for an initiative.
func (c *Client) VisibleTransactions(ctx context.Context, initiativeID int64) ([]domain.WorkflowTransaction, error) {
	var out []domain.WorkflowTransaction
	if err := c.do(ctx, http.MethodGet, idPath("/workflow-transactions/visible/%d", initiativeID), nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CurrentPending returns the initiative's pending transaction. ok is false
// when nothing is pending.
func (c *Client) CurrentPending(ctx context.Context, initiativeID int64) (domain.WorkflowTransaction, bool, error) {
	var out *domain.WorkflowTransaction
	err := c.do(ctx, http.MethodGet, idPath("/workflow-transactions/current-pending/%d", initiativeID), nil, nil, &out)
	if errors.Is(err, ErrNotFound) {
		return domain.WorkflowTransaction{}, false, nil
	}
	if err != nil {
		return domain.WorkflowTransaction{}, false, err
	}
	if out == nil {
		return domain.WorkflowTransaction{}, false, nil
	}
	return *out, true, nil
}

// Progress returns the completion percentage of an initiative.
func (c *Client) Progress(ctx context.Context, initiativeID int64) (domain.Progress, error) {
	var out domain.Progress
	if err := c.do(ctx, http.MethodGet, idPath("/workflow-transactions/progress/%d", initiativeID), nil, nil, &out); err != nil {
		return domain.Progress{}, err
	}
	if out.InitiativeID == 0 {
		out.InitiativeID = initiativeID
	}
	return out, nil
}

// ProcessStage submits an action against a pending transaction.
func (c *Client) ProcessStage(ctx context.Context, transactionID int64, req ProcessRequest) (domain.WorkflowTransaction, error) {
	if err := req.Validate(); err != nil {
		return domain.WorkflowTransaction{}, err
	}
	var out domain.WorkflowTransaction
	if err := c.do(ctx, http.MethodPost, idPath("/workflow-transactions/%d/process", transactionID), nil, req, &out); err != nil {
		return domain.WorkflowTransaction{}, err
	}
	return out, nil
}
