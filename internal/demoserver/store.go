package demoserver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kingrea/opex/internal/api"
	"github.com/kingrea/opex/internal/domain"
	"github.com/kingrea/opex/internal/workflow"
)

var (
	ErrNotFound  = errors.New("demoserver: not found")
	ErrConflict  = errors.New("demoserver: conflict")
	ErrForbidden = errors.New("demoserver: forbidden")
)

// RequestError is a client mistake answered with 400.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func badRequest(format string, args ...any) error {
	return &RequestError{Message: fmt.Sprintf(format, args...)}
}

// Store holds the demo dataset behind a read-write lock.
type Store struct {
	catalog workflow.Catalog
	clock   func() time.Time

	mu    sync.RWMutex
	state State
}

// NewStore wraps state.
func NewStore(catalog workflow.Catalog, state State, clock func() time.Time) *Store {
	if clock == nil {
		clock = time.Now
	}
	return &Store{catalog: catalog, clock: clock, state: state}
}

// Snapshot returns a copy of the dataset for persistence.
func (s *Store) Snapshot() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.state
	out.Users = append([]domain.User(nil), s.state.Users...)
	out.Initiatives = append([]domain.Initiative(nil), s.state.Initiatives...)
	out.Transactions = append([]domain.WorkflowTransaction(nil), s.state.Transactions...)
	out.Timeline = append([]domain.TimelineEntry(nil), s.state.Timeline...)
	out.Monitoring = append([]domain.MonitoringEntry(nil), s.state.Monitoring...)
	out.Files = append([]StoredFile(nil), s.state.Files...)
	return out
}

func (s *Store) now() time.Time { return s.clock().UTC() }

func (s *Store) nextID() int64 {
	s.state.NextID++
	return s.state.NextID
}

// UserByEmail finds a user by address.
func (s *Store) UserByEmail(email string) (domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.state.Users {
		if domain.SameEmail(user.Email, email) {
			return user, true
		}
	}
	return domain.User{}, false
}

// Users lists users matching filter.
func (s *Store) Users(filter api.UserFilter) []domain.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.User{}
	for _, user := range s.state.Users {
		if filter.Role != "" && user.Role != filter.Role {
			continue
		}
		if filter.Site != "" && !strings.EqualFold(user.Site, filter.Site) {
			continue
		}
		out = append(out, user)
	}
	return out
}

// Initiatives lists initiatives visible to viewer that match filter.
func (s *Store) Initiatives(viewer domain.User, filter domain.InitiativeFilter) []domain.Initiative {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := strings.ToLower(strings.TrimSpace(filter.Search))
	out := []domain.Initiative{}
	for _, in := range s.state.Initiatives {
		if !canSee(viewer, in) {
			continue
		}
		if filter.Site != "" && !strings.EqualFold(in.Site, filter.Site) {
			continue
		}
		if filter.Status != "" && !strings.EqualFold(in.Status, filter.Status) {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(in.Title+" "+in.InitiativeNo+" "+in.Description), search) {
			continue
		}
		out = append(out, in)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// canSee limits site roles to their own site.
func canSee(viewer domain.User, in domain.Initiative) bool {
	if viewer.Role.Corporate() || viewer.Site == "" {
		return true
	}
	return strings.EqualFold(viewer.Site, in.Site)
}

// Initiative returns one initiative.
func (s *Store) Initiative(viewer domain.User, id int64) (domain.Initiative, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.initiativeIndex(id)
	if idx < 0 {
		return domain.Initiative{}, ErrNotFound
	}
	in := s.state.Initiatives[idx]
	if !canSee(viewer, in) {
		return domain.Initiative{}, ErrForbidden
	}
	return in, nil
}

func (s *Store) initiativeIndex(id int64) int {
	for i, in := range s.state.Initiatives {
		if in.ID == id {
			return i
		}
	}
	return -1
}

// CreateInitiative registers in. The creator's registration stage is
// approved immediately and the next stage opens.
func (s *Store) CreateInitiative(creator domain.User, in domain.Initiative) (domain.Initiative, error) {
	if err := in.Validate(); err != nil {
		return domain.Initiative{}, badRequest("%s", strings.TrimPrefix(err.Error(), "domain: "))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	in.ID = s.nextID()
	if in.InitiativeNo == "" {
		in.InitiativeNo = fmt.Sprintf("OPX/%d", in.ID)
	}
	in.CreatedByID = creator.ID
	in.CreatedByName = creator.FullName
	in.CreatedByEmail = creator.Email
	in.Status = domain.InitiativeStatusActive
	in.CurrentStage = 1
	in.CreatedAt = domain.NewTimestamp(now)
	in.UpdatedAt = domain.NewTimestamp(now)
	s.state.Initiatives = append(s.state.Initiatives, in)

	first := s.openStage(in, 1)
	first.ApproveStatus = domain.StatusApproved
	first.Comment = "Initiative registered"
	first.ActionBy = creator.Email
	first.ActionDate = domain.NewTimestamp(now)
	first.Version++
	s.replaceTransaction(first)
	s.advance(first)
	return s.state.Initiatives[s.initiativeIndex(in.ID)], nil
}

// UpdateInitiative overwrites the editable fields of an initiative.
func (s *Store) UpdateInitiative(viewer domain.User, in domain.Initiative) (domain.Initiative, error) {
	if err := in.Validate(); err != nil {
		return domain.Initiative{}, badRequest("%s", strings.TrimPrefix(err.Error(), "domain: "))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.initiativeIndex(in.ID)
	if idx < 0 {
		return domain.Initiative{}, ErrNotFound
	}
	current := s.state.Initiatives[idx]
	if !canSee(viewer, current) {
		return domain.Initiative{}, ErrForbidden
	}
	current.Title = in.Title
	current.Description = in.Description
	current.Discipline = in.Discipline
	current.Priority = in.Priority
	current.ExpectedSavings = in.ExpectedSavings
	current.ActualSavings = in.ActualSavings
	current.BudgetType = in.BudgetType
	current.StartDate = in.StartDate
	current.EndDate = in.EndDate
	current.TargetOutcome = in.TargetOutcome
	current.TargetValue = in.TargetValue
	current.ConfidenceLevel = in.ConfidenceLevel
	current.BaselineData = in.BaselineData
	current.Assumption1 = in.Assumption1
	current.Assumption2 = in.Assumption2
	current.Assumption3 = in.Assumption3
	current.UpdatedAt = domain.NewTimestamp(s.now())
	s.state.Initiatives[idx] = current
	return current, nil
}

// Transactions lists an initiative's transactions in stage order.
func (s *Store) Transactions(initiativeID int64) ([]domain.WorkflowTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.initiativeIndex(initiativeID) < 0 {
		return nil, ErrNotFound
	}
	return s.transactionsLocked(initiativeID), nil
}

func (s *Store) transactionsLocked(initiativeID int64) []domain.WorkflowTransaction {
	out := []domain.WorkflowTransaction{}
	for _, tx := range s.state.Transactions {
		if tx.InitiativeID == initiativeID && bool(tx.IsVisible) {
			out = append(out, tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StageNumber != out[j].StageNumber {
			return out[i].StageNumber < out[j].StageNumber
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// CurrentPending returns the initiative's pending transaction.
func (s *Store) CurrentPending(initiativeID int64) (domain.WorkflowTransaction, bool, error) {
	txs, err := s.Transactions(initiativeID)
	if err != nil {
		return domain.WorkflowTransaction{}, false, err
	}
	for _, tx := range txs {
		if tx.Pending() {
			return tx, true, nil
		}
	}
	return domain.WorkflowTransaction{}, false, nil
}

// Progress computes completion for an initiative.
func (s *Store) Progress(initiativeID int64) (domain.Progress, error) {
	txs, err := s.Transactions(initiativeID)
	if err != nil {
		return domain.Progress{}, err
	}
	progress := domain.ComputeProgress(initiativeID, txs)
	progress.TotalStages = s.catalog.Len()
	progress.Percentage = domain.Percent(float64(progress.CompletedStages), float64(progress.TotalStages))
	return progress, nil
}

// Process applies an action to a pending transaction. The call is
// conditional: a stale expected status or version is a conflict.
func (s *Store) Process(ctx context.Context, actor domain.User, txID int64, req api.ProcessRequest) (domain.WorkflowTransaction, error) {
	if err := req.Validate(); err != nil {
		return domain.WorkflowTransaction{}, badRequest("%s", strings.TrimPrefix(err.Error(), "api: "))
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, tx := range s.state.Transactions {
		if tx.ID == txID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.WorkflowTransaction{}, ErrNotFound
	}
	tx := s.state.Transactions[idx]
	if req.ExpectedStatus != "" && tx.ApproveStatus != req.ExpectedStatus {
		return domain.WorkflowTransaction{}, fmt.Errorf("%w: transaction is %s", ErrConflict, tx.ApproveStatus.Label())
	}
	if req.ExpectedVersion != 0 && tx.Version != req.ExpectedVersion {
		return domain.WorkflowTransaction{}, fmt.Errorf("%w: transaction was updated", ErrConflict)
	}
	status, err := domain.Apply(ctx, tx.ApproveStatus, req.Action)
	if err != nil {
		return domain.WorkflowTransaction{}, fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if !tx.PendingFor(actor.Email) && !s.catalog.CanAct(actor.Role, tx.StageNumber) {
		return domain.WorkflowTransaction{}, ErrForbidden
	}
	stage, ok := s.catalog.Stage(tx.StageNumber)
	if !ok {
		return domain.WorkflowTransaction{}, badRequest("unknown stage %d", tx.StageNumber)
	}
	inIdx := s.initiativeIndex(tx.InitiativeID)
	if inIdx < 0 {
		return domain.WorkflowTransaction{}, ErrNotFound
	}
	in := s.state.Initiatives[inIdx]

	switch req.Action {
	case domain.ActionReject:
		if !stage.Rejectable() {
			return domain.WorkflowTransaction{}, badRequest("%s cannot be rejected", stage.Name)
		}
	case domain.ActionDrop:
		if !stage.AllowDrop {
			return domain.WorkflowTransaction{}, badRequest("%s cannot be dropped", stage.Name)
		}
	case domain.ActionApprove:
		if err := s.checkApproval(stage, in, req); err != nil {
			return domain.WorkflowTransaction{}, err
		}
	}

	now := s.now()
	tx.ApproveStatus = status
	tx.Comment = strings.TrimSpace(req.Remarks)
	tx.ActionBy = actor.Email
	tx.ActionDate = domain.NewTimestamp(now)
	tx.UpdatedAt = domain.NewTimestamp(now)
	tx.Version++
	in.UpdatedAt = domain.NewTimestamp(now)

	switch req.Action {
	case domain.ActionApprove:
		switch stage.Form {
		case workflow.FormAssignLead:
			tx.AssignedUserID = req.AssignedUserID
		case workflow.FormMocCapex:
			in.RequiresMoc = *req.RequiresMoc
			in.RequiresCapex = *req.RequiresCapex
			in.MocNumber = req.MocNumber
			in.CapexNumber = req.CapexNumber
			tx.RequiresMoc = in.RequiresMoc
			tx.RequiresCapex = in.RequiresCapex
			tx.MocNumber = in.MocNumber
			tx.CapexNumber = in.CapexNumber
		}
	case domain.ActionReject:
		in.Status = domain.InitiativeStatusRejected
	case domain.ActionDrop:
		in.Status = domain.InitiativeStatusDropped
	}
	s.state.Initiatives[inIdx] = in
	s.state.Transactions[idx] = tx
	if req.Action == domain.ActionApprove {
		tx = s.advance(tx)
	}
	return tx, nil
}

func (s *Store) checkApproval(stage workflow.StageDefinition, in domain.Initiative, req api.ProcessRequest) error {
	switch stage.Form {
	case workflow.FormAssignLead:
		if req.AssignedUserID == nil {
			return badRequest("an Initiative Lead must be assigned")
		}
		user, ok := s.userLocked(*req.AssignedUserID)
		if !ok || user.Role != domain.RoleInitiativeLead || !strings.EqualFold(user.Site, in.Site) {
			return badRequest("user %d is not an Initiative Lead at %s", *req.AssignedUserID, in.Site)
		}
	case workflow.FormMocCapex:
		if req.RequiresMoc == nil || req.RequiresCapex == nil {
			return badRequest("MOC and CAPEX requirements are required")
		}
		if req.RequiresMoc.Bool() && strings.TrimSpace(req.MocNumber) == "" {
			return badRequest("MOC number is required")
		}
		if req.RequiresCapex.Bool() && strings.TrimSpace(req.CapexNumber) == "" {
			return badRequest("CAPEX number is required")
		}
	case workflow.FormTimelineGate:
		if !domain.AllCompleted(s.timelineLocked(in.ID)) {
			return badRequest("All timeline entries must be completed before approval")
		}
	case workflow.FormMonitoringGate:
		if !domain.AllFinalized(s.monitoringLocked(in.ID)) {
			return badRequest("All monitoring entries must be finalized before approval")
		}
	}
	return nil
}

// advance opens the stage after tx, or completes the initiative after the
// last stage. Caller holds the write lock.
func (s *Store) advance(tx domain.WorkflowTransaction) domain.WorkflowTransaction {
	inIdx := s.initiativeIndex(tx.InitiativeID)
	in := s.state.Initiatives[inIdx]
	nextNumber := 0
	for _, number := range s.catalog.Numbers() {
		if number > tx.StageNumber {
			nextNumber = number
			break
		}
	}
	if nextNumber == 0 {
		in.Status = domain.InitiativeStatusCompleted
		s.state.Initiatives[inIdx] = in
		return tx
	}
	next := s.openStage(in, nextNumber)
	tx.NextStageName = next.StageName
	tx.NextUser = next.PendingWith
	s.replaceTransaction(tx)
	in.CurrentStage = nextNumber
	s.state.Initiatives[inIdx] = in
	return tx
}

// openStage appends a pending transaction for stage.
func (s *Store) openStage(in domain.Initiative, stage int) domain.WorkflowTransaction {
	owner := ownerFor(s.catalog, s.state.Users, in, s.assignedLead(in.ID), stage)
	now := s.now()
	tx := domain.WorkflowTransaction{
		ID:            s.nextID(),
		InitiativeID:  in.ID,
		StageNumber:   stage,
		StageName:     s.catalog.StageName(stage),
		Site:          in.Site,
		ApproveStatus: domain.StatusPending,
		PendingWith:   owner.Email,
		RequiredRole:  requiredRole(s.catalog, stage),
		IsVisible:     true,
		RequiresMoc:   in.RequiresMoc,
		RequiresCapex: in.RequiresCapex,
		MocNumber:     in.MocNumber,
		CapexNumber:   in.CapexNumber,
		CreatedAt:     domain.NewTimestamp(now),
		UpdatedAt:     domain.NewTimestamp(now),
		Version:       1,
	}
	if owner.ID != 0 {
		id := owner.ID
		tx.AssignedUserID = &id
	}
	s.state.Transactions = append(s.state.Transactions, tx)
	return tx
}

func (s *Store) replaceTransaction(tx domain.WorkflowTransaction) {
	for i := range s.state.Transactions {
		if s.state.Transactions[i].ID == tx.ID {
			s.state.Transactions[i] = tx
			return
		}
	}
}

// assignedLead returns the lead chosen at the assign-lead stage.
func (s *Store) assignedLead(initiativeID int64) int64 {
	for _, tx := range s.state.Transactions {
		if tx.InitiativeID != initiativeID || tx.ApproveStatus != domain.StatusApproved || tx.AssignedUserID == nil {
			continue
		}
		if stage, ok := s.catalog.Stage(tx.StageNumber); ok && stage.Form == workflow.FormAssignLead {
			return *tx.AssignedUserID
		}
	}
	return 0
}

func (s *Store) userLocked(id int64) (domain.User, bool) {
	for _, user := range s.state.Users {
		if user.ID == id {
			return user, true
		}
	}
	return domain.User{}, false
}

// Timeline lists an initiative's timeline entries.
func (s *Store) Timeline(initiativeID int64) ([]domain.TimelineEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.initiativeIndex(initiativeID) < 0 {
		return nil, ErrNotFound
	}
	return s.timelineLocked(initiativeID), nil
}

func (s *Store) timelineLocked(initiativeID int64) []domain.TimelineEntry {
	out := []domain.TimelineEntry{}
	for _, entry := range s.state.Timeline {
		if entry.InitiativeID == initiativeID {
			out = append(out, entry)
		}
	}
	return out
}

// Monitoring lists an initiative's monitoring entries.
func (s *Store) Monitoring(initiativeID int64) ([]domain.MonitoringEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.initiativeIndex(initiativeID) < 0 {
		return nil, ErrNotFound
	}
	return s.monitoringLocked(initiativeID), nil
}

func (s *Store) monitoringLocked(initiativeID int64) []domain.MonitoringEntry {
	out := []domain.MonitoringEntry{}
	for _, entry := range s.state.Monitoring {
		if entry.InitiativeID == initiativeID {
			out = append(out, entry)
		}
	}
	return out
}

// ApproveFA marks finalized entries as validated by F&A.
func (s *Store) ApproveFA(actor domain.User, req api.FAApproveRequest) (int, error) {
	if actor.Role != domain.RoleFinance {
		return 0, ErrForbidden
	}
	if len(req.EntryIDs) == 0 {
		return 0, badRequest("at least one entry is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	wanted := make(map[int64]bool, len(req.EntryIDs))
	for _, id := range req.EntryIDs {
		wanted[id] = true
	}
	approved := 0
	for i, entry := range s.state.Monitoring {
		if !wanted[entry.ID] {
			continue
		}
		if !entry.EligibleForFA() {
			return 0, badRequest("entry %d is not awaiting F&A validation", entry.ID)
		}
		entry.FAApproval = true
		entry.FAComments = strings.TrimSpace(req.FAComments)
		s.state.Monitoring[i] = entry
		approved++
	}
	if approved != len(wanted) {
		return 0, ErrNotFound
	}
	return approved, nil
}

// Files lists an initiative's attachments.
func (s *Store) Files(initiativeID int64) ([]domain.InitiativeFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.initiativeIndex(initiativeID) < 0 {
		return nil, ErrNotFound
	}
	out := []domain.InitiativeFile{}
	for _, file := range s.state.Files {
		if file.InitiativeID == initiativeID {
			out = append(out, file.InitiativeFile)
		}
	}
	return out, nil
}

// AddFile stores an upload.
func (s *Store) AddFile(actor domain.User, initiativeID int64, name, contentType string, content []byte) (domain.InitiativeFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initiativeIndex(initiativeID) < 0 {
		return domain.InitiativeFile{}, ErrNotFound
	}
	file := StoredFile{
		InitiativeFile: domain.InitiativeFile{
			ID:           s.nextID(),
			InitiativeID: initiativeID,
			FileName:     name,
			FileType:     contentType,
			FileSize:     int64(len(content)),
			UploadedBy:   actor.Email,
			UploadedAt:   domain.NewTimestamp(s.now()),
		},
		Key:     uuid.NewString(),
		Content: append([]byte(nil), content...),
	}
	s.state.Files = append(s.state.Files, file)
	return file.InitiativeFile, nil
}

// File returns a stored upload with its content.
func (s *Store) File(id int64) (StoredFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, file := range s.state.Files {
		if file.ID == id {
			return file, nil
		}
	}
	return StoredFile{}, ErrNotFound
}

// DeleteFile removes an upload.
func (s *Store) DeleteFile(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, file := range s.state.Files {
		if file.ID == id {
			s.state.Files = append(s.state.Files[:i], s.state.Files[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}
