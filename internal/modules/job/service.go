// README: Job service implements creation, cancellation, and reads.
package job

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"fieldops/internal/types"
)

var ErrBadRequest = errors.New("bad request")

type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

type CreateCommand struct {
	CustomerID types.ID
	Category   string
	Location   *types.Point
	Address    Address
}

type CancelCommand struct {
	JobID     types.ID
	ActorType string
	Reason    string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if cmd.CustomerID == "" || cmd.Category == "" {
		return "", ErrBadRequest
	}
	if cmd.Location == nil && cmd.Address.City == "" {
		// Without coordinates the engine matches by city; one of the two is required.
		return "", ErrBadRequest
	}

	id := NewID()
	now := time.Now()

	j := &Job{
		ID:         id,
		CustomerID: cmd.CustomerID,
		Status:     StatusPending,
		Category:   cmd.Category,
		Location:   cmd.Location,
		Address:    cmd.Address,
		CreatedAt:  now,
	}
	if err := s.store.Create(ctx, j); err != nil {
		return "", err
	}
	_ = s.store.AppendEvent(ctx, &Event{
		JobID:      id,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorType:  "customer",
		ActorID:    &cmd.CustomerID,
		CreatedAt:  now,
	})
	return id, nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return err
	}
	if !CanTransition(j.Status, StatusCancelled) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, j.ID, j.Status, StatusCancelled, j.StatusVersion, nil)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	_ = s.store.AppendEvent(ctx, &Event{
		JobID:      j.ID,
		FromStatus: j.Status,
		ToStatus:   StatusCancelled,
		ActorType:  cmd.ActorType,
		CreatedAt:  time.Now(),
	})
	return nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Job, error) {
	return s.store.Get(ctx, id)
}

func NewID() types.ID {
	var b [16]byte
	_, _ = rand.Read(b[:])
	return types.ID(hex.EncodeToString(b[:]))
}
