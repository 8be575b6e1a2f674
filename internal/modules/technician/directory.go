// README: Directory merges profile rows with live presence for the dispatch engine.
package technician

import (
	"context"

	"fieldops/internal/types"
)

// Directory is the read side the dispatch engine ranks from: profile data
// out of Postgres with live position and online flag merged in from Redis.
type Directory struct {
	store    *Store
	presence *PresenceStore
}

func NewDirectory(store *Store, presence *PresenceStore) *Directory {
	return &Directory{store: store, presence: presence}
}

func (d *Directory) Get(ctx context.Context, id types.ID) (*Technician, error) {
	t, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	p, err := d.presence.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	applyPresence(t, p)
	return t, nil
}

func (d *Directory) ListActive(ctx context.Context) ([]Technician, error) {
	techs, err := d.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	return d.merge(ctx, techs)
}

func (d *Directory) ListAvailableByCity(ctx context.Context, city string) ([]Technician, error) {
	techs, err := d.store.ListAvailableByCity(ctx, city)
	if err != nil {
		return nil, err
	}
	return d.merge(ctx, techs)
}

func (d *Directory) IncrementActiveJobs(ctx context.Context, id types.ID) error {
	return d.store.IncrementActiveJobs(ctx, id)
}

func (d *Directory) IncrementRejections(ctx context.Context, id types.ID) error {
	return d.store.IncrementRejections(ctx, id)
}

func (d *Directory) merge(ctx context.Context, techs []Technician) ([]Technician, error) {
	ids := make([]types.ID, len(techs))
	for i, t := range techs {
		ids[i] = t.ID
	}
	presences, err := d.presence.GetMany(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range techs {
		if p, ok := presences[techs[i].ID]; ok {
			applyPresence(&techs[i], &p)
		}
	}
	return techs, nil
}

func applyPresence(t *Technician, p *Presence) {
	if p == nil {
		return
	}
	pos := p.Position
	t.Current = &pos
	t.Online = p.Online
}
