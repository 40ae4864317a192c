package sync

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"hubsync/internal/hubspot"
)

// CRM is the slice of the HubSpot client the engines consume.
type CRM interface {
	SearchAll(ctx context.Context, objectType string, req hubspot.SearchRequest) ([]hubspot.Object, error)
	ListOwners(ctx context.Context) ([]hubspot.Owner, error)
	GetOwner(ctx context.Context, id string) (hubspot.Owner, error)
	DealPipelines(ctx context.Context) ([]hubspot.Pipeline, error)
	ListProperties(ctx context.Context, objectType string) ([]hubspot.Property, error)
	AssociatedIDs(ctx context.Context, fromType, fromID, toType string) ([]string, error)
	GetObject(ctx context.Context, objectType, id string, properties []string) (hubspot.Object, error)
	BatchRead(ctx context.Context, objectType string, ids, properties []string) ([]hubspot.Object, error)
}

// OwnerDirectory caches owner id to display name for one run. Misses hit
// the per-id endpoint once; absent owners are cached as empty so repeated
// lookups stay local.
type OwnerDirectory struct {
	crm   CRM
	log   *zap.SugaredLogger
	names map[string]string
}

// NewOwnerDirectory loads the full active owner listing up front.
func NewOwnerDirectory(ctx context.Context, crm CRM, log *zap.SugaredLogger) (*OwnerDirectory, error) {
	owners, err := crm.ListOwners(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(owners))
	for _, o := range owners {
		names[o.ID] = o.DisplayName()
	}
	log.Infow("loaded owner directory", "owners", len(names))
	return &OwnerDirectory{crm: crm, log: log, names: names}, nil
}

// Name resolves an owner id to a display name. Empty string means the
// owner does not exist (anymore).
func (d *OwnerDirectory) Name(ctx context.Context, ownerID string) string {
	if ownerID == "" {
		return ""
	}
	if name, ok := d.names[ownerID]; ok {
		return name
	}
	owner, err := d.crm.GetOwner(ctx, ownerID)
	if err != nil {
		d.log.Debugw("owner lookup failed", "owner_id", ownerID, "error", err)
		d.names[ownerID] = ""
		return ""
	}
	d.names[ownerID] = owner.DisplayName()
	return d.names[ownerID]
}

// IDsForNames resolves display names to owner ids, preserving the order
// of the input list. Names that match no loaded owner are dropped.
func (d *OwnerDirectory) IDsForNames(names []string) []string {
	byName := make(map[string]string, len(d.names))
	for id, name := range d.names {
		if name != "" {
			byName[name] = id
		}
	}
	var ids []string
	for _, name := range names {
		if id, ok := byName[name]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

// Known returns a copy of every cached id to name mapping.
func (d *OwnerDirectory) Known() map[string]string {
	out := make(map[string]string, len(d.names))
	for id, name := range d.names {
		out[id] = name
	}
	return out
}

// HiddenOwnerFilter excludes owners whose name contains any of the
// configured fragments.
type HiddenOwnerFilter struct {
	fragments []string
}

func NewHiddenOwnerFilter(fragments []string) *HiddenOwnerFilter {
	return &HiddenOwnerFilter{fragments: fragments}
}

// Hidden reports whether the owner name matches the exclusion list.
func (f *HiddenOwnerFilter) Hidden(ownerName string) bool {
	if ownerName == "" {
		return false
	}
	for _, frag := range f.fragments {
		if frag != "" && strings.Contains(ownerName, frag) {
			return true
		}
	}
	return false
}
