package sync

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"go.uber.org/zap"

	"hubsync/internal/models"
)

// detailFetcher resolves enriched deal records (with associated company
// and contact names) on a small worker pool. Rate pressure is kept low by
// spacing each lookup with a fixed delay on top of the client's limiter.
type detailFetcher struct {
	crm      CRM
	log      *zap.SugaredLogger
	workers  int
	delay    time.Duration
	portalID string
}

func newDetailFetcher(crm CRM, log *zap.SugaredLogger, workers int, delay time.Duration, portalID string) *detailFetcher {
	if workers <= 0 {
		workers = 2
	}
	if delay <= 0 {
		delay = time.Second
	}
	return &detailFetcher{crm: crm, log: log, workers: workers, delay: delay, portalID: portalID}
}

// FetchAll resolves details for every id. Failed lookups are logged and
// dropped from the result.
func (f *detailFetcher) FetchAll(ctx context.Context, ids map[string]bool) map[string]models.DealDetail {
	var (
		mu      gosync.Mutex
		wg      gosync.WaitGroup
		sem     = make(chan struct{}, f.workers)
		details = make(map[string]models.DealDetail, len(ids))
	)
	for id := range ids {
		wg.Add(1)
		go func(dealID string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			select {
			case <-ctx.Done():
				return
			case <-time.After(f.delay):
			}
			detail, err := f.fetch(ctx, dealID)
			if err != nil {
				f.log.Debugw("deal detail fetch failed", "deal_id", dealID, "error", err)
				return
			}
			mu.Lock()
			details[dealID] = detail
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return details
}

func (f *detailFetcher) fetch(ctx context.Context, dealID string) (models.DealDetail, error) {
	deal, err := f.crm.GetObject(ctx, "deals", dealID, []string{
		"dealname", "amount", "dealstage", "hubspot_owner_id", "createdate",
	})
	if err != nil {
		return models.DealDetail{}, err
	}

	detail := models.DealDetail{
		ID:          dealID,
		Name:        deal.Prop("dealname"),
		Amount:      deal.Prop("amount"),
		Stage:       deal.Prop("dealstage"),
		OwnerID:     deal.Prop("hubspot_owner_id"),
		CompanyName: "-",
		ContactName: "-",
		CreatedDate: deal.Prop("createdate"),
	}
	if f.portalID != "" {
		detail.Link = fmt.Sprintf("https://app.hubspot.com/contacts/%s/record/0-3/%s/", f.portalID, dealID)
	}

	if companyIDs, err := f.crm.AssociatedIDs(ctx, "deals", dealID, "companies"); err == nil && len(companyIDs) > 0 {
		if company, err := f.crm.GetObject(ctx, "companies", companyIDs[0], []string{"name"}); err == nil {
			if name := company.Prop("name"); name != "" {
				detail.CompanyName = name
			}
		}
	}
	if contactIDs, err := f.crm.AssociatedIDs(ctx, "deals", dealID, "contacts"); err == nil && len(contactIDs) > 0 {
		if contact, err := f.crm.GetObject(ctx, "contacts", contactIDs[0], []string{"firstname", "lastname", "email"}); err == nil {
			name := contactDisplayName(contact)
			if name == contact.ID {
				name = contact.Prop("email")
			}
			if name != "" {
				detail.ContactName = name
			}
		}
	}
	return detail, nil
}
