package shopify

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sixfold/sixfold/errors"
	"github.com/sixfold/sixfold/jobs"
	"github.com/sixfold/sixfold/ontology"
)

// SyncJobName is the handler name bulk sync jobs run under
const SyncJobName = "shopify.sync"

// syncActor attributes sync mutations in the audit trail
const syncActor = "shopify-sync"

// Resources the sync can pull
const (
	ResourceProducts  = "products"
	ResourceOrders    = "orders"
	ResourceCustomers = "customers"
)

// SyncPayload is the job payload for a bulk sync
type SyncPayload struct {
	GroupID  string `json:"group_id"`
	Resource string `json:"resource"`
}

// SyncService pulls Shopify resources page by page and maps them into
// ontology things. The pagination cursor is persisted after every page,
// so a retried job resumes where the failed attempt stopped instead of
// starting over.
type SyncService struct {
	db         *sql.DB
	client     Executor
	ontology   *ontology.Service
	shopDomain string
	pageSize   int
	logger     *zap.SugaredLogger
}

func NewSyncService(db *sql.DB, client Executor, svc *ontology.Service, shopDomain string, pageSize int, logger *zap.SugaredLogger) *SyncService {
	if pageSize <= 0 {
		pageSize = 50
	}
	return &SyncService{
		db:         db,
		client:     client,
		ontology:   svc,
		shopDomain: shopDomain,
		pageSize:   pageSize,
		logger:     logger,
	}
}

// RegisterHandlers adds the sync and webhook job handlers to the registry
func (s *SyncService) RegisterHandlers(registry *jobs.Registry) {
	registry.Register(jobs.HandlerFunc{HandlerName: SyncJobName, Fn: s.runSync})
	registry.Register(jobs.HandlerFunc{HandlerName: WebhookJobName, Fn: s.runWebhook})
}

// Enqueue validates a sync request and queues the job
func (s *SyncService) Enqueue(ctx context.Context, queue *jobs.Queue, groupID, resource string) (*jobs.Job, error) {
	switch resource {
	case ResourceProducts, ResourceOrders, ResourceCustomers:
	default:
		return nil, errors.NewInvalidRequestError("unknown sync resource: %s", resource)
	}

	if err := s.claimShop(ctx, groupID); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(SyncPayload{GroupID: groupID, Resource: resource})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal sync payload")
	}
	return queue.Enqueue(ctx, SyncJobName, payload)
}

// claimShop binds the configured shop domain to the group on its first
// sync. A shop belongs to exactly one group; syncing it into a second
// group would leak the shop's data across tenants.
func (s *SyncService) claimShop(ctx context.Context, groupID string) error {
	if s.shopDomain == "" {
		return errors.NewInvalidRequestError("no shop domain configured")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shopify_shops (id, group_id, shop_domain)
		VALUES (?, ?, ?)
		ON CONFLICT (shop_domain) DO NOTHING
	`, uuid.New().String(), groupID, s.shopDomain)
	if err != nil {
		return errors.Wrap(err, "failed to record shop")
	}

	var owner string
	err = s.db.QueryRowContext(ctx,
		`SELECT group_id FROM shopify_shops WHERE shop_domain = ?`, s.shopDomain).Scan(&owner)
	if err != nil {
		return errors.Wrap(err, "failed to look up shop owner")
	}
	if owner != groupID {
		return errors.NewConflictError("shop %s is already linked to another group", s.shopDomain)
	}
	return nil
}

// runSync executes one bulk sync job. Pages are fetched until the
// connection is exhausted; the cursor row is updated after each page and
// cleared on completion.
func (s *SyncService) runSync(ctx context.Context, job *jobs.Job) error {
	var payload SyncPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "failed to decode sync payload")
	}

	cursor, syncedCount, err := s.loadCursor(ctx, payload.GroupID, payload.Resource)
	if err != nil {
		return err
	}
	if cursor != "" {
		s.logger.Infow("resuming sync from saved cursor",
			"group_id", payload.GroupID, "resource", payload.Resource, "synced", syncedCount)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		count, page, err := s.syncPage(ctx, payload.GroupID, payload.Resource, cursor)
		if err != nil {
			return err
		}
		syncedCount += count

		if !page.HasNextPage {
			break
		}
		cursor = page.EndCursor

		if err := s.saveCursor(ctx, payload.GroupID, payload.Resource, cursor, syncedCount); err != nil {
			return err
		}
		job.SetProgress(fmt.Sprintf("synced %d %s", syncedCount, payload.Resource))
	}

	if err := s.clearCursor(ctx, payload.GroupID, payload.Resource); err != nil {
		return err
	}
	job.SetProgress(fmt.Sprintf("synced %d %s", syncedCount, payload.Resource))

	// Audit failures are logged, not propagated; the sync already happened
	if _, err := s.ontology.Events.Append(ctx, payload.GroupID, syncActor, "sync.completed", payload.Resource,
		json.RawMessage(fmt.Sprintf(`{"resource":%q,"count":%d}`, payload.Resource, syncedCount))); err != nil {
		s.logger.Errorw("Failed to record sync completion event",
			"group_id", payload.GroupID, "resource", payload.Resource, "error", err)
	}

	s.logger.Infow("sync completed",
		"group_id", payload.GroupID, "resource", payload.Resource, "count", syncedCount)
	return nil
}

func (s *SyncService) syncPage(ctx context.Context, groupID, resource, cursor string) (int, PageInfo, error) {
	switch resource {
	case ResourceProducts:
		return s.syncProductPage(ctx, groupID, cursor)
	case ResourceOrders:
		return s.syncOrderPage(ctx, groupID, cursor)
	case ResourceCustomers:
		return s.syncCustomerPage(ctx, groupID, cursor)
	default:
		return 0, PageInfo{}, errors.NewInvalidRequestError("unknown sync resource: %s", resource)
	}
}

const productsQuery = `
query ($first: Int!, $after: String) {
  products(first: $first, after: $after) {
    nodes { id title handle status description vendor }
    pageInfo { hasNextPage endCursor }
  }
}`

func (s *SyncService) syncProductPage(ctx context.Context, groupID, cursor string) (int, PageInfo, error) {
	var data struct {
		Products struct {
			Nodes    []Product `json:"nodes"`
			PageInfo PageInfo  `json:"pageInfo"`
		} `json:"products"`
	}
	if err := s.client.Execute(ctx, productsQuery, s.pageVars(cursor), &data); err != nil {
		return 0, PageInfo{}, err
	}

	for _, p := range data.Products.Nodes {
		props, err := json.Marshal(map[string]any{
			"shopify_id": p.ID,
			"handle":     p.Handle,
			"status":     p.Status,
			"vendor":     p.Vendor,
		})
		if err != nil {
			return 0, PageInfo{}, errors.Wrap(err, "failed to marshal product properties")
		}
		if err := s.upsertThing(ctx, groupID, "product", p.ID, p.Title, props); err != nil {
			return 0, PageInfo{}, err
		}
	}
	return len(data.Products.Nodes), data.Products.PageInfo, nil
}

const ordersQuery = `
query ($first: Int!, $after: String) {
  orders(first: $first, after: $after) {
    nodes {
      id name email
      totalPriceSet { shopMoney { amount currencyCode } }
    }
    pageInfo { hasNextPage endCursor }
  }
}`

func (s *SyncService) syncOrderPage(ctx context.Context, groupID, cursor string) (int, PageInfo, error) {
	var data struct {
		Orders struct {
			Nodes    []Order  `json:"nodes"`
			PageInfo PageInfo `json:"pageInfo"`
		} `json:"orders"`
	}
	if err := s.client.Execute(ctx, ordersQuery, s.pageVars(cursor), &data); err != nil {
		return 0, PageInfo{}, err
	}

	for _, o := range data.Orders.Nodes {
		props, err := json.Marshal(map[string]any{
			"shopify_id": o.ID,
			"email":      o.Email,
			"total":      o.TotalPriceSet.ShopMoney.Amount,
			"currency":   o.TotalPriceSet.ShopMoney.CurrencyCode,
		})
		if err != nil {
			return 0, PageInfo{}, errors.Wrap(err, "failed to marshal order properties")
		}
		if err := s.upsertThing(ctx, groupID, "order", o.ID, o.Name, props); err != nil {
			return 0, PageInfo{}, err
		}
	}
	return len(data.Orders.Nodes), data.Orders.PageInfo, nil
}

const customersQuery = `
query ($first: Int!, $after: String) {
  customers(first: $first, after: $after) {
    nodes { id displayName email }
    pageInfo { hasNextPage endCursor }
  }
}`

func (s *SyncService) syncCustomerPage(ctx context.Context, groupID, cursor string) (int, PageInfo, error) {
	var data struct {
		Customers struct {
			Nodes    []Customer `json:"nodes"`
			PageInfo PageInfo   `json:"pageInfo"`
		} `json:"customers"`
	}
	if err := s.client.Execute(ctx, customersQuery, s.pageVars(cursor), &data); err != nil {
		return 0, PageInfo{}, err
	}

	for _, c := range data.Customers.Nodes {
		props, err := json.Marshal(map[string]any{
			"shopify_id": c.ID,
			"email":      c.Email,
		})
		if err != nil {
			return 0, PageInfo{}, errors.Wrap(err, "failed to marshal customer properties")
		}
		if err := s.upsertThing(ctx, groupID, "customer", c.ID, c.DisplayName, props); err != nil {
			return 0, PageInfo{}, err
		}
	}
	return len(data.Customers.Nodes), data.Customers.PageInfo, nil
}

func (s *SyncService) pageVars(cursor string) map[string]any {
	vars := map[string]any{"first": s.pageSize}
	if cursor != "" {
		vars["after"] = cursor
	}
	return vars
}

// upsertThing creates or updates the thing mirroring a Shopify resource.
// Resources are matched by the shopify_id property so re-syncs and
// webhook updates converge on the same thing.
func (s *SyncService) upsertThing(ctx context.Context, groupID, thingType, externalID, name string, properties json.RawMessage) error {
	existing, err := s.findByExternalID(ctx, groupID, thingType, externalID)
	if err != nil {
		return err
	}

	if existing != "" {
		_, err = s.ontology.UpdateThing(ctx, groupID, syncActor, existing, name, properties)
		return err
	}
	_, err = s.ontology.CreateThing(ctx, groupID, syncActor, thingType, name, properties)
	return err
}

func (s *SyncService) findByExternalID(ctx context.Context, groupID, thingType, externalID string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM things
		WHERE group_id = ? AND type = ? AND json_extract(properties, '$.shopify_id') = ?
	`, groupID, thingType, externalID).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "failed to look up synced thing")
	}
	return id, nil
}

// runWebhook applies one accepted webhook delivery to the ontology
func (s *SyncService) runWebhook(ctx context.Context, job *jobs.Job) error {
	var payload WebhookPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return errors.Wrap(err, "failed to decode webhook payload")
	}

	resource, _, found := strings.Cut(payload.Topic, "/")
	if !found {
		return errors.NewInvalidRequestError("malformed webhook topic: %s", payload.Topic)
	}

	switch resource {
	case "products":
		var p Product
		if err := json.Unmarshal(payload.Body, &p); err != nil {
			return errors.Wrap(err, "failed to decode product webhook")
		}
		props, _ := json.Marshal(map[string]any{
			"shopify_id": p.ID,
			"handle":     p.Handle,
			"status":     p.Status,
			"vendor":     p.Vendor,
		})
		return s.upsertThing(ctx, payload.GroupID, "product", p.ID, p.Title, props)

	case "orders":
		var o Order
		if err := json.Unmarshal(payload.Body, &o); err != nil {
			return errors.Wrap(err, "failed to decode order webhook")
		}
		props, _ := json.Marshal(map[string]any{
			"shopify_id": o.ID,
			"email":      o.Email,
			"total":      o.TotalPriceSet.ShopMoney.Amount,
			"currency":   o.TotalPriceSet.ShopMoney.CurrencyCode,
		})
		return s.upsertThing(ctx, payload.GroupID, "order", o.ID, o.Name, props)

	case "customers":
		var c Customer
		if err := json.Unmarshal(payload.Body, &c); err != nil {
			return errors.Wrap(err, "failed to decode customer webhook")
		}
		props, _ := json.Marshal(map[string]any{
			"shopify_id": c.ID,
			"email":      c.Email,
		})
		return s.upsertThing(ctx, payload.GroupID, "customer", c.ID, c.DisplayName, props)

	default:
		// Unhandled topics are acknowledged, not failed; Shopify keeps
		// redelivering failed webhooks.
		s.logger.Debugw("ignoring unhandled webhook topic", "topic", payload.Topic)
		return nil
	}
}

func (s *SyncService) loadCursor(ctx context.Context, groupID, resource string) (string, int, error) {
	var cursor string
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT cursor, synced_count FROM sync_cursors WHERE group_id = ? AND resource = ?
	`, groupID, resource).Scan(&cursor, &count)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, errors.Wrap(err, "failed to load sync cursor")
	}
	return cursor, count, nil
}

func (s *SyncService) saveCursor(ctx context.Context, groupID, resource, cursor string, count int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_cursors (group_id, resource, cursor, synced_count, updated_at)
		VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (group_id, resource) DO UPDATE SET
			cursor = excluded.cursor,
			synced_count = excluded.synced_count,
			updated_at = CURRENT_TIMESTAMP
	`, groupID, resource, cursor, count)
	if err != nil {
		return errors.Wrap(err, "failed to save sync cursor")
	}
	return nil
}

func (s *SyncService) clearCursor(ctx context.Context, groupID, resource string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM sync_cursors WHERE group_id = ? AND resource = ?
	`, groupID, resource)
	if err != nil {
		return errors.Wrap(err, "failed to clear sync cursor")
	}
	return nil
}
