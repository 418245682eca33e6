package service

import (
	"context"
	"log"

	"retail-backoffice/internal/cache"
	"retail-backoffice/internal/model"
	"retail-backoffice/internal/ws"

	"github.com/google/uuid"
)

// Actor identifies the operator behind a request.
type Actor struct {
	ID    string
	Name  string
	Email string
}

// SystemActor is used for work not triggered by a logged-in user.
var SystemActor = Actor{ID: "system", Name: "System"}

// UserID returns the actor id as a UUID, or nil for non-user actors.
func (a Actor) UserID() *uuid.UUID {
	id, err := uuid.Parse(a.ID)
	if err != nil {
		return nil
	}
	return &id
}

func (a Actor) wsUser() *ws.User {
	return &ws.User{ID: a.ID, Name: a.Name, Email: a.Email}
}

// stockSnapshot is the payload of stock_update and low_stock events.
type stockSnapshot struct {
	ID       uuid.UUID `json:"id"`
	SKU      string    `json:"sku"`
	Name     string    `json:"name"`
	OldStock int       `json:"oldStock"`
	NewStock int       `json:"newStock"`
	MinStock int       `json:"minStock"`
}

func publishStock(hub *ws.Hub, action string, p *model.Product, oldStock int, actor Actor) {
	snap := stockSnapshot{ID: p.ID, SKU: p.SKU, Name: p.Name, OldStock: oldStock, NewStock: p.Stock, MinStock: p.MinStock}
	hub.Emit(ws.Event{Type: "stock_update", Action: action, Data: snap, User: actor.wsUser()})
	if p.IsLowStock() && (oldStock > p.MinStock || action == "product_created") {
		hub.Emit(ws.Event{
			Type:    "low_stock",
			Data:    snap,
			Message: p.Name + " reached its minimum stock",
		})
	}
}

func invalidateDashboard(ctx context.Context, store cache.Store) {
	if store == nil {
		return
	}
	old, err := cache.DashboardGeneration(ctx, store)
	if err != nil {
		log.Printf("Warning: failed to read dashboard cache generation: %v", err)
	}
	if err := store.Set(ctx, cache.KeyDashboardGeneration, []byte(uuid.NewString()), 0); err != nil {
		log.Printf("Warning: failed to invalidate dashboard cache: %v", err)
		return
	}
	if old != "" {
		if err := store.Delete(ctx, cache.DashboardStatsKey(old)); err != nil {
			log.Printf("Warning: failed to drop stale dashboard snapshot: %v", err)
		}
	}
}
