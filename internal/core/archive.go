package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"supplyledger/internal/infra/blob"
	"supplyledger/pkg/domain"
)

// ArchiveManifest is the JSON document written to the blob store for an
// archived product history.
type ArchiveManifest struct {
	ArchiveID  string         `json:"archive_id"`
	ProductID  string         `json:"product_id"`
	Product    domain.Product `json:"product"`
	Steps      []domain.Step  `json:"steps"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// ArchiveProductHistory snapshots a product and its full step history
// into the configured blob store and returns the stored object info.
// The ledger state is not modified.
func (s *Service) ArchiveProductHistory(ctx context.Context, productID string) (blob.Info, error) {
	var info blob.Info
	err := s.run(ctx, "archive_product_history", func(ctx context.Context) error {
		if s.archive == nil {
			return fmt.Errorf("no archive store configured")
		}
		product, ok := s.store.FindProduct(productID)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityProduct, ID: productID}
		}
		steps, _ := s.store.ProductHistory(productID)
		manifest := ArchiveManifest{
			ArchiveID:  uuid.NewString(),
			ProductID:  productID,
			Product:    product,
			Steps:      steps,
			ArchivedAt: s.clock.Now().UTC(),
		}
		payload, err := json.MarshalIndent(manifest, "", "  ")
		if err != nil {
			return err
		}
		key := fmt.Sprintf("products/%s/%s.json", productID, manifest.ArchiveID)
		stored, err := s.archive.Put(ctx, key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"product-id": productID},
		})
		if err != nil {
			return err
		}
		info = stored
		return nil
	})
	return info, err
}
