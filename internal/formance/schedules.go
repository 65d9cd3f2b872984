package formance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"dca-engine-go/internal/models"
	"dca-engine-go/internal/store"

	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"go.uber.org/zap"
)

const versionMetaKey = "schedules_version"

// Load reads the schedule document from the store account's metadata.
func (s *Service) Load(ctx context.Context) (*store.Snapshot, error) {
	resp, err := s.client.Ledger.V2.GetAccount(ctx, operations.V2GetAccountRequest{
		Ledger:  s.ledger,
		Address: storeAccount,
	})
	if err != nil {
		if isNotFoundError(err) {
			return &store.Snapshot{Schedules: []models.Schedule{}}, nil
		}
		return nil, fmt.Errorf("%w: %v", store.ErrStoreUnavailable, err)
	}

	return snapshotFromMeta(resp.V2AccountResponse.Data.Metadata, s.schedulesKey)
}

// Save writes the document and its next version. The ledger offers no
// conditional metadata write, so the version is re-checked just before the
// write and the Repository's collection lease serializes writers.
func (s *Service) Save(ctx context.Context, schedules []models.Schedule, expectedVersion int64) (int64, error) {
	current, err := s.Load(ctx)
	if err != nil {
		return 0, err
	}
	if current.Version != expectedVersion {
		return 0, fmt.Errorf("%w: schedule document moved from version %d to %d",
			store.ErrConcurrentModification, expectedVersion, current.Version)
	}

	if schedules == nil {
		schedules = []models.Schedule{}
	}
	doc, err := json.Marshal(schedules)
	if err != nil {
		return 0, fmt.Errorf("failed to encode schedules: %w", err)
	}

	next := expectedVersion + 1
	_, err = s.client.Ledger.V2.AddMetadataToAccount(ctx, operations.V2AddMetadataToAccountRequest{
		Ledger:  s.ledger,
		Address: storeAccount,
		RequestBody: map[string]string{
			"entity_type":  "dca_store",
			s.schedulesKey: string(doc),
			versionMetaKey: strconv.FormatInt(next, 10),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to write schedule document: %w", err)
	}

	zap.L().Debug("Schedule document written to Formance",
		zap.String("account", storeAccount),
		zap.Int64("version", next),
		zap.Int("schedules", len(schedules)))
	return next, nil
}

// snapshotFromMeta decodes the document stored under key. An account without
// the key is an empty collection.
func snapshotFromMeta(meta map[string]string, key string) (*store.Snapshot, error) {
	raw, ok := meta[key]
	if !ok || raw == "" {
		return &store.Snapshot{Schedules: []models.Schedule{}}, nil
	}

	var schedules []models.Schedule
	if err := json.Unmarshal([]byte(raw), &schedules); err != nil {
		return nil, fmt.Errorf("%w: corrupt schedule document %s: %v", store.ErrStoreUnavailable, key, err)
	}
	if schedules == nil {
		schedules = []models.Schedule{}
	}

	var version int64
	if v := meta[versionMetaKey]; v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid %s %q", store.ErrStoreUnavailable, versionMetaKey, v)
		}
		version = parsed
	}

	return &store.Snapshot{Schedules: schedules, Version: version}, nil
}
