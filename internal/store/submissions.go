// Package store is the Postgres layer: read access to the shared graphix POI
// tables and ownership of the notification ledger.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

// SubmissionStore reads POI submissions from the graphix schema
// (pois/indexers/blocks/sg_deployments/networks). It never writes.
type SubmissionStore struct {
	DB *pgxpool.Pool
}

func NewSubmissionStore(db *pgxpool.Pool) *SubmissionStore {
	return &SubmissionStore{DB: db}
}

// CurrentSet returns every (fingerprint, indexer) pair on record for key.
func (s *SubmissionStore) CurrentSet(ctx context.Context, key poi.Key) (*poi.FingerprintSet, error) {
	rows, err := s.DB.Query(ctx, `
SELECT p.poi, i.address
FROM pois p
JOIN indexers i ON i.id = p.indexer_id
JOIN blocks b ON b.id = p.block_id
JOIN sg_deployments d ON d.id = p.sg_deployment_id
WHERE d.ipfs_cid = $1 AND b.number = $2
`, key.Deployment, key.Block)
	if err != nil {
		return nil, fmt.Errorf("query poi submissions for %s: %w", key, err)
	}
	defer rows.Close()

	set := poi.NewFingerprintSet()
	for rows.Next() {
		var fp []byte
		var indexer string
		if err := rows.Scan(&fp, &indexer); err != nil {
			return nil, fmt.Errorf("scan poi submission for %s: %w", key, err)
		}
		set.Add(poi.Fingerprint(fp), indexer)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read poi submissions for %s: %w", key, err)
	}
	return set, nil
}

// HistoricalOccurrences returns every historical submission whose fingerprint
// is a member of identity, most recent first. One batched query regardless of
// how many fingerprints are in disagreement.
func (s *SubmissionStore) HistoricalOccurrences(ctx context.Context, identity poi.Identity) ([]poi.Submission, error) {
	rows, err := s.DB.Query(ctx, `
SELECT p.poi, d.ipfs_cid, b.number, i.address, n.name, p.created_at
FROM pois p
JOIN sg_deployments d ON d.id = p.sg_deployment_id
JOIN blocks b ON b.id = p.block_id
JOIN indexers i ON i.id = p.indexer_id
JOIN networks n ON n.id = d.network
WHERE p.poi = ANY($1)
ORDER BY p.created_at DESC
`, [][]byte(identity))
	if err != nil {
		return nil, fmt.Errorf("query poi occurrences: %w", err)
	}
	defer rows.Close()

	var out []poi.Submission
	for rows.Next() {
		var sub poi.Submission
		var fp []byte
		if err := rows.Scan(&fp, &sub.Key.Deployment, &sub.Key.Block, &sub.Indexer, &sub.Network, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan poi occurrence: %w", err)
		}
		sub.Fingerprint = poi.Fingerprint(fp)
		out = append(out, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read poi occurrences: %w", err)
	}
	return out, nil
}
