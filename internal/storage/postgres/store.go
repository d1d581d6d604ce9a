package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"eventListener/internal/model"
)

// Store provides Postgres persistence for contract events.
//
// Expected schema:
//
//	CREATE TABLE contract_events (
//		tx_hash      TEXT    NOT NULL,
//		log_index    BIGINT  NOT NULL,
//		contract     TEXT    NOT NULL,
//		event        TEXT    NOT NULL,
//		address      TEXT    NOT NULL,
//		block_number BIGINT  NOT NULL,
//		block_hash   TEXT    NOT NULL,
//		args         JSONB,
//		removed      BOOLEAN NOT NULL DEFAULT false,
//		created_at   TIMESTAMPTZ NOT NULL,
//		updated_at   TIMESTAMPTZ NOT NULL,
//		PRIMARY KEY (tx_hash, log_index)
//	);
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// PutEvents upserts events keyed by transaction hash and log index. Records
// without a log index are skipped.
func (s *Store) PutEvents(ctx context.Context, events []model.EventRecord) error {
	batch := &pgx.Batch{}
	for _, ev := range events {
		if ev.LogIndex == nil {
			continue
		}
		args, err := json.Marshal(ev.Args)
		if err != nil {
			return fmt.Errorf("marshal args %s: %w", ev.TxHash, err)
		}
		batch.Queue(`
			INSERT INTO contract_events (
				tx_hash, log_index, contract, event, address, block_number, block_hash, args, removed, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
			ON CONFLICT (tx_hash, log_index)
			DO UPDATE SET
				contract = EXCLUDED.contract,
				event = EXCLUDED.event,
				address = EXCLUDED.address,
				block_number = EXCLUDED.block_number,
				block_hash = EXCLUDED.block_hash,
				args = EXCLUDED.args,
				removed = EXCLUDED.removed,
				updated_at = now()
		`,
			ev.TxHash,
			int64(*ev.LogIndex),
			ev.Contract,
			ev.Event,
			ev.Address,
			int64(ev.BlockNumber),
			ev.BlockHash,
			args,
			ev.Removed,
		)
	}
	if batch.Len() == 0 {
		return nil
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert event: %w", err)
		}
	}
	return nil
}
