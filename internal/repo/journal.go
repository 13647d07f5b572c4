package repo

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mktetts/sei-solar-depin/internal/journal"
)

// JournalRepo persists the operation journal in Postgres. The substrate
// serializes appends, so no row-level coordination is needed beyond the
// sequence primary key. Params are stored as text, not jsonb: jsonb
// normalization would change the bytes the record hash covers.
type JournalRepo struct{ db *pgxpool.Pool }

func NewJournalRepo(db *pgxpool.Pool) *JournalRepo { return &JournalRepo{db: db} }

// EnsureSchema creates the journal table if it does not exist.
func (r *JournalRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		create table if not exists journal (
			seq        bigint primary key,
			op         text not null,
			params     text not null,
			at         timestamptz not null,
			prev_hash  text not null,
			hash       text not null
		)
	`)
	return err
}

func (r *JournalRepo) Append(ctx context.Context, rec journal.Record) error {
	_, err := r.db.Exec(ctx, `
		insert into journal (seq, op, params, at, prev_hash, hash)
		values ($1,$2,$3,$4,$5,$6)
	`, rec.Seq, rec.Op, string(rec.Params), rec.At, rec.PrevHash, rec.Hash)
	return err
}

func (r *JournalRepo) List(ctx context.Context) ([]journal.Record, error) {
	rows, err := r.db.Query(ctx, `
		select seq, op, params, at, prev_hash, hash
		from journal
		order by seq asc
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []journal.Record
	for rows.Next() {
		var rec journal.Record
		if err := rows.Scan(&rec.Seq, &rec.Op, &rec.Params, &rec.At, &rec.PrevHash, &rec.Hash); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
