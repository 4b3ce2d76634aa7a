package notifications

import (
	"context"
	"errors"

	sq "github.com/Masterminds/squirrel"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/jackc/pgx/v5"
)

type Repo struct {
	DB postgres.DB
	sb sq.StatementBuilderType
}

func NewRepo(db postgres.DB) *Repo {
	return &Repo{DB: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

// Insert stores ns and returns only the rows that were new. A redelivered
// event hits the (event_id, user_id) constraint and is skipped.
func (r *Repo) Insert(ctx context.Context, ns []Notification) ([]Notification, error) {
	var out []Notification
	for _, n := range ns {
		err := r.DB.QueryRow(ctx, `
			INSERT INTO notifications(id, user_id, event_id, kind, title, body, order_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (event_id, user_id) DO NOTHING
			RETURNING id`, n.ID, n.UserID, n.EventID, n.Kind, n.Title, n.Body, n.OrderID, n.CreatedAt).Scan(&n.ID)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return out, err
		}
		out = append(out, n)
	}
	return out, nil
}

// ChatIDs returns the Telegram chat of every active user in ids that linked one.
func (r *Repo) ChatIDs(ctx context.Context, ids []string) (map[string]int64, error) {
	rows, err := r.DB.Query(ctx, `
		SELECT id::text, telegram_chat_id FROM users
		WHERE id = ANY($1::uuid[]) AND active AND telegram_chat_id IS NOT NULL`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64, len(ids))
	for rows.Next() {
		var (
			id   string
			chat int64
		)
		if err := rows.Scan(&id, &chat); err != nil {
			return nil, err
		}
		out[id] = chat
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Notification, int, error) {
	where := sq.And{sq.Eq{"user_id": f.UserID}}
	if f.UnreadOnly {
		where = append(where, sq.Eq{"read_at": nil})
	}

	countSQL, countArgs, err := r.sb.Select("COUNT(*)").From("notifications").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := r.sb.
		Select("id", "user_id", "event_id", "kind", "title", "body", "order_id", "read_at", "created_at").
		From("notifications").Where(where).
		OrderBy("created_at DESC", "id").
		Limit(f.Limit()).Offset(f.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Notification, error) {
		var n Notification
		err := row.Scan(&n.ID, &n.UserID, &n.EventID, &n.Kind, &n.Title, &n.Body, &n.OrderID, &n.ReadAt, &n.CreatedAt)
		return n, err
	})
	return out, total, err
}

func (r *Repo) MarkRead(ctx context.Context, userID, id string) error {
	if !postgres.ValidUUID(id) {
		return ErrNotFound
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, now())
		WHERE id=$1 AND user_id=$2`, id, userID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	ct, err := r.DB.Exec(ctx, `UPDATE notifications SET read_at = now() WHERE user_id=$1 AND read_at IS NULL`, userID)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}
