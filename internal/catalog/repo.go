package catalog

import (
	"context"
	"errors"
	"fmt"

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

const productColumns = `p.id, p.producer_id, pr.name, p.name, p.description, p.unit, p.price_cents,
	p.is_fresh, p.active, COALESCE(s.quantity, 0), p.created_at, p.updated_at`

func (r *Repo) selectProducts() sq.SelectBuilder {
	return r.sb.Select(productColumns).
		From("products p").
		Join("producers pr ON pr.id = p.producer_id").
		LeftJoin("stock s ON s.product_id = p.id")
}

func scanProduct(row pgx.Row) (Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.ProducerID, &p.ProducerName, &p.Name, &p.Description, &p.Unit,
		&p.PriceCents, &p.IsFresh, &p.Active, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

func (r *Repo) Insert(ctx context.Context, p Product) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO products(id, producer_id, name, description, unit, price_cents, is_fresh, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		p.ID, p.ProducerID, p.Name, p.Description, p.Unit, p.PriceCents, p.IsFresh, p.Active, p.CreatedAt, p.UpdatedAt); err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO stock(product_id, quantity) VALUES ($1,$2)`, p.ID, p.Stock); err != nil {
		return fmt.Errorf("insert stock: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repo) ByID(ctx context.Context, id string) (Product, error) {
	if !postgres.ValidUUID(id) {
		return Product{}, ErrNotFound
	}
	query, args, err := r.selectProducts().Where(sq.Eq{"p.id": id}).ToSql()
	if err != nil {
		return Product{}, err
	}
	return scanProduct(r.DB.QueryRow(ctx, query, args...))
}

// ByIDs skips malformed ids; callers see them as missing products.
func (r *Repo) ByIDs(ctx context.Context, ids []string) (map[string]Product, error) {
	valid := make([]string, 0, len(ids))
	for _, id := range ids {
		if postgres.ValidUUID(id) {
			valid = append(valid, id)
		}
	}
	if len(valid) == 0 {
		return map[string]Product{}, nil
	}
	query, args, err := r.selectProducts().Where(sq.Eq{"p.id": valid}).ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]Product, len(ids))
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out[p.ID] = p
	}
	return out, rows.Err()
}

func (r *Repo) List(ctx context.Context, f Filter) ([]Product, int, error) {
	where := sq.And{}
	if !f.IncludeInactive {
		where = append(where, sq.Eq{"p.active": true})
	}
	if f.ProducerID != "" {
		where = append(where, sq.Eq{"p.producer_id": f.ProducerID})
	}
	if f.Fresh != nil {
		where = append(where, sq.Eq{"p.is_fresh": *f.Fresh})
	}
	if f.InStock {
		where = append(where, sq.Gt{"COALESCE(s.quantity, 0)": 0})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		where = append(where, sq.Or{sq.ILike{"p.name": like}, sq.ILike{"p.description": like}})
	}

	countSQL, countArgs, err := r.sb.Select("COUNT(*)").
		From("products p").
		LeftJoin("stock s ON s.product_id = p.id").
		Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := r.selectProducts().Where(where).
		OrderBy("p.name", "p.id").
		Limit(f.Limit()).Offset(f.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *Repo) Update(ctx context.Context, id string, p Patch) error {
	if !postgres.ValidUUID(id) {
		return ErrNotFound
	}
	q := r.sb.Update("products").Set("updated_at", sq.Expr("now()")).Where(sq.Eq{"id": id})
	if p.Name != nil {
		q = q.Set("name", *p.Name)
	}
	if p.Description != nil {
		q = q.Set("description", *p.Description)
	}
	if p.Unit != nil {
		q = q.Set("unit", *p.Unit)
	}
	if p.PriceCents != nil {
		q = q.Set("price_cents", *p.PriceCents)
	}
	if p.IsFresh != nil {
		q = q.Set("is_fresh", *p.IsFresh)
	}
	if p.Active != nil {
		q = q.Set("active", *p.Active)
	}
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	ct, err := r.DB.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) SetStock(ctx context.Context, id string, qty int) error {
	if !postgres.ValidUUID(id) {
		return ErrNotFound
	}
	_, err := r.DB.Exec(ctx, `
		INSERT INTO stock(product_id, quantity, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (product_id) DO UPDATE SET quantity = EXCLUDED.quantity, updated_at = now()`, id, qty)
	return err
}

func (r *Repo) ProducerIDByUser(ctx context.Context, userID string) (string, error) {
	var id string
	err := r.DB.QueryRow(ctx, `SELECT id FROM producers WHERE user_id=$1`, userID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoProducerProfile
	}
	return id, err
}
