package users

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type Repo struct {
	DB postgres.DB
	sb sq.StatementBuilderType
}

func NewRepo(db postgres.DB) *Repo {
	return &Repo{DB: db, sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar)}
}

const userColumns = `u.id, u.email, u.password_hash, u.name, u.role, u.active, u.telegram_chat_id, p.id, u.created_at, u.updated_at`

func scanUser(row pgx.Row) (User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Name, &u.Role, &u.Active,
		&u.TelegramChatID, &u.ProducerID, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return u, err
}

func (r *Repo) Create(ctx context.Context, u User, p *Producer) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO users(id, email, password_hash, name, role, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		u.ID, u.Email, u.PasswordHash, u.Name, u.Role, u.Active, u.CreatedAt, u.UpdatedAt)
	if postgres.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if p != nil {
		if _, err := tx.Exec(ctx, `
			INSERT INTO producers(id, user_id, name, description, created_at)
			VALUES ($1,$2,$3,$4,$5)`, p.ID, p.UserID, p.Name, p.Description, p.CreatedAt); err != nil {
			return fmt.Errorf("insert producer: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *Repo) ByEmail(ctx context.Context, email string) (User, error) {
	return scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+`
		FROM users u LEFT JOIN producers p ON p.user_id = u.id WHERE u.email=$1`, email))
}

func (r *Repo) ByID(ctx context.Context, id string) (User, error) {
	if !postgres.ValidUUID(id) {
		return User{}, ErrNotFound
	}
	return scanUser(r.DB.QueryRow(ctx, `SELECT `+userColumns+`
		FROM users u LEFT JOIN producers p ON p.user_id = u.id WHERE u.id=$1`, id))
}

func (r *Repo) List(ctx context.Context, f Filter) ([]User, int, error) {
	where := sq.And{}
	if f.Role != "" {
		where = append(where, sq.Eq{"u.role": f.Role})
	}
	if f.Active != nil {
		where = append(where, sq.Eq{"u.active": *f.Active})
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		where = append(where, sq.Or{sq.ILike{"u.email": like}, sq.ILike{"u.name": like}})
	}

	countSQL, countArgs, err := r.sb.Select("COUNT(*)").From("users u").Where(where).ToSql()
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.DB.QueryRow(ctx, countSQL, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query, args, err := r.sb.Select(userColumns).
		From("users u").
		LeftJoin("producers p ON p.user_id = u.id").
		Where(where).
		OrderBy("u.created_at DESC").
		Limit(f.Limit()).
		Offset(f.Offset()).
		ToSql()
	if err != nil {
		return nil, 0, err
	}
	rows, err := r.DB.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, u)
	}
	return out, total, rows.Err()
}

func (r *Repo) Update(ctx context.Context, id string, p Patch) (User, error) {
	if !postgres.ValidUUID(id) {
		return User{}, ErrNotFound
	}
	q := r.sb.Update("users").Set("updated_at", sq.Expr("now()")).Where(sq.Eq{"id": id})
	if p.Role != nil {
		q = q.Set("role", *p.Role)
	}
	if p.Active != nil {
		q = q.Set("active", *p.Active)
	}
	if p.TelegramChatID != nil {
		if *p.TelegramChatID == 0 {
			q = q.Set("telegram_chat_id", nil)
		} else {
			q = q.Set("telegram_chat_id", *p.TelegramChatID)
		}
	}
	query, args, err := q.ToSql()
	if err != nil {
		return User{}, err
	}
	ct, err := r.DB.Exec(ctx, query, args...)
	if err != nil {
		return User{}, err
	}
	if ct.RowsAffected() == 0 {
		return User{}, ErrNotFound
	}
	return r.ByID(ctx, id)
}

// Delete refuses while the user still owes money.
func (r *Repo) Delete(ctx context.Context, id string) error {
	if !postgres.ValidUUID(id) {
		return ErrNotFound
	}
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var unpaid int
	if err := tx.QueryRow(ctx, `
		SELECT COUNT(*) FROM invoices WHERE user_id=$1 AND status IN ('PENDING','OVERDUE')`, id).Scan(&unpaid); err != nil {
		return err
	}
	if unpaid > 0 {
		return ErrHasUnpaidInvoices
	}
	// order history keeps referencing the user, so such accounts are deactivated instead
	var history int
	if err := tx.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM orders WHERE user_id=$1)
		     + (SELECT COUNT(*) FROM order_items oi JOIN producers p ON p.id = oi.producer_id WHERE p.user_id=$1)
		     + (SELECT COUNT(*) FROM bookings b
		        JOIN delivery_slots ds ON ds.id = b.slot_id
		        JOIN products pr ON pr.id = ds.product_id
		        JOIN producers p ON p.id = pr.producer_id
		        WHERE p.user_id=$1 AND b.order_id IS NOT NULL)`,
		id).Scan(&history); err != nil {
		return err
	}
	var ct pgconn.CommandTag
	if history > 0 {
		ct, err = tx.Exec(ctx, `UPDATE users SET active=false, updated_at=now() WHERE id=$1`, id)
	} else {
		if _, err = tx.Exec(ctx, `
			UPDATE delivery_slots s SET reserved = s.reserved - h.qty
			FROM (SELECT slot_id, SUM(qty) AS qty FROM bookings
			      WHERE user_id=$1 AND status='TEMPORARY' GROUP BY slot_id) h
			WHERE s.id = h.slot_id`, id); err != nil {
			return err
		}
		if _, err = tx.Exec(ctx, `DELETE FROM bookings WHERE user_id=$1`, id); err != nil {
			return err
		}
		if _, err = tx.Exec(ctx, `DELETE FROM bookings WHERE slot_id IN (
			SELECT ds.id FROM delivery_slots ds JOIN products pr ON pr.id = ds.product_id
			JOIN producers p ON p.id = pr.producer_id WHERE p.user_id=$1)`, id); err != nil {
			return err
		}
		ct, err = tx.Exec(ctx, `DELETE FROM users WHERE id=$1`, id)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return tx.Commit(ctx)
}
