package repo

import (
	"context"
	"database/sql"

	"grantflow/internal/domain"
)

func scanUser(row rowScanner) (domain.User, error) {
	var u domain.User
	var active int
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.Role, &active, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Active = active != 0
	return u, nil
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.exec(tx).ExecContext(ctx, `INSERT INTO users(id,name,email,role,active,created_at) VALUES (?,?,?,?,?,?)`,
		u.ID, u.Name, u.Email, string(u.Role), boolInt(u.Active), u.CreatedAt)
	if err != nil {
		return err
	}
	for _, area := range u.Expertise {
		if _, err := r.exec(tx).ExecContext(ctx, `INSERT INTO user_expertise(user_id,area) VALUES (?,?)`, u.ID, area); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) loadExpertise(ctx context.Context, tx *sql.Tx, userID string) ([]string, error) {
	query := `SELECT area FROM user_expertise WHERE user_id=? ORDER BY area ASC`
	var rows *sql.Rows
	var err error
	if tx != nil {
		rows, err = tx.QueryContext(ctx, query, userID)
	} else {
		rows, err = r.DB.QueryContext(ctx, query, userID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var areas []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		areas = append(areas, a)
	}
	return areas, rows.Err()
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,email,role,active,created_at FROM users WHERE id=?`, id))
	if err != nil {
		return u, err
	}
	u.Expertise, err = r.loadExpertise(ctx, nil, id)
	return u, err
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	u, err := scanUser(tx.QueryRowContext(ctx, `SELECT id,name,email,role,active,created_at FROM users WHERE id=?`, id))
	if err != nil {
		return u, err
	}
	u.Expertise, err = r.loadExpertise(ctx, tx, id)
	return u, err
}

func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	u, err := scanUser(r.DB.QueryRowContext(ctx, `SELECT id,name,email,role,active,created_at FROM users WHERE email=?`, email))
	if err != nil {
		return u, err
	}
	u.Expertise, err = r.loadExpertise(ctx, nil, u.ID)
	return u, err
}

type UserFilters struct {
	Role   string
	Active *bool
}

func (r Repo) ListUsers(ctx context.Context, f UserFilters) ([]domain.User, error) {
	var clauses []string
	var args []any
	if f.Role != "" {
		clauses = append(clauses, "role=?")
		args = append(args, f.Role)
	}
	if f.Active != nil {
		clauses = append(clauses, "active=?")
		args = append(args, boolInt(*f.Active))
	}
	query := `SELECT id,name,email,role,active,created_at FROM users ` + whereClause(clauses) + ` ORDER BY created_at ASC, id ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		res[i].Expertise, err = r.loadExpertise(ctx, nil, res[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return res, nil
}

// SetUserActive flips the active flag; inactive users cannot act or be assigned.
func (r Repo) SetUserActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET active=? WHERE id=?`, boolInt(active), id)
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceExpertise swaps the full expertise set for a user.
func (r Repo) ReplaceExpertise(ctx context.Context, userID string, areas []string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_expertise WHERE user_id=?`, userID); err != nil {
		return err
	}
	for _, area := range areas {
		if _, err := tx.ExecContext(ctx, `INSERT INTO user_expertise(user_id,area) VALUES (?,?)`, userID, area); err != nil {
			return err
		}
	}
	return tx.Commit()
}
