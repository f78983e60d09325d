package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"homebid/internal/domain"
)

const userColumns = `id,email,first_name,last_name,role,phone,active,bio,years_experience,specializations_json,created_at,updated_at`

type userScanner interface {
	Scan(dest ...any) error
}

func scanUser(row userScanner) (domain.User, error) {
	var u domain.User
	var phone, bio, specs sql.NullString
	var years sql.NullInt64
	var active int
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &phone, &active, &bio, &years, &specs, &u.CreatedAt, &u.UpdatedAt)
	if err == sql.ErrNoRows {
		return u, ErrNotFound
	}
	if err != nil {
		return u, err
	}
	u.Active = active != 0
	if phone.Valid {
		u.Phone = phone.String
	}
	if bio.Valid {
		u.Bio = bio.String
	}
	if years.Valid {
		y := int(years.Int64)
		u.YearsExperience = &y
	}
	if specs.Valid && specs.String != "" {
		_ = json.Unmarshal([]byte(specs.String), &u.Specializations)
	}
	return u, nil
}

func specializationsJSON(specs []string) any {
	if len(specs) == 0 {
		return nil
	}
	data, err := json.Marshal(specs)
	if err != nil {
		return nil
	}
	return string(data)
}

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User, passwordHash string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO users(id,email,password_hash,first_name,last_name,role,phone,active,bio,years_experience,specializations_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, strings.ToLower(u.Email), passwordHash, u.FirstName, u.LastName, u.Role,
		nullable(u.Phone), boolInt(u.Active), nullable(u.Bio), nullableIntPtr(u.YearsExperience),
		specializationsJSON(u.Specializations), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=?`, id))
}

func (r Repo) ListUsers(ctx context.Context, role string) ([]domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	var args []any
	if role != "" {
		query += ` WHERE role=?`
		args = append(args, role)
	}
	query += ` ORDER BY created_at, id`
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
	return res, rows.Err()
}

// GetUserByEmail returns the user and the stored password hash for login.
func (r Repo) GetUserByEmail(ctx context.Context, email string) (domain.User, string, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+userColumns+`,password_hash FROM users WHERE email=?`, strings.ToLower(email))
	var u domain.User
	var phone, bio, specs sql.NullString
	var years sql.NullInt64
	var active int
	var hash string
	err := row.Scan(&u.ID, &u.Email, &u.FirstName, &u.LastName, &u.Role, &phone, &active, &bio, &years, &specs, &u.CreatedAt, &u.UpdatedAt, &hash)
	if err == sql.ErrNoRows {
		return u, "", ErrNotFound
	}
	if err != nil {
		return u, "", err
	}
	u.Active = active != 0
	if phone.Valid {
		u.Phone = phone.String
	}
	if bio.Valid {
		u.Bio = bio.String
	}
	if years.Valid {
		y := int(years.Int64)
		u.YearsExperience = &y
	}
	if specs.Valid && specs.String != "" {
		_ = json.Unmarshal([]byte(specs.String), &u.Specializations)
	}
	return u, hash, nil
}

// UpdateUserProfile rewrites the caller-editable profile columns. Email,
// role and active flag are not touched here.
func (r Repo) UpdateUserProfile(ctx context.Context, u domain.User) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET first_name=?, last_name=?, phone=?, bio=?, years_experience=?, specializations_json=?, updated_at=? WHERE id=?`,
		u.FirstName, u.LastName, nullable(u.Phone), nullable(u.Bio), nullableIntPtr(u.YearsExperience),
		specializationsJSON(u.Specializations), u.UpdatedAt, u.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) SetUserActive(ctx context.Context, id string, active bool, updatedAt string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE users SET active=?, updated_at=? WHERE id=?`, boolInt(active), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
