package servers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/casanet/remote-server/internal/common"
	"github.com/casanet/remote-server/internal/dbx"
	"github.com/casanet/remote-server/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectServer = `SELECT physical_address, display_name, contact_mail, platform, version, local_ip, comment,
		 last_connection, last_disconnection FROM servers`

type scanner interface {
	Scan(dest ...any) error
}

func scanServer(row scanner) (*models.LocalServer, error) {
	s := &models.LocalServer{}
	var lastConn, lastDisconn sql.NullTime

	err := row.Scan(&s.PhysicalAddress, &s.DisplayName, &s.ContactMail, &s.Platform, &s.Version,
		&s.LocalIP, &s.Comment, &lastConn, &lastDisconn)
	if err != nil {
		return nil, err
	}

	if lastConn.Valid {
		s.LastConnection = &lastConn.Time
	}
	if lastDisconn.Valid {
		s.LastDisconnection = &lastDisconn.Time
	}
	return s, nil
}

func (r *PostgresRepository) Get(ctx context.Context, mac string) (*models.LocalServer, error) {
	query := selectServer + `
		 WHERE physical_address = $1
		 `

	s, err := scanServer(r.db.QueryRowContext(ctx, query, mac))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	s.ValidUsers, err = r.GetUsers(ctx, mac)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.LocalServer, error) {
	query := selectServer + `
		 ORDER BY physical_address
		 `

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.LocalServer
	byMac := map[string]*models.LocalServer{}
	for rows.Next() {
		s, err := scanServer(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, s)
		byMac[s.PhysicalAddress] = s
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	users, err := r.db.QueryContext(ctx, `SELECT physical_address, email FROM server_users ORDER BY email`)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer users.Close()

	for users.Next() {
		var mac, email string
		if err := users.Scan(&mac, &email); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if s, ok := byMac[mac]; ok {
			s.ValidUsers = append(s.ValidUsers, email)
		}
	}
	if err := users.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Create(ctx context.Context, s *models.LocalServer) error {
	query :=
		`INSERT INTO servers (physical_address, display_name, contact_mail, comment)
		 VALUES ($1, $2, $3, $4)
		 `

	_, err := r.db.ExecContext(ctx, query, s.PhysicalAddress, s.DisplayName, s.ContactMail, s.Comment)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, s *models.LocalServer) error {
	query :=
		`UPDATE servers SET display_name = $2, contact_mail = $3, comment = $4
		 WHERE physical_address = $1
		 `

	return r.execOne(ctx, query, s.PhysicalAddress, s.DisplayName, s.ContactMail, s.Comment)
}

func (r *PostgresRepository) Delete(ctx context.Context, mac string) error {
	return r.execOne(ctx, `DELETE FROM servers WHERE physical_address = $1`, mac)
}

func (r *PostgresRepository) UpdateConnection(ctx context.Context, mac string, at time.Time) error {
	return r.execOne(ctx, `UPDATE servers SET last_connection = $2 WHERE physical_address = $1`, mac, at)
}

func (r *PostgresRepository) UpdateDisconnection(ctx context.Context, mac string, at time.Time) error {
	return r.execOne(ctx, `UPDATE servers SET last_disconnection = $2 WHERE physical_address = $1`, mac, at)
}

func (r *PostgresRepository) UpdateMeta(ctx context.Context, mac string, meta models.ServerMeta) error {
	query :=
		`UPDATE servers SET platform = $2, version = $3, local_ip = $4
		 WHERE physical_address = $1
		 `

	return r.execOne(ctx, query, mac, meta.Platform, meta.Version, meta.LocalIP)
}

func (r *PostgresRepository) GetUsers(ctx context.Context, mac string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT email FROM server_users WHERE physical_address = $1 ORDER BY email`, mac)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	users := []string{}
	for rows.Next() {
		var email string
		if err := rows.Scan(&email); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		users = append(users, email)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return users, nil
}

// SetUsers replaces the authorized user list. Run it inside dbx.WithTx.
func (r *PostgresRepository) SetUsers(ctx context.Context, mac string, users []string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM server_users WHERE physical_address = $1`, mac); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	for _, email := range users {
		_, err := r.db.ExecContext(ctx,
			`INSERT INTO server_users (physical_address, email) VALUES ($1, $2)`, mac, email)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
