package fakeapi

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"immun/internal/shared/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username already exists")
)

type account struct {
	models.User
	PasswordHash []byte
}

// document is an uploaded file as kept by the store.
type document struct {
	OwnerID     models.ID
	Filename    string
	ContentType string
	Content     []byte
}

// newRecord is the data of an accepted upload.
type newRecord struct {
	UserID           models.ID
	VaccineName      string
	DateAdministered models.Date
	NextDueDate      *models.Date
	Provider         string
	Document         document
}

type store struct {
	db *sql.DB
}

func openStore(dsn string) (*store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps a :memory: database alive and shared
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id TEXT PRIMARY KEY,
			username TEXT UNIQUE NOT NULL,
			email TEXT NOT NULL,
			role TEXT NOT NULL,
			is_admin INTEGER NOT NULL,
			password_hash BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			vaccine_name TEXT NOT NULL,
			date_administered TEXT NOT NULL,
			next_due_date TEXT,
			provider TEXT,
			document_name TEXT NOT NULL,
			document_type TEXT NOT NULL,
			document BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL,
			FOREIGN KEY(user_id) REFERENCES users(id)
		);
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &store{db: db}, nil
}

func (s *store) Close() error { return s.db.Close() }

func (s *store) createUser(ctx context.Context, u models.User, passwordHash []byte) (models.User, error) {
	var taken int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, u.Username).Scan(&taken); err != nil {
		return models.User{}, err
	}
	if taken > 0 {
		return models.User{}, ErrUsernameTaken
	}
	u.ID = models.ID(uuid.NewString())
	if u.Role == "" {
		u.Role = "user"
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id,username,email,role,is_admin,password_hash,created_at) VALUES(?,?,?,?,?,?,?)`,
		u.ID.String(), u.Username, u.Email, u.Role, u.IsAdmin, passwordHash, time.Now().UTC())
	if err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (s *store) userByUsername(ctx context.Context, username string) (account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id,username,email,role,is_admin,password_hash FROM users WHERE username = ?`, username))
}

func (s *store) userByID(ctx context.Context, id models.ID) (account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx,
		`SELECT id,username,email,role,is_admin,password_hash FROM users WHERE id = ?`, id.String()))
}

func (s *store) scanAccount(row *sql.Row) (account, error) {
	var a account
	var id string
	if err := row.Scan(&id, &a.Username, &a.Email, &a.Role, &a.IsAdmin, &a.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account{}, ErrNotFound
		}
		return account{}, err
	}
	a.ID = models.ID(id)
	return a, nil
}

func (s *store) insertRecord(ctx context.Context, r newRecord) (models.ID, error) {
	var next, provider sql.NullString
	if r.NextDueDate != nil {
		next = sql.NullString{String: r.NextDueDate.String(), Valid: true}
	}
	if r.Provider != "" {
		provider = sql.NullString{String: r.Provider, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO records(user_id, vaccine_name, date_administered, next_due_date, provider,
			document_name, document_type, document, created_at)
		VALUES(?,?,?,?,?,?,?,?,?)`,
		r.UserID.String(), r.VaccineName, r.DateAdministered.String(), next, provider,
		r.Document.Filename, r.Document.ContentType, r.Document.Content, time.Now().UTC())
	if err != nil {
		return "", err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return "", err
	}
	return models.ID(strconv.FormatInt(id, 10)), nil
}

// listRecords returns the records of userID, or every record when userID is
// empty, in insertion order.
func (s *store) listRecords(ctx context.Context, userID models.ID) ([]models.ImmunizationRecord, error) {
	const cols = `SELECT id, user_id, vaccine_name, date_administered, next_due_date, provider,
		document_name, created_at FROM records`
	var (
		rows *sql.Rows
		err  error
	)
	if userID == "" {
		rows, err = s.db.QueryContext(ctx, cols+` ORDER BY id`)
	} else {
		rows, err = s.db.QueryContext(ctx, cols+` WHERE user_id = ? ORDER BY id`, userID.String())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.ImmunizationRecord{}
	for rows.Next() {
		var (
			rec                 models.ImmunizationRecord
			id                  int64
			owner, administered string
			next, provider      sql.NullString
			createdAt           time.Time
		)
		if err := rows.Scan(&id, &owner, &rec.VaccineName, &administered, &next, &provider,
			&rec.DocumentRef, &createdAt); err != nil {
			return nil, err
		}
		rec.ID = models.ID(strconv.FormatInt(id, 10))
		rec.UserID = models.ID(owner)
		if rec.DateAdministered, err = models.ParseDate(administered); err != nil {
			return nil, err
		}
		if next.Valid {
			d, err := models.ParseDate(next.String)
			if err != nil {
				return nil, err
			}
			rec.NextDueDate = &d
		}
		rec.Provider = provider.String
		rec.CreatedAt = models.Timestamp{Time: createdAt}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *store) document(ctx context.Context, recordID int64) (document, error) {
	var d document
	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, document_name, document_type, document FROM records WHERE id = ?`, recordID).
		Scan(&owner, &d.Filename, &d.ContentType, &d.Content)
	if errors.Is(err, sql.ErrNoRows) {
		return document{}, ErrNotFound
	}
	if err != nil {
		return document{}, err
	}
	d.OwnerID = models.ID(owner)
	return d, nil
}
