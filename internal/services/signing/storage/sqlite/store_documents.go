package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/docseal/internal/services/signing/document"
	"github.com/louisbranch/docseal/internal/services/signing/storage"
)

// PutTeam inserts or updates a team.
func (s *Store) PutTeam(ctx context.Context, team storage.Team) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	team.ID = strings.TrimSpace(team.ID)
	if team.ID == "" {
		return fmt.Errorf("team id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO teams (id, name, include_signing_certificate)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	include_signing_certificate = excluded.include_signing_certificate
`, team.ID, strings.TrimSpace(team.Name), boolToInt(team.IncludeSigningCertificate))
	if err != nil {
		return fmt.Errorf("put team: %w", err)
	}
	return nil
}

// PutDocumentData inserts or updates a data pointer record.
func (s *Store) PutDocumentData(ctx context.Context, data document.Data) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	data.ID = strings.TrimSpace(data.ID)
	data.Data = strings.TrimSpace(data.Data)
	data.InitialData = strings.TrimSpace(data.InitialData)
	if data.ID == "" {
		return fmt.Errorf("document data id is required")
	}
	if data.Data == "" {
		return fmt.Errorf("document data ref is required")
	}
	if data.InitialData == "" {
		data.InitialData = data.Data
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO document_data (id, data, initial_data)
VALUES (?, ?, ?)
ON CONFLICT(id) DO UPDATE SET data = excluded.data
`, data.ID, data.Data, data.InitialData)
	if err != nil {
		return fmt.Errorf("put document data: %w", err)
	}
	return nil
}

// GetDocumentData fetches a data pointer record.
func (s *Store) GetDocumentData(ctx context.Context, id string) (document.Data, error) {
	if err := s.ready(ctx); err != nil {
		return document.Data{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return document.Data{}, fmt.Errorf("document data id is required")
	}
	var data document.Data
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT id, data, initial_data FROM document_data WHERE id = ?
`, id).Scan(&data.ID, &data.Data, &data.InitialData)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.Data{}, storage.ErrNotFound
		}
		return document.Data{}, fmt.Errorf("get document data: %w", err)
	}
	return data, nil
}

// CreateDocument inserts a document with its recipients and fields.
//
// Field.RecipientID values index into doc.Recipients (zero-based) when the
// recipients are new; they are rewritten to the assigned recipient IDs.
func (s *Store) CreateDocument(ctx context.Context, doc document.Document) (document.Document, error) {
	if err := s.ready(ctx); err != nil {
		return document.Document{}, err
	}
	doc.Title = strings.TrimSpace(doc.Title)
	doc.UserID = strings.TrimSpace(doc.UserID)
	if doc.Title == "" {
		return document.Document{}, fmt.Errorf("title is required")
	}
	if doc.UserID == "" {
		return document.Document{}, fmt.Errorf("user id is required")
	}
	if strings.TrimSpace(doc.DocumentDataID) == "" {
		return document.Document{}, fmt.Errorf("document data id is required")
	}
	if doc.Status == "" {
		doc.Status = document.StatusPending
	}
	now := time.Now().UTC()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = doc.CreatedAt

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return document.Document{}, fmt.Errorf("start document transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	result, err := tx.ExecContext(ctx, `
INSERT INTO documents (
	user_id, team_id, title, status, document_data_id, qr_token,
	use_legacy_field_insertion, auth_options, completed_at, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		doc.UserID,
		strings.TrimSpace(doc.TeamID),
		doc.Title,
		string(doc.Status),
		doc.DocumentDataID,
		doc.QRToken,
		boolToInt(doc.UseLegacyFieldInsertion),
		jsonOrEmptyObject(doc.AuthOptions),
		nullMillis(doc.CompletedAt),
		toMillis(doc.CreatedAt),
		toMillis(doc.UpdatedAt),
	)
	if err != nil {
		return document.Document{}, fmt.Errorf("insert document: %w", err)
	}
	doc.ID, err = result.LastInsertId()
	if err != nil {
		return document.Document{}, fmt.Errorf("document id: %w", err)
	}

	recipientIDs := make([]int64, len(doc.Recipients))
	for i := range doc.Recipients {
		r := &doc.Recipients[i]
		r.DocumentID = doc.ID
		if r.SigningStatus == "" {
			r.SigningStatus = document.SigningStatusNotSigned
		}
		if r.Role == "" {
			r.Role = document.RoleSigner
		}
		result, err := tx.ExecContext(ctx, `
INSERT INTO recipients (
	document_id, email, name, phone, national_id, role, signing_status,
	rejection_reason, signed_at, auth_options
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			r.DocumentID,
			strings.ToLower(strings.TrimSpace(r.Email)),
			r.Name,
			r.Phone,
			r.NationalID,
			string(r.Role),
			string(r.SigningStatus),
			r.RejectionReason,
			nullMillis(r.SignedAt),
			jsonOrEmptyObject(r.AuthOptions),
		)
		if err != nil {
			return document.Document{}, fmt.Errorf("insert recipient: %w", err)
		}
		r.ID, err = result.LastInsertId()
		if err != nil {
			return document.Document{}, fmt.Errorf("recipient id: %w", err)
		}
		recipientIDs[i] = r.ID
	}

	for i := range doc.Fields {
		f := &doc.Fields[i]
		f.DocumentID = doc.ID
		if f.RecipientID < 0 || int(f.RecipientID) >= len(recipientIDs) {
			return document.Document{}, fmt.Errorf("field %d references unknown recipient index %d", i, f.RecipientID)
		}
		f.RecipientID = recipientIDs[f.RecipientID]
		result, err := tx.ExecContext(ctx, `
INSERT INTO fields (
	document_id, recipient_id, type, page, position_x, position_y, width, height,
	custom_text, inserted, required
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
			f.DocumentID,
			f.RecipientID,
			string(f.Type),
			f.Page,
			f.PositionX,
			f.PositionY,
			f.Width,
			f.Height,
			f.CustomText,
			boolToInt(f.Inserted),
			boolToInt(f.Required),
		)
		if err != nil {
			return document.Document{}, fmt.Errorf("insert field: %w", err)
		}
		f.ID, err = result.LastInsertId()
		if err != nil {
			return document.Document{}, fmt.Errorf("field id: %w", err)
		}
		if f.Signature != nil {
			sig := *f.Signature
			sig.FieldID = f.ID
			sig.RecipientID = f.RecipientID
			if sig.CreatedAt.IsZero() {
				sig.CreatedAt = now
			}
			if sig.ID, err = insertSignature(ctx, tx, sig); err != nil {
				return document.Document{}, err
			}
			f.Signature = &sig
		}
	}

	if err := tx.Commit(); err != nil {
		return document.Document{}, fmt.Errorf("commit document transaction: %w", err)
	}
	return doc, nil
}

// GetDocument loads a document with recipients, fields, signatures, and team settings.
func (s *Store) GetDocument(ctx context.Context, id int64) (document.Document, error) {
	if err := s.ready(ctx); err != nil {
		return document.Document{}, err
	}
	if id <= 0 {
		return document.Document{}, fmt.Errorf("document id is required")
	}

	var doc document.Document
	var status string
	var legacy int
	var authOptions string
	var completedAt sql.NullInt64
	var createdAt, updatedAt int64
	var teamName sql.NullString
	var includeCert sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx, `
SELECT
	d.id, d.user_id, d.team_id, d.title, d.status, d.document_data_id, d.qr_token,
	d.use_legacy_field_insertion, d.auth_options, d.completed_at, d.created_at, d.updated_at,
	t.name, t.include_signing_certificate
FROM documents d
LEFT JOIN teams t ON t.id = d.team_id
WHERE d.id = ?
`, id).Scan(
		&doc.ID, &doc.UserID, &doc.TeamID, &doc.Title, &status, &doc.DocumentDataID, &doc.QRToken,
		&legacy, &authOptions, &completedAt, &createdAt, &updatedAt,
		&teamName, &includeCert,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.Document{}, storage.ErrNotFound
		}
		return document.Document{}, fmt.Errorf("get document: %w", err)
	}
	doc.Status = document.Status(status)
	doc.UseLegacyFieldInsertion = legacy != 0
	doc.AuthOptions = json.RawMessage(authOptions)
	doc.CompletedAt = fromNullMillis(completedAt)
	doc.CreatedAt = fromMillis(createdAt)
	doc.UpdatedAt = fromMillis(updatedAt)
	doc.Team = document.TeamSettings{Name: teamName.String, IncludeSigningCertificate: true}
	if includeCert.Valid {
		doc.Team.IncludeSigningCertificate = includeCert.Int64 != 0
	}

	if doc.Recipients, err = s.ListRecipients(ctx, id); err != nil {
		return document.Document{}, err
	}
	if doc.Fields, err = s.listFields(ctx, id); err != nil {
		return document.Document{}, err
	}
	return doc, nil
}

// ListRecipients lists a document's recipients in creation order.
func (s *Store) ListRecipients(ctx context.Context, documentID int64) ([]document.Recipient, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, document_id, email, name, phone, national_id, role, signing_status,
	rejection_reason, signed_at, auth_options
FROM recipients
WHERE document_id = ?
ORDER BY id ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list recipients: %w", err)
	}
	defer rows.Close()

	var recipients []document.Recipient
	for rows.Next() {
		recipient, err := scanRecipient(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		recipients = append(recipients, recipient)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recipients: %w", err)
	}
	return recipients, nil
}

// GetRecipient fetches one recipient of a document.
func (s *Store) GetRecipient(ctx context.Context, documentID int64, recipientID int64) (document.Recipient, error) {
	if err := s.ready(ctx); err != nil {
		return document.Recipient{}, err
	}
	row := s.sqlDB.QueryRowContext(ctx, `
SELECT id, document_id, email, name, phone, national_id, role, signing_status,
	rejection_reason, signed_at, auth_options
FROM recipients
WHERE document_id = ? AND id = ?
`, documentID, recipientID)
	recipient, err := scanRecipient(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return document.Recipient{}, storage.ErrNotFound
		}
		return document.Recipient{}, fmt.Errorf("get recipient: %w", err)
	}
	return recipient, nil
}

// EnsureQRToken assigns token only when the document has none.
func (s *Store) EnsureQRToken(ctx context.Context, documentID int64, token string) (string, error) {
	if err := s.ready(ctx); err != nil {
		return "", err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("qr token is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx, `
UPDATE documents SET qr_token = ?, updated_at = ? WHERE id = ? AND qr_token = ''
`, token, toMillis(time.Now()), documentID); err != nil {
		return "", fmt.Errorf("assign qr token: %w", err)
	}
	var current string
	if err := s.sqlDB.QueryRowContext(ctx, `SELECT qr_token FROM documents WHERE id = ?`, documentID).Scan(&current); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", storage.ErrNotFound
		}
		return "", fmt.Errorf("read qr token: %w", err)
	}
	return current, nil
}

func (s *Store) listFields(ctx context.Context, documentID int64) ([]document.Field, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	f.id, f.document_id, f.recipient_id, f.type, f.page, f.position_x, f.position_y,
	f.width, f.height, f.custom_text, f.inserted, f.required,
	sg.id, sg.image_base64, sg.typed_signature, sg.created_at, sg.hash
FROM fields f
LEFT JOIN signatures sg ON sg.field_id = f.id
WHERE f.document_id = ?
ORDER BY f.id ASC
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	var fields []document.Field
	for rows.Next() {
		var f document.Field
		var fieldType string
		var inserted, required int
		var sigID sql.NullInt64
		var image, typed sql.NullString
		var sigCreated sql.NullInt64
		var sigHash sql.NullString
		if err := rows.Scan(
			&f.ID, &f.DocumentID, &f.RecipientID, &fieldType, &f.Page, &f.PositionX, &f.PositionY,
			&f.Width, &f.Height, &f.CustomText, &inserted, &required,
			&sigID, &image, &typed, &sigCreated, &sigHash,
		); err != nil {
			return nil, fmt.Errorf("scan field: %w", err)
		}
		f.Type = document.FieldType(fieldType)
		f.Inserted = inserted != 0
		f.Required = required != 0
		if sigID.Valid {
			sig := &document.Signature{
				ID:          sigID.Int64,
				FieldID:     f.ID,
				RecipientID: f.RecipientID,
				CreatedAt:   fromMillis(sigCreated.Int64),
				Hash:        sigHash.String,
			}
			if image.Valid {
				value := image.String
				sig.ImageBase64 = &value
			}
			if typed.Valid {
				value := typed.String
				sig.TypedSignature = &value
			}
			f.Signature = sig
		}
		fields = append(fields, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fields: %w", err)
	}
	return fields, nil
}

func insertSignature(ctx context.Context, target queryRowContexter, sig document.Signature) (int64, error) {
	if sig.CreatedAt.IsZero() {
		sig.CreatedAt = time.Now().UTC()
	}
	var image, typed sql.NullString
	if sig.ImageBase64 != nil {
		image = sql.NullString{String: *sig.ImageBase64, Valid: true}
	}
	if sig.TypedSignature != nil {
		typed = sql.NullString{String: *sig.TypedSignature, Valid: true}
	}
	var id int64
	err := target.QueryRowContext(ctx, `
INSERT INTO signatures (field_id, recipient_id, image_base64, typed_signature, created_at, hash)
VALUES (?, ?, ?, ?, ?, ?)
ON CONFLICT(field_id) DO UPDATE SET
	image_base64 = excluded.image_base64,
	typed_signature = excluded.typed_signature,
	created_at = excluded.created_at,
	hash = excluded.hash
RETURNING id
`, sig.FieldID, sig.RecipientID, image, typed, toMillis(sig.CreatedAt), sig.Hash).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert signature: %w", err)
	}
	return id, nil
}

type recipientScanner func(dest ...any) error

func scanRecipient(scan recipientScanner) (document.Recipient, error) {
	var r document.Recipient
	var role, status, authOptions string
	var signedAt sql.NullInt64
	if err := scan(
		&r.ID, &r.DocumentID, &r.Email, &r.Name, &r.Phone, &r.NationalID, &role, &status,
		&r.RejectionReason, &signedAt, &authOptions,
	); err != nil {
		return document.Recipient{}, err
	}
	r.Role = document.Role(role)
	r.SigningStatus = document.SigningStatus(status)
	r.SignedAt = fromNullMillis(signedAt)
	r.AuthOptions = json.RawMessage(authOptions)
	return r, nil
}

func jsonOrEmptyObject(raw json.RawMessage) string {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return "{}"
	}
	return string(raw)
}
