package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"github.com/ledgerscan/ledgerscan/internal/apierror"
	"github.com/ledgerscan/ledgerscan/model"
)

// RecordTransactions persists a batch of normalized transactions inside one
// database transaction so a statement's rows land all-or-nothing. A
// foreign-key violation means the parent document vanished, which the worker
// treats as a permanent failure.
func (d Datasource) RecordTransactions(ctx context.Context, txns []*model.Transaction) error {
	if len(txns) == 0 {
		return nil
	}

	tx, err := d.Conn.BeginTx(ctx, nil)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to begin transaction", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO transactions (transaction_id, document_id, owner_id, date, vendor, raw_description, amount, currency, category, confidence, meta_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prepare insert", err)
	}
	defer stmt.Close()

	for _, txn := range txns {
		if txn.TransactionID == "" {
			txn.TransactionID = model.GenerateUUIDWithSuffix("txn")
		}
		txn.CreatedAt = time.Now()

		metaDataJSON, err := json.Marshal(txn.MetaData)
		if err != nil {
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to marshal metadata", err)
		}

		_, err = stmt.ExecContext(ctx, txn.TransactionID, txn.DocumentID, txn.OwnerID, txn.Date, txn.Vendor,
			txn.RawDescription, txn.Amount, txn.Currency, txn.Category, txn.Confidence, metaDataJSON)
		if err != nil {
			pqErr, ok := err.(*pq.Error)
			if ok {
				switch pqErr.Code.Name() {
				case "foreign_key_violation":
					return apierror.NewAPIError(apierror.ErrNotFound, "Referenced document no longer exists", err)
				case "unique_violation":
					return apierror.NewAPIError(apierror.ErrConflict, "Transaction with this ID already exists", err)
				}
			}
			return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record transaction", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to commit transactions", err)
	}
	return nil
}

// GetTransactionsByDocument retrieves a document's transactions in insertion
// order.
func (d Datasource) GetTransactionsByDocument(ctx context.Context, documentID string, limit, offset int) ([]*model.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT transaction_id, document_id, owner_id, date, vendor, raw_description, amount, currency, category, confidence, created_at, meta_data
		FROM transactions
		WHERE document_id = $1
		ORDER BY id
		LIMIT $2 OFFSET $3
	`, documentID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve transactions", err)
	}
	defer rows.Close()

	txns := []*model.Transaction{}
	for rows.Next() {
		txn := model.Transaction{}
		var date sql.NullTime
		var metaDataJSON []byte
		err = rows.Scan(&txn.TransactionID, &txn.DocumentID, &txn.OwnerID, &date, &txn.Vendor,
			&txn.RawDescription, &txn.Amount, &txn.Currency, &txn.Category, &txn.Confidence, &txn.CreatedAt, &metaDataJSON)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan transaction data", err)
		}
		if date.Valid {
			txn.Date = date.Time
		}
		if len(metaDataJSON) > 0 {
			if err := json.Unmarshal(metaDataJSON, &txn.MetaData); err != nil {
				return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to unmarshal metadata", err)
			}
		}
		txns = append(txns, &txn)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over transactions", err)
	}

	return txns, nil
}
