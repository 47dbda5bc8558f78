package export

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/align/internal/domain"
)

// TransactionRow is one ledger line in the analytics table.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	UserID   string `bigquery:"user_id"`   // REQUIRED
	UserName string `bigquery:"user_name"` // NULLABLE

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	Amount          *big.Rat   `bigquery:"amount"`           // REQUIRED NUMERIC
	Direction       string     `bigquery:"direction"`        // INCOME or EXPENSE

	Description  string `bigquery:"description"`
	CategoryName string `bigquery:"category_name"`
	Institution  string `bigquery:"institution"`

	ExportedTS time.Time `bigquery:"exported_ts"`
}

// transactionTable is the slice of BigQuery the sink needs.
type transactionTable interface {
	ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error)
	Insert(ctx context.Context, rows []*TransactionRow) error
}

type bigQueryTable struct {
	client    *bigquery.Client
	projectID string
	datasetID string
	tableID   string
}

func (t *bigQueryTable) ExistingIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	q := t.client.Query(fmt.Sprintf(
		"SELECT transaction_id FROM `%s.%s.%s` WHERE transaction_id IN UNNEST(@ids)",
		t.projectID, t.datasetID, t.tableID,
	))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "ids", Value: ids},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ExistingIDs: query read: %w", err)
	}

	existing := make(map[string]bool)
	for {
		var r struct {
			TransactionID string `bigquery:"transaction_id"`
		}
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ExistingIDs: iter next: %w", err)
		}
		existing[r.TransactionID] = true
	}
	return existing, nil
}

func (t *bigQueryTable) Insert(ctx context.Context, rows []*TransactionRow) error {
	if len(rows) == 0 {
		return nil
	}
	inserter := t.client.DatasetInProject(t.projectID, t.datasetID).Table(t.tableID).Inserter()
	if err := inserter.Put(ctx, rows); err != nil {
		return fmt.Errorf("Insert: inserting rows: %w", err)
	}
	return nil
}

// BigQuerySink streams ledger rows that are not yet in the analytics table.
type BigQuerySink struct {
	table  transactionTable
	client *bigquery.Client
	log    zerolog.Logger
}

// NewBigQuerySink creates a sink writing to project.dataset.table.
func NewBigQuerySink(ctx context.Context, projectID, datasetID, tableID string, log zerolog.Logger) (*BigQuerySink, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewBigQuerySink: bigquery client: %w", err)
	}
	return &BigQuerySink{
		table: &bigQueryTable{
			client:    client,
			projectID: projectID,
			datasetID: datasetID,
			tableID:   tableID,
		},
		client: client,
		log:    log,
	}, nil
}

func newBigQuerySink(table transactionTable, log zerolog.Logger) *BigQuerySink {
	return &BigQuerySink{table: table, log: log}
}

// Name implements Sink.
func (s *BigQuerySink) Name() string { return "bigquery" }

// TransactionRows maps the ledger to analytics rows.
func TransactionRows(txs []domain.Transaction, users []domain.User, exportedAt time.Time) []*TransactionRow {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.Name
	}

	rows := make([]*TransactionRow, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, &TransactionRow{
			TransactionID:   tx.ID,
			UserID:          tx.UserID,
			UserName:        names[tx.UserID],
			TransactionDate: tx.Date,
			Amount:          tx.Amount.Rat(),
			Direction:       string(tx.Type),
			Description:     tx.Description,
			CategoryName:    string(tx.Category),
			Institution:     string(tx.Institution),
			ExportedTS:      exportedAt,
		})
	}
	return rows
}

// Export implements Sink.
func (s *BigQuerySink) Export(ctx context.Context, snap Snapshot) error {
	txs := snap.State.Transactions
	if len(txs) == 0 {
		return nil
	}

	ids := make([]string, len(txs))
	for i, tx := range txs {
		ids[i] = tx.ID
	}
	existing, err := s.table.ExistingIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("bigquery export: %w", err)
	}

	var fresh []*TransactionRow
	for _, row := range TransactionRows(txs, snap.State.Users, snap.ExportedAt) {
		if !existing[row.TransactionID] {
			fresh = append(fresh, row)
		}
	}

	if err := s.table.Insert(ctx, fresh); err != nil {
		return fmt.Errorf("bigquery export: %w", err)
	}

	s.log.Info().Int("inserted", len(fresh)).Int("skipped", len(txs)-len(fresh)).Msg("Exported transactions to BigQuery")
	return nil
}

// Close closes the BigQuery client connection.
func (s *BigQuerySink) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}
