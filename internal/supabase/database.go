package supabase

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"dealer-studio-backend/internal/models"
)

// OrderFile is one archived output image.
type OrderFile struct {
	ID          uuid.UUID `json:"id"`
	OrderID     string    `json:"order_id"`
	JobID       string    `json:"job_id"`
	Angle       string    `json:"angle"`
	Category    string    `json:"category"`
	StoragePath string    `json:"storage_path"`
	StorageURL  string    `json:"storage_url"`
	FileSize    int64     `json:"file_size"`
	MimeType    string    `json:"mime_type"`
	CreatedAt   time.Time `json:"created_at"`
}

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(connectionString string) (*DatabaseClient, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// UpsertOrder mirrors the order's summary into the archive.
func (d *DatabaseClient) UpsertOrder(order models.Order) error {
	completed, failed := order.Counts()
	_, err := d.db.Exec(`
		INSERT INTO orders (id, title, task_type, studio_id, status, total_jobs, completed_jobs, failed_jobs, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			studio_id = EXCLUDED.studio_id,
			status = EXCLUDED.status,
			total_jobs = EXCLUDED.total_jobs,
			completed_jobs = EXCLUDED.completed_jobs,
			failed_jobs = EXCLUDED.failed_jobs,
			updated_at = EXCLUDED.updated_at
	`, order.ID, order.Title, string(order.TaskType), order.StudioID, string(order.Status),
		len(order.Jobs), completed, failed, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert order: %w", err)
	}
	return nil
}

func (d *DatabaseClient) CreateOrderFile(file *OrderFile) error {
	_, err := d.db.Exec(`
		INSERT INTO order_files (id, order_id, job_id, angle, category, storage_path, storage_url, file_size, mime_type, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (job_id) DO UPDATE SET
			storage_path = EXCLUDED.storage_path,
			storage_url = EXCLUDED.storage_url,
			file_size = EXCLUDED.file_size,
			mime_type = EXCLUDED.mime_type
	`, file.ID, file.OrderID, file.JobID, file.Angle, file.Category, file.StoragePath,
		file.StorageURL, file.FileSize, file.MimeType, file.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order file: %w", err)
	}
	return nil
}

func (d *DatabaseClient) GetOrderFiles(orderID string) ([]OrderFile, error) {
	rows, err := d.db.Query(`
		SELECT id, order_id, job_id, angle, category, storage_path, storage_url, file_size, mime_type, created_at
		FROM order_files
		WHERE order_id = $1
		ORDER BY created_at ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get order files: %w", err)
	}
	defer rows.Close()

	var files []OrderFile
	for rows.Next() {
		var f OrderFile
		if err := rows.Scan(
			&f.ID, &f.OrderID, &f.JobID, &f.Angle, &f.Category, &f.StoragePath,
			&f.StorageURL, &f.FileSize, &f.MimeType, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan order file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// DeleteOrder removes the order row; its files cascade.
func (d *DatabaseClient) DeleteOrder(orderID string) error {
	_, err := d.db.Exec(`DELETE FROM orders WHERE id = $1`, orderID)
	return err
}

func (d *DatabaseClient) Close() error {
	return d.db.Close()
}
