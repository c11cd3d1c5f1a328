package services

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/jbank/backend/internal/models"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 100
)

// TimelineService reads the customer history projection
type TimelineService struct {
	db *sql.DB
}

func NewTimelineService(db *sql.DB) *TimelineService {
	return &TimelineService{db: db}
}

// NewPagination normalizes the limit and derives page counts for total rows
func NewPagination(page, limit, total int) models.Pagination {
	if limit == 0 {
		limit = DefaultPageLimit
	}
	if limit < 1 {
		limit = 1
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	totalPages := (total + limit - 1) / limit
	return models.Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
		HasPrev:    page > 1,
	}
}

// GetTimeline returns one page of a customer's history, newest first
func (s *TimelineService) GetTimeline(ctx context.Context, customerID string, filter models.TimelineFilter, page, limit int) (*models.TimelinePage, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", ErrInvalidQuery)
	}
	if page < 1 {
		return nil, fmt.Errorf("%w: page must be >= 1", ErrInvalidQuery)
	}
	if filter.From != nil && filter.To != nil && filter.From.After(*filter.To) {
		return nil, fmt.Errorf("%w: from must not be after to", ErrInvalidQuery)
	}

	where := []string{"customer_id = $1"}
	args := []any{customerID}
	if filter.From != nil {
		args = append(args, *filter.From)
		where = append(where, "event_date >= $"+strconv.Itoa(len(args)))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		where = append(where, "event_date <= $"+strconv.Itoa(len(args)))
	}
	if filter.Type != "" {
		args = append(args, strings.ToUpper(filter.Type))
		where = append(where, "event_type = $"+strconv.Itoa(len(args)))
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM timeline_by_customer WHERE `+clause, args...).Scan(&total); err != nil {
		return nil, storageError("count timeline", err)
	}

	p := NewPagination(page, limit, total)
	result := &models.TimelinePage{
		Items:      []models.TimelineItem{},
		Pagination: p,
		Filters:    filter,
	}
	offset := (page - 1) * p.Limit
	if total == 0 || offset >= total {
		return result, nil
	}

	args = append(args, p.Limit, offset)
	rows, err := s.db.QueryContext(ctx, `
		SELECT customer_id, event_date, event_type, reference_id, amount_cents, currency, details
		FROM timeline_by_customer
		WHERE `+clause+`
		ORDER BY event_date DESC, event_type ASC
		LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, storageError("load timeline", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.TimelineItem
		var amount sql.NullInt64
		var currency sql.NullString
		if err := rows.Scan(&item.CustomerID, &item.Date, &item.Type, &item.ReferenceID, &amount, &currency, &item.Details); err != nil {
			return nil, storageError("scan timeline", err)
		}
		if amount.Valid {
			v := amount.Int64
			item.AmountCents = &v
		}
		item.Currency = currency.String
		result.Items = append(result.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageError("load timeline", err)
	}
	return result, nil
}
