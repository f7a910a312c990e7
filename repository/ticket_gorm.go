package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AzielCF/az-crm/domains/crm"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// --- Persistence Models ---

type ticketModel struct {
	ID          string `gorm:"primaryKey"`
	TenantID    string `gorm:"index:idx_tickets_tenant;uniqueIndex:idx_tickets_code,priority:1;not null"`
	ChatID      string `gorm:"index:idx_tickets_chat;not null"`
	CustomerID  string `gorm:"index:idx_tickets_customer"`
	Number      int    `gorm:"not null"`
	Code        string `gorm:"uniqueIndex:idx_tickets_code,priority:2;not null"`
	Subject     string
	Description string `gorm:"type:text"`
	Status      string `gorm:"index:idx_tickets_status;default:'open'"`
	Priority    string `gorm:"default:'medium'"`
	Category    string
	AssignedTo  string
	Metadata    string     `gorm:"type:text;default:'{}'"` // JSON
	ResolvedAt  *time.Time `gorm:"column:resolved_at"`
	ClosedAt    *time.Time `gorm:"column:closed_at"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null"`
}

func (ticketModel) TableName() string {
	return "tickets"
}

type ticketActivityModel struct {
	ID        string `gorm:"primaryKey"`
	TenantID  string `gorm:"not null"`
	TicketID  string `gorm:"index:idx_ticket_activities_ticket;not null"`
	Action    string `gorm:"not null"`
	Actor     string
	Detail    string    `gorm:"type:text"`
	CreatedAt time.Time `gorm:"not null"`
}

func (ticketActivityModel) TableName() string {
	return "ticket_activities"
}

type ticketCounterModel struct {
	TenantID string `gorm:"primaryKey"`
	Number   int    `gorm:"not null"`
}

func (ticketCounterModel) TableName() string {
	return "ticket_counters"
}

// --- Repository Implementation ---

type TicketGormRepository struct {
	db *gorm.DB
}

func NewTicketGormRepository(db *gorm.DB) *TicketGormRepository {
	return &TicketGormRepository{db: db}
}

func (r *TicketGormRepository) InitSchema(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&ticketModel{}, &ticketActivityModel{}, &ticketCounterModel{})
}

// NextNumber entrega el siguiente número del contador por tenant. El upsert
// con "number + 1" es atómico tanto en sqlite como en postgres, así dos
// guardas concurrentes nunca reparten el mismo número.
func (r *TicketGormRepository) NextNumber(ctx context.Context, tenantID string) (int, error) {
	var number int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		counter := ticketCounterModel{TenantID: tenantID, Number: 1}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{"number": gorm.Expr("number + 1")}),
		}).Create(&counter).Error; err != nil {
			return err
		}

		var current ticketCounterModel
		if err := tx.Where("tenant_id = ?", tenantID).First(&current).Error; err != nil {
			return err
		}
		number = current.Number
		return nil
	})
	if err != nil {
		return 0, err
	}
	return number, nil
}

func (r *TicketGormRepository) Create(ctx context.Context, ticket *crm.Ticket) error {
	if ticket.ID == "" {
		ticket.ID = uuid.New().String()
	}
	now := time.Now()
	if ticket.CreatedAt.IsZero() {
		ticket.CreatedAt = now
	}
	ticket.UpdatedAt = now
	if ticket.Code == "" {
		ticket.Code = fmt.Sprintf("TKT-%06d", ticket.Number)
	}

	model, err := toTicketModel(ticket)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *TicketGormRepository) GetByID(ctx context.Context, id string) (*crm.Ticket, error) {
	var m ticketModel
	if err := r.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrTicketNotFound
		}
		return nil, err
	}
	return fromTicketModel(m)
}

func (r *TicketGormRepository) GetByCode(ctx context.Context, tenantID, code string) (*crm.Ticket, error) {
	var m ticketModel
	err := r.db.WithContext(ctx).Where("tenant_id = ? AND code = ?", tenantID, code).First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrTicketNotFound
		}
		return nil, err
	}
	return fromTicketModel(m)
}

func (r *TicketGormRepository) FindActiveByChat(ctx context.Context, chatID string) (*crm.Ticket, error) {
	var m ticketModel
	err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Where("status IN ?", []string{string(crm.TicketOpen), string(crm.TicketInProgress)}).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrTicketNotFound
		}
		return nil, err
	}
	return fromTicketModel(m)
}

func (r *TicketGormRepository) FindActiveByCustomer(ctx context.Context, customerID string) (*crm.Ticket, error) {
	var m ticketModel
	err := r.db.WithContext(ctx).
		Where("customer_id = ?", customerID).
		Where("status IN ?", []string{string(crm.TicketOpen), string(crm.TicketInProgress)}).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, crm.ErrTicketNotFound
		}
		return nil, err
	}
	return fromTicketModel(m)
}

func (r *TicketGormRepository) List(ctx context.Context, tenantID string, filter crm.TicketFilter) ([]*crm.Ticket, error) {
	var models []ticketModel
	query := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID)

	if filter.Status != nil {
		query = query.Where("status = ?", string(*filter.Status))
	}
	if filter.Priority != nil {
		query = query.Where("priority = ?", string(*filter.Priority))
	}
	if filter.Category != "" {
		query = query.Where("category = ?", filter.Category)
	}

	query = query.Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	tickets := make([]*crm.Ticket, len(models))
	for i, m := range models {
		t, err := fromTicketModel(m)
		if err != nil {
			return nil, err
		}
		tickets[i] = t
	}
	return tickets, nil
}

func (r *TicketGormRepository) Update(ctx context.Context, ticket *crm.Ticket) error {
	ticket.UpdatedAt = time.Now()
	model, err := toTicketModel(ticket)
	if err != nil {
		return err
	}

	result := r.db.WithContext(ctx).Model(&ticketModel{ID: ticket.ID}).Select("*").Updates(&model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return crm.ErrTicketNotFound
	}
	return nil
}

func (r *TicketGormRepository) AddActivity(ctx context.Context, activity *crm.TicketActivity) error {
	if activity.ID == "" {
		activity.ID = uuid.New().String()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = time.Now()
	}

	model := ticketActivityModel{
		ID:        activity.ID,
		TenantID:  activity.TenantID,
		TicketID:  activity.TicketID,
		Action:    activity.Action,
		Actor:     activity.Actor,
		Detail:    activity.Detail,
		CreatedAt: activity.CreatedAt,
	}
	return r.db.WithContext(ctx).Create(&model).Error
}

func (r *TicketGormRepository) ListActivities(ctx context.Context, ticketID string) ([]crm.TicketActivity, error) {
	var models []ticketActivityModel
	if err := r.db.WithContext(ctx).
		Where("ticket_id = ?", ticketID).
		Order("created_at ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	activities := make([]crm.TicketActivity, len(models))
	for i, m := range models {
		activities[i] = crm.TicketActivity{
			ID:        m.ID,
			TenantID:  m.TenantID,
			TicketID:  m.TicketID,
			Action:    m.Action,
			Actor:     m.Actor,
			Detail:    m.Detail,
			CreatedAt: m.CreatedAt,
		}
	}
	return activities, nil
}

// --- Mappers ---

func toTicketModel(t *crm.Ticket) (ticketModel, error) {
	meta := t.Meta
	if meta == nil {
		meta = crm.Meta{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return ticketModel{}, fmt.Errorf("marshal ticket metadata: %w", err)
	}

	return ticketModel{
		ID:          t.ID,
		TenantID:    t.TenantID,
		ChatID:      t.ChatID,
		CustomerID:  t.CustomerID,
		Number:      t.Number,
		Code:        t.Code,
		Subject:     t.Subject,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		Category:    t.Category,
		AssignedTo:  t.AssignedTo,
		Metadata:    string(metaJSON),
		ResolvedAt:  t.ResolvedAt,
		ClosedAt:    t.ClosedAt,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}, nil
}

func fromTicketModel(m ticketModel) (*crm.Ticket, error) {
	meta := crm.Meta{}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &meta); err != nil {
			return nil, fmt.Errorf("unmarshal ticket metadata: %w", err)
		}
	}

	return &crm.Ticket{
		ID:          m.ID,
		TenantID:    m.TenantID,
		ChatID:      m.ChatID,
		CustomerID:  m.CustomerID,
		Number:      m.Number,
		Code:        m.Code,
		Subject:     m.Subject,
		Description: m.Description,
		Status:      crm.TicketStatus(m.Status),
		Priority:    crm.TicketPriority(m.Priority),
		Category:    m.Category,
		AssignedTo:  m.AssignedTo,
		Meta:        meta,
		ResolvedAt:  m.ResolvedAt,
		ClosedAt:    m.ClosedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}, nil
}
