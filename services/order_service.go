package services

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yeremiapane/bar-order-app/config"
	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/notifier"
	"github.com/yeremiapane/bar-order-app/repository"
	"github.com/yeremiapane/bar-order-app/utils"
	"github.com/yeremiapane/bar-order-app/views"
)

const (
	MinSuggestionPrefix = 2
	MaxSuggestions      = 10
	HistoryLimit        = 50
	HistoryTopDrinks    = 10
	minPhoneDigits      = 10
)

var tracer = otel.Tracer("github.com/yeremiapane/bar-order-app/services")

// Notifier receives order events; implementations must not block.
type Notifier interface {
	OrderCreated(order *models.Order)
	StatusChanged(order *models.Order, from, to models.OrderStatus)
}

type CreateOrderItemInput struct {
	MenuItemID *string `json:"menu_item_id"`
	ItemName   string  `json:"item_name" validate:"required"`
	Quantity   int     `json:"quantity" validate:"gte=1"`
	Notes      *string `json:"notes"`
	IsCustom   bool    `json:"is_custom"`
}

type CreateOrderInput struct {
	GuestName   string                 `json:"guest_name" validate:"required"`
	PhoneNumber *string                `json:"phone_number"`
	GroupName   *string                `json:"group_name"`
	Items       []CreateOrderItemInput `json:"items" validate:"required,min=1,dive"`
}

type OrderFilter struct {
	Range     DateFilter
	From      *time.Time
	To        *time.Time
	Statuses  []models.OrderStatus
	WithItems bool
	Limit     int
}

type BulkResult struct {
	OrderID string        `json:"order_id"`
	Order   *models.Order `json:"order,omitempty"`
	Error   string        `json:"error,omitempty"`
}

type History struct {
	RecentOrders  []models.Order      `json:"recent_orders"`
	PopularDrinks []views.PopularDrink `json:"popular_drinks"`
}

// OrderService is the only path that mutates orders.
type OrderService struct {
	orders   repository.OrderRepository
	menu     repository.MenuRepository
	notifier Notifier
	auth     Authorizer
	opts     config.Orders
	loc      *time.Location
	validate *validator.Validate
	now      func() time.Time
}

func NewOrderService(orders repository.OrderRepository, menu repository.MenuRepository, notifier Notifier, auth Authorizer, opts config.Orders, loc *time.Location) *OrderService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if loc == nil {
		loc = time.UTC
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &OrderService{
		orders:   orders,
		menu:     menu,
		notifier: notifier,
		auth:     auth,
		opts:     opts,
		loc:      loc,
		validate: v,
		now:      time.Now,
	}
}

func (s *OrderService) Location() *time.Location { return s.loc }

func (s *OrderService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.opts.StoreTimeout)
}

// CreateOrder -> validate, persist order, persist items (compensating delete on failure), notify
func (s *OrderService) CreateOrder(ctx context.Context, in CreateOrderInput) (*models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	if err := s.validateCreate(&in); err != nil {
		return nil, err
	}

	order := &models.Order{
		ID:          uuid.NewString(),
		GuestName:   in.GuestName,
		GroupName:   in.GroupName,
		PhoneNumber: in.PhoneNumber,
		Status:      models.StatusNew,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err := s.orders.CreateOrder(storeCtx, order)
	cancel()
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("create order: %w", err)
	}
	span.SetAttributes(attribute.String("order.id", order.ID), attribute.Int64("order.number", order.OrderNumber))

	items := make([]models.OrderItem, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, models.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    order.ID,
			MenuItemID: it.MenuItemID,
			ItemName:   it.ItemName,
			Quantity:   it.Quantity,
			Notes:      it.Notes,
			IsCustom:   it.IsCustom,
		})
	}

	storeCtx, cancel = s.storeCtx(ctx)
	err = s.orders.CreateItems(storeCtx, items)
	cancel()
	if err != nil {
		recordSpanError(span, err)
		return nil, s.compensate(ctx, order, err)
	}

	order.OrderItems = items
	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"items":        len(items),
	}).Info("Order created")

	s.notifier.OrderCreated(order)
	return order, nil
}

// compensate removes an order whose items could not be stored.
func (s *OrderService) compensate(ctx context.Context, order *models.Order, cause error) error {
	fields := logrus.Fields{"order_id": order.ID, "order_number": order.OrderNumber}
	utils.ErrorLogger.WithFields(fields).Errorf("Error creating order items: %v", cause)

	// the caller may already be gone; the cleanup still has to run
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()
	if err := s.orders.DeleteOrder(delCtx, order.ID); err != nil {
		utils.ErrorLogger.WithFields(fields).Errorf("Orphaned order: compensating delete failed: %v", err)
		return fmt.Errorf("%w: %w: order %s: %v", ErrItemsCreateFailed, ErrOrphanedOrder, order.ID, err)
	}
	return fmt.Errorf("%w: %v", ErrItemsCreateFailed, cause)
}

func (s *OrderService) validateCreate(in *CreateOrderInput) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fieldError(verrs[0])
		}
		return invalid("", err.Error())
	}

	in.GuestName = strings.TrimSpace(in.GuestName)
	if in.GuestName == "" {
		return invalid("guest_name", "is required")
	}
	in.GroupName = trimmedOrNil(in.GroupName)
	in.PhoneNumber = trimmedOrNil(in.PhoneNumber)

	if in.PhoneNumber == nil && s.opts.RequirePhone {
		return invalid("phone_number", "is required")
	}
	if in.PhoneNumber != nil && len(notifier.Digits(*in.PhoneNumber)) < minPhoneDigits {
		return invalid("phone_number", "please enter a valid phone number")
	}

	for i := range in.Items {
		item := &in.Items[i]
		item.ItemName = strings.TrimSpace(item.ItemName)
		if item.ItemName == "" {
			return invalid(fmt.Sprintf("items[%d].item_name", i), "is required")
		}
		item.Notes = trimmedOrNil(item.Notes)
		item.MenuItemID = trimmedOrNil(item.MenuItemID)
	}
	return nil
}

func fieldError(fe validator.FieldError) error {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		if fe.Kind() == reflect.Slice {
			return invalid(field, "must contain at least one item")
		}
		return invalid(field, "is required")
	case "min":
		return invalid(field, "must contain at least one item")
	case "gte":
		return invalid(field, "must be at least "+fe.Param())
	}
	return invalid(field, "is invalid")
}

// UpdateOrderStatus -> authorize, validate the transition, update with a status guard, notify
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID, newStatus string, cred Credential) (*models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.UpdateOrderStatus", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	status, err := s.authorizeStatusChange(newStatus, cred)
	if err != nil {
		return nil, err
	}
	order, err := s.updateStatus(ctx, orderID, status)
	if err != nil {
		recordSpanError(span, err)
	}
	return order, err
}

// BulkUpdateStatus applies one status to several orders. Credentials and the status are
// checked once; per-order failures are reported in the results.
func (s *OrderService) BulkUpdateStatus(ctx context.Context, orderIDs []string, newStatus string, cred Credential) ([]BulkResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.BulkUpdateStatus", trace.WithAttributes(attribute.Int("orders.count", len(orderIDs))))
	defer span.End()

	status, err := s.authorizeStatusChange(newStatus, cred)
	if err != nil {
		return nil, err
	}
	if len(orderIDs) == 0 {
		return nil, invalid("order_ids", "must contain at least one order")
	}

	results := make([]BulkResult, 0, len(orderIDs))
	for _, id := range orderIDs {
		order, err := s.updateStatus(ctx, id, status)
		res := BulkResult{OrderID: id, Order: order}
		if err != nil {
			res.Error = err.Error()
		}
		results = append(results, res)
	}
	return results, nil
}

// Authorize reports ErrUnauthorized unless cred may change order statuses.
func (s *OrderService) Authorize(cred Credential) error {
	if s.auth == nil || !s.auth.Authorize(cred) {
		return ErrUnauthorized
	}
	return nil
}

func (s *OrderService) authorizeStatusChange(newStatus string, cred Credential) (models.OrderStatus, error) {
	if err := s.Authorize(cred); err != nil {
		return "", err
	}
	status, err := models.ParseOrderStatus(newStatus)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, newStatus)
	}
	return status, nil
}

func (s *OrderService) updateStatus(ctx context.Context, orderID string, status models.OrderStatus) (*models.Order, error) {
	order, err := s.FetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	from := order.Status
	if from == status {
		return order, nil
	}
	if !from.CanTransitionTo(status) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.orders.UpdateStatus(storeCtx, order, from, status)
	cancel()
	if errors.Is(err, repository.ErrStatusConflict) {
		return nil, ErrStatusConflict
	}
	if err != nil {
		return nil, fmt.Errorf("update order status: %w", err)
	}

	updated, err := s.FetchOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{
		"order_id":     updated.ID,
		"order_number": updated.OrderNumber,
		"from":         from,
		"status":       status,
	}).Info("Order status updated")

	s.notifier.StatusChanged(updated, from, status)
	return updated, nil
}

func (s *OrderService) FetchOrder(ctx context.Context, orderID string) (*models.Order, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	order, err := s.orders.GetByID(storeCtx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetch order: %w", err)
	}
	return order, nil
}

// ListOrders -> newest first; explicit From/To win over Range
func (s *OrderService) ListOrders(ctx context.Context, f OrderFilter) ([]models.Order, error) {
	ctx, span := tracer.Start(ctx, "OrderService.ListOrders", trace.WithAttributes(attribute.String("range", string(f.Range))))
	defer span.End()

	q := repository.ListQuery{
		From:      f.From,
		To:        f.To,
		Statuses:  f.Statuses,
		WithItems: f.WithItems,
		Limit:     f.Limit,
	}
	if q.From == nil && q.To == nil && f.Range != "" {
		q.From, q.To = f.Range.Bounds(s.now(), s.loc)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	orders, err := s.orders.List(storeCtx, q)
	if err != nil {
		recordSpanError(span, err)
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// SuggestGuestNames -> up to ten earlier guest names starting with prefix, case-insensitively
func (s *OrderService) SuggestGuestNames(ctx context.Context, prefix string) ([]string, error) {
	// the prefix is matched as typed; only the length check ignores surrounding spaces
	if utf8.RuneCountInString(strings.TrimSpace(prefix)) < MinSuggestionPrefix {
		return []string{}, nil
	}

	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	// over-fetch: names differing only in case collapse below
	names, err := s.orders.SearchGuestNames(storeCtx, prefix, MaxSuggestions*3)
	if err != nil {
		return nil, fmt.Errorf("search guest names: %w", err)
	}

	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, MaxSuggestions)
	lowerPrefix := strings.ToLower(prefix)
	for _, name := range names {
		key := strings.ToLower(strings.TrimSpace(name))
		if !strings.HasPrefix(key, lowerPrefix) {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, strings.TrimSpace(name))
		if len(out) == MaxSuggestions {
			break
		}
	}
	return out, nil
}

// History -> recent completed orders (privacy names, no phone numbers) plus top drinks
func (s *OrderService) History(ctx context.Context, limit, topN int) (*History, error) {
	if limit <= 0 {
		limit = HistoryLimit
	}
	if topN <= 0 {
		topN = HistoryTopDrinks
	}

	orders, err := s.ListOrders(ctx, OrderFilter{
		Statuses:  []models.OrderStatus{models.StatusCompleted},
		WithItems: true,
		Limit:     limit,
	})
	if err != nil {
		return nil, err
	}

	for i := range orders {
		orders[i].GuestName = views.PrivacyName(orders[i].GuestName)
		orders[i].PhoneNumber = nil
	}
	return &History{
		RecentOrders:  orders,
		PopularDrinks: views.PopularDrinks(views.ItemsOf(orders), topN),
	}, nil
}

func (s *OrderService) ListMenu(ctx context.Context) ([]models.MenuItem, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	items, err := s.menu.ListActive(storeCtx)
	if err != nil {
		return nil, fmt.Errorf("list menu: %w", err)
	}
	return items, nil
}

func trimmedOrNil(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
