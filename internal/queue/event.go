package queue

import (
	"fmt"
	"strconv"
	"time"

	"storefront/internal/model"

	"github.com/google/uuid"
)

// EventType 事件类型。
type EventType string

const (
	OrderCreated       EventType = "order.created"
	OrderStatusChanged EventType = "order.status_changed"
	OrdersCleared      EventType = "orders.cleared"
	ProductCreated     EventType = "product.created"
)

// Event 写入 Stream/Kafka 的业务事件，字段按类型选填。
type Event struct {
	ID         string            `json:"id"`
	Type       EventType         `json:"type"`
	OrderID    int64             `json:"order_id,omitempty"`
	PublicCode string            `json:"public_code,omitempty"`
	Status     model.OrderStatus `json:"status,omitempty"`
	TotalCents int64             `json:"total_cents,omitempty"`
	ProductID  int64             `json:"product_id,omitempty"`
	At         time.Time         `json:"at"`
}

// NewOrderCreated 下单成功事件。
func NewOrderCreated(o *model.Order) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       OrderCreated,
		OrderID:    o.ID,
		PublicCode: o.Code(),
		Status:     o.Status,
		TotalCents: o.TotalCents,
		At:         time.Now().UTC(),
	}
}

func NewStatusChanged(orderID int64, st model.OrderStatus) Event {
	return Event{ID: uuid.NewString(), Type: OrderStatusChanged, OrderID: orderID, Status: st, At: time.Now().UTC()}
}

func NewOrdersCleared() Event {
	return Event{ID: uuid.NewString(), Type: OrdersCleared, At: time.Now().UTC()}
}

func NewProductCreated(p *model.Product) Event {
	return Event{ID: uuid.NewString(), Type: ProductCreated, ProductID: p.ID, At: time.Now().UTC()}
}

// Key Kafka 分区键：同一订单/商品的事件落到同一分区。
func (e Event) Key() string {
	switch {
	case e.OrderID > 0:
		return "order:" + strconv.FormatInt(e.OrderID, 10)
	case e.ProductID > 0:
		return "product:" + strconv.FormatInt(e.ProductID, 10)
	default:
		return string(e.Type)
	}
}

// Validate 做最小字段校验，防止转发脏消息。
func (e Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch e.Type {
	case OrderCreated:
		if e.OrderID <= 0 {
			return fmt.Errorf("order_id is required")
		}
	case OrderStatusChanged:
		if e.OrderID <= 0 {
			return fmt.Errorf("order_id is required")
		}
		if _, err := model.ParseOrderStatus(string(e.Status)); err != nil {
			return err
		}
	case ProductCreated:
		if e.ProductID <= 0 {
			return fmt.Errorf("product_id is required")
		}
	case OrdersCleared:
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Values 展开成 Stream 字段。
func (e Event) Values() map[string]any {
	return map[string]any{
		"id":          e.ID,
		"type":        string(e.Type),
		"order_id":    e.OrderID,
		"public_code": e.PublicCode,
		"status":      string(e.Status),
		"total_cents": e.TotalCents,
		"product_id":  e.ProductID,
		"at":          e.At.Format(time.RFC3339Nano),
	}
}

// parseEvent 从 Stream 字段还原事件。
func parseEvent(values map[string]interface{}) (Event, error) {
	var e Event
	var err error
	if e.ID, err = getStreamString(values, "id"); err != nil {
		return Event{}, err
	}
	typ, err := getStreamString(values, "type")
	if err != nil {
		return Event{}, err
	}
	e.Type = EventType(typ)
	if e.OrderID, err = getStreamInt(values, "order_id"); err != nil {
		return Event{}, err
	}
	if e.TotalCents, err = getStreamInt(values, "total_cents"); err != nil {
		return Event{}, err
	}
	if e.ProductID, err = getStreamInt(values, "product_id"); err != nil {
		return Event{}, err
	}
	e.PublicCode, _ = getStreamString(values, "public_code")
	status, _ := getStreamString(values, "status")
	e.Status = model.OrderStatus(status)
	at, err := getStreamString(values, "at")
	if err != nil {
		return Event{}, err
	}
	if e.At, err = time.Parse(time.RFC3339Nano, at); err != nil {
		return Event{}, fmt.Errorf("invalid at %q", at)
	}
	if err := e.Validate(); err != nil {
		return Event{}, err
	}
	return e, nil
}

func getStreamInt(values map[string]interface{}, key string) (int64, error) {
	s, err := getStreamString(values, key)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, s)
	}
	return n, nil
}

func getStreamString(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key]
	if !ok {
		return "", fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case uint64:
		return strconv.FormatUint(x, 10), nil
	case float64:
		return strconv.FormatInt(int64(x), 10), nil
	default:
		return "", fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
