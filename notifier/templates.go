package notifier

import (
	"fmt"

	"github.com/yeremiapane/bar-order-app/models"
	"github.com/yeremiapane/bar-order-app/views"
)

type Template string

const (
	TemplateBartenderNewOrder Template = "bartender_new_order"
	TemplateGuestConfirmed    Template = "guest_order_confirmed"
	TemplateGuestPreparing    Template = "guest_order_in_progress"
	TemplateGuestReady        Template = "guest_order_completed"
)

func bartenderNewOrderBody(order *models.Order) string {
	return fmt.Sprintf("🍸 New order #%d from %s: %s", order.OrderNumber, order.GuestName, views.DrinkSummary(order.OrderItems))
}

func guestConfirmedBody(orderNumber int64) string {
	return fmt.Sprintf("Your order #%d is in! We're not wine-ing about it: your drinks are queued up and the bartender has been notified. Sit tight! 🍷", orderNumber)
}

func guestPreparingBody(orderNumber int64) string {
	return fmt.Sprintf("Shaken, not forgotten! Order #%d is being crafted right now. Your bartender is pouring their heart (and spirits) into it. 🧊", orderNumber)
}

func guestReadyBody(orderNumber int64) string {
	return fmt.Sprintf("It's the moment you've been waiting pour! Order #%d is ready for pickup. Come and get it before the ice gets lonely! 🥂", orderNumber)
}

// templateForStatus -> guest template sent when an order enters status; "" means none
func templateForStatus(status models.OrderStatus) Template {
	switch status {
	case models.StatusInProgress:
		return TemplateGuestPreparing
	case models.StatusCompleted:
		return TemplateGuestReady
	}
	return ""
}

func renderGuest(t Template, orderNumber int64) string {
	switch t {
	case TemplateGuestConfirmed:
		return guestConfirmedBody(orderNumber)
	case TemplateGuestPreparing:
		return guestPreparingBody(orderNumber)
	case TemplateGuestReady:
		return guestReadyBody(orderNumber)
	}
	return ""
}
