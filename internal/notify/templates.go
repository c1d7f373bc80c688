package notify

import (
	"fmt"
	"strings"

	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/fulfillment"
	"github.com/chami-cosmetics-dev/cosmo-os-sub000/internal/models"
)

// Message is one outbound templated notification. Delivery transport
// (SMS gateway, email relay) consumes these from the notifications
// queue; this service only submits them.
type Message struct {
	Trigger   string `json:"trigger"`
	Channel   string `json:"channel"`
	To        string `json:"to"`
	Body      string `json:"body"`
	OrderID   string `json:"order_id"`
	OrderName string `json:"order_name"`
}

// ChannelSMS is the only delivery channel currently templated
const ChannelSMS = "sms"

func greetingName(order *models.Order) string {
	name := strings.TrimSpace(order.ContactName)
	if name == "" {
		return "there"
	}
	return name
}

// ForCustomer renders the customer-facing message for a trigger.
// Returns false when the order has no reachable contact or the trigger
// has no customer template.
func ForCustomer(trigger string, order *models.Order) (Message, bool) {
	if order.ContactPhone == "" {
		return Message{}, false
	}

	var body string
	switch trigger {
	case fulfillment.TriggerOrderReceived:
		body = fmt.Sprintf("Hi %s, we have received your order %s and it is being prepared.",
			greetingName(order), order.Name)
	case fulfillment.TriggerOrderDispatched:
		body = fmt.Sprintf("Hi %s, your order %s is on its way.",
			greetingName(order), order.Name)
	case fulfillment.TriggerOrderDelivered:
		body = fmt.Sprintf("Hi %s, your order %s has been delivered. Thank you for shopping with us!",
			greetingName(order), order.Name)
	default:
		return Message{}, false
	}

	return Message{
		Trigger:   trigger,
		Channel:   ChannelSMS,
		To:        order.ContactPhone,
		Body:      body,
		OrderID:   order.ExternalID,
		OrderName: order.Name,
	}, true
}

// ForRider renders the rider dispatch message carrying the delivery
// confirmation link for the generated token.
func ForRider(order *models.Order, rider *models.Rider, token, linkBaseURL string) (Message, bool) {
	if rider == nil || rider.Phone == "" || token == "" {
		return Message{}, false
	}

	link := fmt.Sprintf("%s/delivery/confirm/%s", strings.TrimRight(linkBaseURL, "/"), token)
	body := fmt.Sprintf("New delivery: order %s for %s. Confirm once delivered: %s",
		order.Name, greetingName(order), link)

	return Message{
		Trigger:   fulfillment.TriggerRiderDispatched,
		Channel:   ChannelSMS,
		To:        rider.Phone,
		Body:      body,
		OrderID:   order.ExternalID,
		OrderName: order.Name,
	}, true
}
