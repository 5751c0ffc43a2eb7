package passes

import (
	"strconv"

	"passchain/core/events"
	"passchain/core/types"
)

const (
	// EventTypeIssued is emitted when an owner seeds their market.
	EventTypeIssued = "passes.issued"
	// EventTypeBought is emitted when a buy settles.
	EventTypeBought = "passes.bought"
	// EventTypeSold is emitted when a sell settles.
	EventTypeSold = "passes.sold"
	// EventTypeConfigUpdated is emitted when the market config changes.
	EventTypeConfigUpdated = "passes.config.updated"
)

type eventEnvelope struct {
	evt *types.Event
}

func (e eventEnvelope) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e eventEnvelope) Event() *types.Event { return e.evt }

// WrapEvent converts a raw event payload into the emitter-friendly envelope.
func WrapEvent(evt *types.Event) events.Event { return eventEnvelope{evt: evt} }

func formatUint(v uint64) string { return strconv.FormatUint(v, 10) }

// IssuedEvent returns the structured event payload for market seeding.
func IssuedEvent(owner string, amount uint64) events.Event {
	return WrapEvent(&types.Event{
		Type: EventTypeIssued,
		Attributes: map[string]string{
			"owner":  owner,
			"amount": formatUint(amount),
		},
	})
}

func tradeAttributes(traderKey string, receipt *TradeReceipt) map[string]string {
	return map[string]string{
		"owner":       hexAddr(receipt.Owner),
		traderKey:     hexAddr(receipt.Trader),
		"rail":        receipt.Rail.String(),
		"amount":      formatUint(receipt.Amount),
		"price":       formatUint(receipt.Price),
		"protocolFee": formatUint(receipt.ProtocolFee),
		"ownerFee":    formatUint(receipt.OwnerFee),
		"supply":      formatUint(receipt.Supply),
		"balance":     formatUint(receipt.Balance),
	}
}

// BoughtEvent returns the structured event payload for a settled buy.
func BoughtEvent(receipt *TradeReceipt) events.Event {
	return WrapEvent(&types.Event{
		Type:       EventTypeBought,
		Attributes: tradeAttributes("buyer", receipt),
	})
}

// SoldEvent returns the structured event payload for a settled sell.
func SoldEvent(receipt *TradeReceipt) events.Event {
	return WrapEvent(&types.Event{
		Type:       EventTypeSold,
		Attributes: tradeAttributes("seller", receipt),
	})
}

// ConfigUpdatedEvent returns the structured event payload for config changes.
func ConfigUpdatedEvent(cfg *MarketConfig) events.Event {
	return WrapEvent(&types.Event{
		Type: EventTypeConfigUpdated,
		Attributes: map[string]string{
			"admin":          hexAddr(cfg.Admin),
			"paymentToken":   cfg.PaymentToken,
			"protocolFeeBps": formatUint(cfg.ProtocolFeeBps),
			"ownerFeeBps":    formatUint(cfg.OwnerFeeBps),
		},
	})
}
