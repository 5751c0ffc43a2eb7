package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type PassesMetrics struct {
	trades    *prometheus.CounterVec
	tradeFail *prometheus.CounterVec
	volume    *prometheus.CounterVec
	fees      *prometheus.CounterVec
	supply    *prometheus.GaugeVec
}

var (
	passesOnce     sync.Once
	passesRegistry *PassesMetrics
)

func Passes() *PassesMetrics {
	passesOnce.Do(func() {
		passesRegistry = &PassesMetrics{
			trades: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "passes_trades_total",
				Help: "Count of settled trades by side and payment rail.",
			}, []string{"side", "rail"}),
			tradeFail: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "passes_trade_failures_total",
				Help: "Count of rejected trades by side.",
			}, []string{"side"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "passes_trade_volume_base_units",
				Help: "Cumulative traded price volume in base units per rail.",
			}, []string{"rail"}),
			fees: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "passes_fee_volume_base_units",
				Help: "Cumulative fee volume in base units by kind and rail.",
			}, []string{"kind", "rail"}),
			supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "passes_market_supply",
				Help: "Outstanding pass units per market owner.",
			}, []string{"owner"}),
		}
		prometheus.MustRegister(
			passesRegistry.trades,
			passesRegistry.tradeFail,
			passesRegistry.volume,
			passesRegistry.fees,
			passesRegistry.supply,
		)
	})
	return passesRegistry
}

// ObserveTrade records a settled trade.
func (m *PassesMetrics) ObserveTrade(side, rail, owner string, price, protocolFee, ownerFee, supply uint64) {
	if m == nil {
		return
	}
	m.trades.WithLabelValues(side, rail).Inc()
	m.volume.WithLabelValues(rail).Add(float64(price))
	m.fees.WithLabelValues("protocol", rail).Add(float64(protocolFee))
	m.fees.WithLabelValues("owner", rail).Add(float64(ownerFee))
	m.supply.WithLabelValues(owner).Set(float64(supply))
}

// ObserveRejectedTrade records a trade that failed a precondition.
func (m *PassesMetrics) ObserveRejectedTrade(side string) {
	if m == nil {
		return
	}
	m.tradeFail.WithLabelValues(side).Inc()
}
