package kafka

// Topic definitions for Kafka event streaming
const (
	// Consumed: realised trades reported by the ledger
	TopicTradeClosed = "trades.closed"

	// Produced
	TopicRiskAlerts    = "risk.alerts"
	TopicRiskEvents    = "risk.events"
	TopicCloseRequests = "positions.close_requests"
)
