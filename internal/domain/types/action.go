package types

const (
	ActionRabbitMQConnected       = "rabbitmq_connected"
	ActionRabbitConnectionClosed  = "rabbitmq_connection_closed"
	ActionRabbitConnectionClosing = "rabbitmq_connection_closing"
	ActionRabbitReconnected       = "rabbitmq_reconnection_success"

	ActionDatabaseTransactionFailed = "database_transaction_failed"
	ActionExternalServiceFailed     = "external_service_failed"

	ActionOfferOpened   = "offer_opened"
	ActionOfferAccepted = "offer_accepted"
	ActionOfferExpired  = "offer_expired"
	ActionSyncRun       = "location_sync_run"
)
