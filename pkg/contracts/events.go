package contracts

// EventType names the marketplace events pushed to the broadcast layer.
type EventType string

const (
	EventContractCreated EventType = "contract_created"
	EventContractAwarded EventType = "contract_awarded"
	EventBidReceived     EventType = "bid_received"
	EventContractSettled EventType = "contract_settled"
)
