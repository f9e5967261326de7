package redis

// Key prefixes for primary entity storage.
const (
	prefixEventType    = "herald:evtype:"
	prefixSubscription = "herald:sub:"
	prefixRecord       = "herald:rec:"
)

// Key prefixes for unique indexes.
const (
	uniqueEventTypeName = "herald:u:evtype:name:"
)

// Key prefixes for sorted set indexes.
const (
	zEventTypeAll   = "herald:z:evtype:all"
	zEventTypeGroup = "herald:z:evtype:group:" // + group name
	zSubscriptionUs = "herald:z:sub:user:"     // + user ID
	zRecordSub      = "herald:z:rec:sub:"      // + subscription ID
)

// Hash holding the running delivery counters of a subscription.
const hSubscriptionStats = "herald:h:sub:stats:" // + subscription ID

// Counter hash fields.
const (
	fieldTotal       = "total_deliveries"
	fieldFailed      = "failed_deliveries"
	fieldLastStatus  = "last_status_code"
	fieldLastTrigger = "last_triggered_at"
)

// entityKey returns the primary key for an entity.
func entityKey(prefix, id string) string {
	return prefix + id
}

func statsKey(subID string) string {
	return hSubscriptionStats + subID
}
