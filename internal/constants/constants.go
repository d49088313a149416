package constants

//CollectionPushSubscriptions Name of the collection.
const CollectionPushSubscriptions = "pushSubscriptions"

//CollectionEmergencies Name of the collection.
const CollectionEmergencies = "emergencies"

//TopicFallDetected Name of the topic.
const TopicFallDetected = "fall-detected"

//DbAlertCountersPath Path of global alert counters in Realtime DB.
const DbAlertCountersPath = "alertCounters"

//DedupeKeyPrefix Prefix of emergency dedupe keys in Redis.
const DedupeKeyPrefix = "resq:emergency:"
