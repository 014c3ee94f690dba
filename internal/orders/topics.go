package orders

import "strconv"

const TopicOrderLifecycle = "order.lifecycle"

// PartitionKey keeps every event of one order on one partition, in order.
func PartitionKey(orderID int64) string { return strconv.FormatInt(orderID, 10) }
