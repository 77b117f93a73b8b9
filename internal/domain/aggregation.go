package domain

// StatusCounts is the distribution of record statuses within a batch.
type StatusCounts map[RecordStatus]int

// CountStatuses derives the status distribution from a full set of projections.
func CountStatuses(records []RecordStatusResult) StatusCounts {
	counts := make(StatusCounts, len(records))
	for _, r := range records {
		counts[r.RecordStatus]++
	}
	return counts
}

// Total returns the number of records represented by the counts.
func (c StatusCounts) Total() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

func (c StatusCounts) terminal() int {
	return c[RecordStatusProcessingComplete] + c[RecordStatusDiscarded] + c[RecordStatusIgnored]
}

// IsBatchComplete reports whether every record is complete, discarded or ignored.
// A batch without records is complete.
func IsBatchComplete(c StatusCounts) bool {
	return c.terminal() == c.Total()
}

// IsBatchPendingReview reports whether at least one record awaits review and
// every other record is already terminal.
func IsBatchPendingReview(c StatusCounts) bool {
	review := c[RecordStatusPendingReview]
	return review > 0 && c.terminal()+review == c.Total()
}

// DeriveBatchStatus returns the batch status implied by counts. PendingReview is
// checked before Complete. Otherwise the current status is kept. Discarded and
// complete are final: neither is reopened by later record changes.
func DeriveBatchStatus(current BatchStatus, c StatusCounts) BatchStatus {
	if current == BatchStatusDiscarded || current == BatchStatusComplete {
		return current
	}
	if IsBatchPendingReview(c) {
		return BatchStatusPendingReview
	}
	if IsBatchComplete(c) {
		return BatchStatusComplete
	}
	return current
}

// AsMap converts counts to their string-keyed form for persistence and transport.
func (c StatusCounts) AsMap() map[string]int {
	out := make(map[string]int, len(c))
	for status, n := range c {
		out[status.String()] = n
	}
	return out
}
