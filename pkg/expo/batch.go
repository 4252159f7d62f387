package expo

const (
	// MaxBatchSize is the number of messages accepted by one send request.
	MaxBatchSize = 100
	// MaxReceiptIDs is the number of ids accepted by one receipts request.
	MaxReceiptIDs = 1000
)

// ValidateBatch fails with ErrTooManyMessages when msgs exceeds MaxBatchSize.
func ValidateBatch(msgs []Message) error {
	if len(msgs) > MaxBatchSize {
		return ErrTooManyMessages
	}
	return nil
}

// ChunkMessages splits msgs into batches that pass ValidateBatch.
func ChunkMessages(msgs []Message) [][]Message {
	return chunk(msgs, MaxBatchSize)
}

// ChunkReceiptIDs splits ids into groups of at most MaxReceiptIDs.
func ChunkReceiptIDs(ids []string) [][]string {
	return chunk(ids, MaxReceiptIDs)
}

func chunk[T any](items []T, size int) [][]T {
	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
