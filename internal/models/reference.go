package models

import "fmt"

// ExecutionReference builds the journal reference for a period of a plan instance.
func ExecutionReference(walletId string, createdAt int64, period int) string {
	return fmt.Sprintf("dca:%s:%d:%d", walletId, createdAt, period)
}
