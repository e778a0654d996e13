package models

import "time"

type WorkerKind string

const (
	WorkerTrailing  WorkerKind = "trailing"
	WorkerBreakeven WorkerKind = "breakeven"
)

// SubscriptionInfo — публичный срез по фоновому воркеру из реестра.
type SubscriptionInfo struct {
	ID        string
	Kind      WorkerKind
	Ticket    int64
	StartedAt time.Time
}
