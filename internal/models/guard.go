package models

// GuardDecision — результат одной проверки гарда. Создаётся заново на
// каждую оценку и после возврата не мутируется.
type GuardDecision struct {
	Allowed bool
	// Status подставляется в Result.Status при блокировке
	// (например "skipped_by_session").
	Status string
	Reason string
	Meta   map[string]any
}

func Allow(meta map[string]any) GuardDecision {
	return GuardDecision{Allowed: true, Meta: meta}
}

func Block(status, reason string, meta map[string]any) GuardDecision {
	return GuardDecision{Allowed: false, Status: status, Reason: reason, Meta: meta}
}
