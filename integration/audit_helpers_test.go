package integration_test

import (
	"testing"

	"github.com/neevjustin/sales-portal/internal/audit"
)

// requireAuditEvents fails unless every type in want was logged at least once.
func requireAuditEvents(t *testing.T, dbPath string, want []string) {
	t.Helper()
	logger := audit.NewLogger(dbPath)
	for _, eventType := range want {
		events, err := logger.Events(eventType, 1)
		if err != nil {
			t.Fatalf("read audit events %s: %v", eventType, err)
		}
		if len(events) == 0 {
			t.Fatalf("missing audit event %s in %s", eventType, dbPath)
		}
	}
}
