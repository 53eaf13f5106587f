package main

import (
	"strings"
	"testing"
)

func setStorageEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STORAGE_CONNECTION_STRING", "UseDevelopmentStorage=true")
	t.Setenv("EVENTS_TABLE", "events")
	t.Setenv("REGISTRATIONS_TABLE", "registrations")
	t.Setenv("MESSAGES_TABLE", "messages")
	t.Setenv("NOTIFICATIONS_TABLE", "notifications")
	t.Setenv("REPAIR_QUEUE", "repair")
}

func TestResolveConfig(t *testing.T) {
	setStorageEnv(t)
	connStr, tables, err := resolveConfig()
	if err != nil {
		t.Fatalf("resolveConfig: %v", err)
	}
	if connStr != "UseDevelopmentStorage=true" {
		t.Fatalf("connStr = %s", connStr)
	}
	if tables.Events != "events" || tables.RepairQueue != "repair" {
		t.Fatalf("tables = %+v", tables)
	}
}

func TestResolveConfigReportsAllMissing(t *testing.T) {
	setStorageEnv(t)
	t.Setenv("REGISTRATIONS_TABLE", "")
	t.Setenv("REPAIR_QUEUE", "")

	_, _, err := resolveConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"REGISTRATIONS_TABLE", "REPAIR_QUEUE"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("error %q does not name %s", err, key)
		}
	}
	if strings.Contains(err.Error(), "EVENTS_TABLE") {
		t.Fatalf("error %q names a variable that is set", err)
	}
}
